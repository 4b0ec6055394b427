package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Auth      AuthConfig
	Challenge ChallengeConfig
	Email     EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port         string
	Env          string
	LogLevel     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type AuthConfig struct {
	JWTSecret            string
	AccessTokenExpiry    time.Duration
	CleanupInterval      time.Duration
	SessionTableName     string
	TOTPIssuer           string
	TOTPEncryptionKey    []byte // 32 bytes, AES-256
	TimingDelayBase      time.Duration
	TimingDelayJitter    time.Duration
	TimingDelayOnSuccess bool
}

// ChallengeConfig holds every challenge policy knob. None of these are
// hardcoded in the services; tests construct them directly.
type ChallengeConfig struct {
	ResetTTL        time.Duration
	OTPTTL          time.Duration
	MaxAttempts     int
	OTPLength       int
	OTPCharset      string
	TokenByteLength int
}

type EmailConfig struct {
	AWSRegion    string
	FromAddress  string
	ResetURLBase string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	totpKey, err := loadTOTPKey(env)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "txgate"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Env:          env,
			LogLevel:     getEnv("LOG_LEVEL", "info"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			AccessTokenExpiry: getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			CleanupInterval:      getEnvAsDuration("CHALLENGE_CLEANUP_INTERVAL", 1*time.Hour),
			SessionTableName:     getEnv("SESSION_TABLE_NAME", "sessions"),
			TOTPIssuer:           getEnv("TOTP_ISSUER", "txgate"),
			TOTPEncryptionKey:    totpKey,
			TimingDelayBase:      getEnvAsDuration("TIMING_DELAY_BASE", 100*time.Millisecond),
			TimingDelayJitter:    getEnvAsDuration("TIMING_DELAY_JITTER", 50*time.Millisecond),
			TimingDelayOnSuccess: getEnvAsBool("TIMING_DELAY_ON_SUCCESS", false),
		},
		Challenge: ChallengeConfig{
			ResetTTL:        getEnvAsDuration("RESET_TOKEN_TTL", 15*time.Minute),
			OTPTTL:          getEnvAsDuration("OTP_TTL", 10*time.Minute),
			MaxAttempts:     getEnvAsInt("CHALLENGE_MAX_ATTEMPTS", 5),
			OTPLength:       getEnvAsInt("OTP_LENGTH", 6),
			OTPCharset:      getEnv("OTP_CHARSET", "0123456789"),
			TokenByteLength: getEnvAsInt("RESET_TOKEN_BYTES", 32),
		},
		Email: EmailConfig{
			AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
			FromAddress:  getEnv("EMAIL_FROM_ADDRESS", "no-reply@localhost"),
			ResetURLBase: getEnv("RESET_URL_BASE", "http://localhost:8080"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := validateChallengeConfig(&cfg.Challenge); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32 // 256 bits
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

// validateChallengeConfig rejects policy values that would disable the
// challenge safety properties outright.
func validateChallengeConfig(cfg *ChallengeConfig) error {
	if cfg.MaxAttempts < 1 {
		return fmt.Errorf("CHALLENGE_MAX_ATTEMPTS must be at least 1 (got %d)", cfg.MaxAttempts)
	}
	if cfg.OTPLength < 4 {
		return fmt.Errorf("OTP_LENGTH must be at least 4 (got %d)", cfg.OTPLength)
	}
	if len(cfg.OTPCharset) < 2 {
		return fmt.Errorf("OTP_CHARSET must contain at least 2 characters")
	}
	if cfg.TokenByteLength < 16 {
		return fmt.Errorf("RESET_TOKEN_BYTES must be at least 16 (got %d)", cfg.TokenByteLength)
	}
	if cfg.ResetTTL <= 0 || cfg.OTPTTL <= 0 {
		return fmt.Errorf("challenge TTLs must be positive")
	}
	return nil
}

// loadTOTPKey decodes TOTP_ENCRYPTION_KEY (base64, 32 bytes). Outside
// production a missing key falls back to a fixed development key so local
// setups work without extra provisioning.
func loadTOTPKey(env string) ([]byte, error) {
	encoded := getEnv("TOTP_ENCRYPTION_KEY", "")
	if encoded == "" {
		if env == "production" {
			return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY is required in production")
		}
		return []byte("txgate-development-totp-key-32by"), nil
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must be base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must decode to 32 bytes (got %d)", len(key))
	}
	return key, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}
