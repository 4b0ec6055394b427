package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/tcollier/txgate/internal/auth"
	"github.com/tcollier/txgate/internal/config"
	"github.com/tcollier/txgate/internal/database"
	"github.com/tcollier/txgate/internal/dispatch"
	"github.com/tcollier/txgate/internal/handlers"
	"github.com/tcollier/txgate/internal/middleware"
	"github.com/tcollier/txgate/internal/objects"
	"github.com/tcollier/txgate/internal/repositories"
	"github.com/tcollier/txgate/internal/routes"
	"github.com/tcollier/txgate/internal/services"
	pkglogger "github.com/tcollier/txgate/pkg/logger"
)

// SentEmail represents a captured outbound message.
type SentEmail struct {
	To      string
	Subject string
	Secret  string
}

// CapturingEmailService records delivered secrets for test assertions.
type CapturingEmailService struct {
	SentEmails []SentEmail
	mu         sync.Mutex
}

func (m *CapturingEmailService) SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SentEmails = append(m.SentEmails, SentEmail{
		To:      email,
		Subject: "Reset your password",
		Secret:  token,
	})
	return nil
}

func (m *CapturingEmailService) SendOneTimeCodeEmail(ctx context.Context, email, code, purpose string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SentEmails = append(m.SentEmails, SentEmail{
		To:      email,
		Subject: "Your verification code (" + purpose + ")",
		Secret:  code,
	})
	return nil
}

// GetLastEmail returns the most recent captured message.
func (m *CapturingEmailService) GetLastEmail() *SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.SentEmails) == 0 {
		return nil
	}
	return &m.SentEmails[len(m.SentEmails)-1]
}

// TestServer wraps httptest.Server with the full application wiring: real
// database, real dispatch snapshot, captured email delivery.
type TestServer struct {
	Server       *httptest.Server
	DB           *database.DB
	EmailService *CapturingEmailService
	Config       *config.Config
	Readiness    *dispatch.Readiness

	logger *slog.Logger
}

// NewTestServer initializes a complete HTTP server against the given database.
func NewTestServer(db *database.DB) (*TestServer, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:         "test-secret-32-characters-long-for-testing",
			AccessTokenExpiry: 15 * time.Minute,
			CleanupInterval:   time.Hour,
			SessionTableName:  "sessions",
			TOTPIssuer:        "txgate-test",
			TOTPEncryptionKey: []byte("test-totp-encryption-key-32-byte"),
		},
		Challenge: config.ChallengeConfig{
			ResetTTL:        15 * time.Minute,
			OTPTTL:          10 * time.Minute,
			MaxAttempts:     5,
			OTPLength:       6,
			OTPCharset:      "0123456789",
			TokenByteLength: 32,
		},
		Server: config.ServerConfig{
			Port: "0",
			Env:  "test",
		},
	}

	userRepo, personRepo, resetRepo, codeRepo, deviceRepo, snapshotRepo := InitializeRepositories(db)

	sessionRepo, err := repositories.NewSessionRepository(db, cfg.Auth.SessionTableName)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session repository: %w", err)
	}

	// Dispatch snapshot comes from the seeded migration data
	readiness := dispatch.NewReadiness()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	router, err := dispatch.LoadTxRouter(ctx, snapshotRepo)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction code snapshot: %w", err)
	}
	perms, err := dispatch.LoadPermissionIndex(ctx, snapshotRepo)
	if err != nil {
		return nil, fmt.Errorf("failed to load permission snapshot: %w", err)
	}
	readiness.MarkReady()

	registry := dispatch.NewHandlerRegistry(logger)
	registry.Register(dispatch.ObjectPerson, func() (dispatch.Handler, error) {
		return objects.NewPersonHandler(personRepo, logger), nil
	})
	registry.Register(dispatch.ObjectAccount, func() (dispatch.Handler, error) {
		return objects.NewAccountHandler(userRepo, logger), nil
	})

	gateway := dispatch.NewGateway(router, perms, registry, logger)

	capturedEmail := &CapturingEmailService{}

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	totpManager, err := auth.NewTOTPManager(cfg.Auth.TOTPEncryptionKey, cfg.Auth.TOTPIssuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create TOTP manager: %w", err)
	}

	// No artificial delay in tests
	timingDelay := auth.NewTimingDelay(0, 0, false)
	auditLogger := pkglogger.NewAuditLogger(logger)

	codeService := services.NewOneTimeCodeService(codeRepo, logger, auditLogger, cfg.Challenge)
	resetService := services.NewPasswordResetService(
		resetRepo, userRepo, sessionRepo, capturedEmail, logger, auditLogger, cfg.Challenge)
	authService := services.NewAuthService(
		userRepo, deviceRepo, sessionRepo, codeService, capturedEmail,
		tokenManager, totpManager, timingDelay, logger, auditLogger, cfg.Challenge.OTPTTL)

	authHandler := handlers.NewAuthHandler(authService, resetService)
	dispatchHandler := handlers.NewDispatchHandler(gateway, readiness)
	healthHandler := handlers.NewHealthHandler(db, readiness)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: cfg.Server.Env}))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	// Generous limits so tests never trip the throttle
	limits := middleware.RateLimitConfig{
		AuthRequestsPerMinute:     1000,
		DispatchRequestsPerMinute: 1000,
	}
	routes.RegisterRoutes(r, authHandler, dispatchHandler, healthHandler, tokenManager, sessionRepo, limits)

	server := httptest.NewServer(r)

	return &TestServer{
		Server:       server,
		DB:           db,
		EmailService: capturedEmail,
		Config:       cfg,
		Readiness:    readiness,
		logger:       logger,
	}, nil
}

// Close shuts down the test server.
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server.
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with an access token.
func (ts *TestServer) RequestWithAuth(method, path, accessToken string, body interface{}) (*http.Response, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + accessToken,
	}
	return ts.Request(method, path, body, headers)
}

// Dispatch posts a transaction to /tx with the given access token.
func (ts *TestServer) Dispatch(accessToken string, txCode int64, params interface{}) (*http.Response, error) {
	return ts.RequestWithAuth(http.MethodPost, "/tx", accessToken, map[string]interface{}{
		"tx":     txCode,
		"params": params,
	})
}

// ParseJSONResponse parses a JSON response body into the target struct.
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// ExtractAccessToken pulls the access token out of a verify-login response
// envelope.
func ExtractAccessToken(resp *http.Response) (string, error) {
	defer resp.Body.Close()

	var envelope struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	return envelope.Data.AccessToken, nil
}

// GetErrorMessage extracts the error message from an error envelope.
func GetErrorMessage(resp *http.Response) (string, error) {
	defer resp.Body.Close()

	var envelope struct {
		Msg string `json:"msg"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", err
	}
	return envelope.Msg, nil
}
