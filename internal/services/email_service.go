package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	pkglogger "github.com/tcollier/txgate/pkg/logger"
)

// EmailService defines the interface for delivering challenge secrets
type EmailService interface {
	SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error
	SendOneTimeCodeEmail(ctx context.Context, email, code, purpose string, expiresAt time.Time) error
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	sesClient    *ses.Client
	fromAddress  string
	resetURLBase string
	logger       *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(region, fromAddress, resetURLBase string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:    ses.NewFromConfig(cfg),
		fromAddress:  fromAddress,
		resetURLBase: resetURLBase,
		logger:       logger,
	}, nil
}

// SendPasswordResetEmail delivers a reset link carrying the raw token.
func (s *AWSSESEmailService) SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	resetLink := fmt.Sprintf("%s/password-reset?token=%s", s.resetURLBase, token)
	minutes := int(time.Until(expiresAt).Round(time.Minute).Minutes())

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .button { display: inline-block; background-color: #0066cc; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .warning { background-color: #fff3cd; padding: 10px; border-left: 4px solid #ffc107; margin: 10px 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Reset Your Password</h1>
        <p>We received a request to reset the password for your account. Click the link below to choose a new password:</p>
        <p><a href="%s" class="button">Reset Password</a></p>
        <p>Or copy and paste this link in your browser:<br>
        <code>%s</code></p>
        <div class="warning">
            <strong>Security Notice:</strong> This link will expire in %d minutes and can be used only once.
        </div>
        <p><strong>Didn't request this?</strong><br>
        If you didn't ask to reset your password, you can ignore this email. Your password will not change.</p>
    </div>
</body>
</html>
`, resetLink, resetLink, minutes)

	textBody := fmt.Sprintf(`Reset Your Password

We received a request to reset the password for your account. Open the link below to choose a new password:

%s

Security Notice: This link will expire in %d minutes and can be used only once.

Didn't request this?
If you didn't ask to reset your password, you can ignore this email. Your password will not change.
`, resetLink, minutes)

	return s.send(ctx, email, "Reset your password", htmlBody, textBody)
}

// SendOneTimeCodeEmail delivers a short verification code.
func (s *AWSSESEmailService) SendOneTimeCodeEmail(ctx context.Context, email, code, purpose string, expiresAt time.Time) error {
	minutes := int(time.Until(expiresAt).Round(time.Minute).Minutes())

	var subject, heading string
	switch purpose {
	case "login":
		subject = "Your sign-in code"
		heading = "Your Sign-In Code"
	default:
		subject = "Your verification code"
		heading = "Your Verification Code"
	}

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .code { font-size: 32px; letter-spacing: 8px; font-weight: bold; padding: 16px; background-color: #f8f9fa; border-radius: 4px; text-align: center; }
        .warning { background-color: #fff3cd; padding: 10px; border-left: 4px solid #ffc107; margin: 10px 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>%s</h1>
        <p>Enter this code to continue:</p>
        <div class="code">%s</div>
        <div class="warning">
            <strong>Security Notice:</strong> This code will expire in %d minutes and can be used only once.
        </div>
        <p>If you didn't request this code, you can ignore this email.</p>
    </div>
</body>
</html>
`, heading, code, minutes)

	textBody := fmt.Sprintf(`%s

Enter this code to continue:

%s

Security Notice: This code will expire in %d minutes and can be used only once.

If you didn't request this code, you can ignore this email.
`, heading, code, minutes)

	return s.send(ctx, email, subject, htmlBody, textBody)
}

func (s *AWSSESEmailService) send(ctx context.Context, email, subject, htmlBody, textBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("message_id", *result.MessageId))

	return nil
}
