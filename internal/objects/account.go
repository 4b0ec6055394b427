package objects

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/tcollier/txgate/internal/dispatch"
	"github.com/tcollier/txgate/internal/models"
)

// AccountRepository defines the user operations the Account object needs
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	UpdateUsername(ctx context.Context, id, username string) (*models.User, error)
}

// AccountHandler exposes the caller's own account to the dispatch gateway.
// All operations act on the authenticated caller, never on other users.
type AccountHandler struct {
	repo   AccountRepository
	logger *slog.Logger
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(repo AccountRepository, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{repo: repo, logger: logger}
}

func (h *AccountHandler) Methods() map[dispatch.Method]dispatch.HandlerFunc {
	return map[dispatch.Method]dispatch.HandlerFunc{
		"getProfile":    h.getProfile,
		"updateProfile": h.updateProfile,
	}
}

// ProfileResponse is the wire shape for the caller's account
type ProfileResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Username      string `json:"username"`
	EmailVerified bool   `json:"email_verified"`
	CreatedAt     string `json:"created_at"`
}

func profileToResponse(user *models.User) *ProfileResponse {
	return &ProfileResponse{
		ID:            user.ID,
		Email:         user.Email,
		Username:      user.Username,
		EmailVerified: user.EmailVerified(),
		CreatedAt:     user.CreatedAt.Format(time.RFC3339),
	}
}

func (h *AccountHandler) getProfile(ctx context.Context, caller dispatch.Caller, params json.RawMessage) (any, error) {
	user, err := h.repo.GetByID(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthenticated
		}
		h.logger.Error("failed to get profile",
			slog.String("user_id", caller.UserID), slog.Any("error", err))
		return nil, models.ErrUnknown
	}

	return profileToResponse(user), nil
}

type updateProfileParams struct {
	Username string `json:"username"`
}

func (h *AccountHandler) updateProfile(ctx context.Context, caller dispatch.Caller, params json.RawMessage) (any, error) {
	var args updateProfileParams
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, models.ErrInvalidParameters.WithAlerts("params")
	}

	username := strings.TrimSpace(args.Username)
	if username == "" || len(username) > 64 {
		return nil, models.ErrInvalidParameters.WithAlerts("username")
	}

	user, err := h.repo.UpdateUsername(ctx, caller.UserID, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthenticated
		}
		h.logger.Error("failed to update profile",
			slog.String("user_id", caller.UserID), slog.Any("error", err))
		return nil, models.ErrUnknown
	}

	h.logger.Info("profile updated", slog.String("user_id", caller.UserID))
	return profileToResponse(user), nil
}
