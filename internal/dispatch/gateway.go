package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/tcollier/txgate/internal/models"
)

// Request is the generic transaction request: an opaque positive code plus
// an optional payload.
type Request struct {
	Tx     int64           `json:"tx"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Gateway orchestrates one dispatch: validate shape, resolve route, check
// permission, resolve handler, invoke. Each step is terminal on first
// error; there are no retries at this layer.
type Gateway struct {
	router   *TxRouter
	perms    *PermissionIndex
	registry *HandlerRegistry
	logger   *slog.Logger
}

func NewGateway(router *TxRouter, perms *PermissionIndex, registry *HandlerRegistry, logger *slog.Logger) *Gateway {
	return &Gateway{
		router:   router,
		perms:    perms,
		registry: registry,
		logger:   logger,
	}
}

// Dispatch runs the five-step state machine for one request. Handler
// success and typed errors pass through unchanged; panics and internal
// failures are logged with the route key and downgraded to unknownError.
func (g *Gateway) Dispatch(ctx context.Context, caller Caller, req Request) (result any, err error) {
	if alerts := validateShape(req); len(alerts) > 0 {
		return nil, models.ErrInvalidParameters.WithAlerts(alerts...)
	}

	route, ok := g.router.Resolve(req.Tx)
	if !ok {
		g.logger.Info("unmapped transaction code", slog.Int64("tx", req.Tx))
		return nil, models.ErrInvalidParameters.WithAlerts("tx")
	}

	if !g.perms.IsAllowed(caller.RoleID, route.Method, route.Object) {
		g.logger.Warn("permission denied",
			slog.Int("role_id", caller.RoleID),
			slog.String("object", string(route.Object)),
			slog.String("method", string(route.Method)))
		return nil, models.ErrUnauthorized
	}

	fn, err := g.registry.Resolve(route.Object, route.Method)
	if err != nil {
		g.logger.Error("handler resolution failed",
			slog.String("object", string(route.Object)),
			slog.String("method", string(route.Method)),
			slog.Any("error", err))
		return nil, models.ErrUnknown
	}

	// Handler panics must not take down the request loop. Logged with the
	// route key only; params may contain user data.
	defer func() {
		if p := recover(); p != nil {
			g.logger.Error("handler panicked",
				slog.String("object", string(route.Object)),
				slog.String("method", string(route.Method)),
				slog.Any("panic", p))
			result = nil
			err = models.ErrUnknown
		}
	}()

	result, err = fn(ctx, caller, req.Params)
	if err != nil {
		var typed *models.Error
		if errors.As(err, &typed) {
			return nil, typed
		}
		g.logger.Error("handler failed",
			slog.String("object", string(route.Object)),
			slog.String("method", string(route.Method)),
			slog.Any("error", err))
		return nil, models.ErrUnknown
	}
	return result, nil
}

// validateShape checks the request envelope: tx positive, params absent, a
// primitive, or a plain object. Returns the list of violated fields.
func validateShape(req Request) []string {
	var alerts []string

	if req.Tx <= 0 {
		alerts = append(alerts, "tx")
	}

	if len(req.Params) > 0 {
		trimmed := bytes.TrimLeft(req.Params, " \t\r\n")
		if len(trimmed) > 0 && trimmed[0] == '[' {
			alerts = append(alerts, "params")
		}
	}

	return alerts
}
