package handlers

import (
	"net/http"

	"github.com/tcollier/txgate/internal/database"
	"github.com/tcollier/txgate/internal/dispatch"
	pkghttp "github.com/tcollier/txgate/pkg/http"
)

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	db        *database.DB
	readiness *dispatch.Readiness
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(db *database.DB, readiness *dispatch.Readiness) *HealthHandler {
	return &HealthHandler{db: db, readiness: readiness}
}

// Healthz handles GET /healthz: process is up and the database answers
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.HealthCheck(r.Context()); err != nil {
		pkghttp.WriteServiceUnavailable(w, "database unreachable")
		return
	}

	pkghttp.WriteResult(w, http.StatusOK, "ok", nil)
}

// ReadinessResponse reports the dispatch lifecycle state
type ReadinessResponse struct {
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

// Readyz handles GET /readyz: dispatch traffic is accepted only when the
// routing and permission snapshots have loaded.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	state := h.readiness.State()
	body := ReadinessResponse{State: state.String(), Reason: h.readiness.Reason()}

	if state != dispatch.StateReady {
		pkghttp.WriteResult(w, http.StatusServiceUnavailable, "not ready", body)
		return
	}

	pkghttp.WriteResult(w, http.StatusOK, "ready", body)
}
