package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/tcollier/txgate/internal/auth"
	"github.com/tcollier/txgate/internal/dispatch"
	pkghttp "github.com/tcollier/txgate/pkg/http"
)

// DispatchHandler exposes the transaction gateway over POST /tx
type DispatchHandler struct {
	gateway   *dispatch.Gateway
	readiness *dispatch.Readiness
}

// NewDispatchHandler creates a new DispatchHandler
func NewDispatchHandler(gateway *dispatch.Gateway, readiness *dispatch.Readiness) *DispatchHandler {
	return &DispatchHandler{
		gateway:   gateway,
		readiness: readiness,
	}
}

// Dispatch handles POST /tx. Traffic is refused until the routing and
// permission snapshots have loaded.
func (h *DispatchHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	if !h.readiness.Ready() {
		pkghttp.WriteServiceUnavailable(w, "service not ready")
		return
	}

	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "authentication required")
		return
	}

	var req dispatch.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}

	caller := dispatch.Caller{UserID: claims.UserID, RoleID: claims.RoleID}

	result, err := h.gateway.Dispatch(r.Context(), caller, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteResult(w, http.StatusOK, "ok", result)
}
