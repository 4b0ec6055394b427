package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcollier/txgate/internal/dispatch"
	"github.com/tcollier/txgate/internal/models"
	pkghttp "github.com/tcollier/txgate/pkg/http"
)

type echoHandler struct{}

func (h *echoHandler) Methods() map[dispatch.Method]dispatch.HandlerFunc {
	return map[dispatch.Method]dispatch.HandlerFunc{
		"getPersonByName": func(ctx context.Context, caller dispatch.Caller, params json.RawMessage) (any, error) {
			var name string
			if err := json.Unmarshal(params, &name); err != nil {
				return nil, models.ErrInvalidParameters.WithAlerts("params")
			}
			return map[string]string{"name": name}, nil
		},
	}
}

func newDispatchHandler(t *testing.T, readiness *dispatch.Readiness) *DispatchHandler {
	t.Helper()

	router := dispatch.NewTxRouter(map[int64]dispatch.Route{
		53: {Object: dispatch.ObjectPerson, Method: "getPersonByName"},
	})
	perms := dispatch.NewPermissionIndex([]dispatch.PermissionRule{
		{RoleID: models.RoleMember, Method: "getPersonByName", Object: dispatch.ObjectPerson},
	})
	registry := dispatch.NewHandlerRegistry(newTestLogger())
	registry.Register(dispatch.ObjectPerson, func() (dispatch.Handler, error) {
		return &echoHandler{}, nil
	})

	gateway := dispatch.NewGateway(router, perms, registry, newTestLogger())
	return NewDispatchHandler(gateway, readiness)
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) pkghttp.ErrorEnvelope {
	t.Helper()

	var envelope pkghttp.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func TestDispatchHandler_NotReady(t *testing.T) {
	readiness := dispatch.NewReadiness()
	handler := newDispatchHandler(t, readiness)

	req := withCaller(newJSONRequest(http.MethodPost, "/tx", `{"tx":53,"params":"alice"}`), "user-1", models.RoleMember)
	rec := httptest.NewRecorder()
	handler.Dispatch(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDispatchHandler_FailedLoadStaysUnavailable(t *testing.T) {
	readiness := dispatch.NewReadiness()
	readiness.MarkFailed("snapshot load failed")
	handler := newDispatchHandler(t, readiness)

	req := withCaller(newJSONRequest(http.MethodPost, "/tx", `{"tx":53,"params":"alice"}`), "user-1", models.RoleMember)
	rec := httptest.NewRecorder()
	handler.Dispatch(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDispatchHandler_Unauthenticated(t *testing.T) {
	readiness := dispatch.NewReadiness()
	readiness.MarkReady()
	handler := newDispatchHandler(t, readiness)

	req := newJSONRequest(http.MethodPost, "/tx", `{"tx":53,"params":"alice"}`)
	rec := httptest.NewRecorder()
	handler.Dispatch(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDispatchHandler_Success(t *testing.T) {
	readiness := dispatch.NewReadiness()
	readiness.MarkReady()
	handler := newDispatchHandler(t, readiness)

	req := withCaller(newJSONRequest(http.MethodPost, "/tx", `{"tx":53,"params":"alice"}`), "user-1", models.RoleMember)
	rec := httptest.NewRecorder()
	handler.Dispatch(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Code int               `json:"code"`
		Msg  string            `json:"msg"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, http.StatusOK, envelope.Code)
	assert.Equal(t, "alice", envelope.Data["name"])
}

func TestDispatchHandler_UnknownTx(t *testing.T) {
	readiness := dispatch.NewReadiness()
	readiness.MarkReady()
	handler := newDispatchHandler(t, readiness)

	req := withCaller(newJSONRequest(http.MethodPost, "/tx", `{"tx":9999}`), "user-1", models.RoleMember)
	rec := httptest.NewRecorder()
	handler.Dispatch(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, http.StatusBadRequest, envelope.Code)
	assert.Contains(t, envelope.Alerts, "tx")
}

func TestDispatchHandler_PermissionDenied(t *testing.T) {
	readiness := dispatch.NewReadiness()
	readiness.MarkReady()
	handler := newDispatchHandler(t, readiness)

	req := withCaller(newJSONRequest(http.MethodPost, "/tx", `{"tx":53,"params":"alice"}`), "user-1", 99)
	rec := httptest.NewRecorder()
	handler.Dispatch(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDispatchHandler_InvalidBody(t *testing.T) {
	readiness := dispatch.NewReadiness()
	readiness.MarkReady()
	handler := newDispatchHandler(t, readiness)

	req := withCaller(newJSONRequest(http.MethodPost, "/tx", `not json`), "user-1", models.RoleMember)
	rec := httptest.NewRecorder()
	handler.Dispatch(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
