package http

import (
	"encoding/json"
	"net/http"
)

// Envelope is the uniform success response body. Code mirrors the HTTP
// status so clients reading only the body see the same outcome.
type Envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

// ErrorEnvelope is the uniform error response body. Alerts carries
// field-level validation detail when present.
type ErrorEnvelope struct {
	Code   int      `json:"code"`
	Msg    string   `json:"msg"`
	Alerts []string `json:"alerts,omitempty"`
}

// WriteResult writes a success envelope with the given status and payload.
func WriteResult(w http.ResponseWriter, statusCode int, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	// Encoding errors are logged by middleware; never exposed to the client
	_ = json.NewEncoder(w).Encode(Envelope{Code: statusCode, Msg: msg, Data: data})
}

// WriteError writes an error envelope with the given status.
func WriteError(w http.ResponseWriter, statusCode int, msg string, alerts ...string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	_ = json.NewEncoder(w).Encode(ErrorEnvelope{Code: statusCode, Msg: msg, Alerts: alerts})
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, msg string, alerts ...string) {
	WriteError(w, http.StatusBadRequest, msg, alerts...)
}

func WriteUnauthorized(w http.ResponseWriter, msg string) {
	WriteError(w, http.StatusUnauthorized, msg)
}

func WriteForbidden(w http.ResponseWriter, msg string) {
	WriteError(w, http.StatusForbidden, msg)
}

func WriteConflict(w http.ResponseWriter, msg string) {
	WriteError(w, http.StatusConflict, msg)
}

func WriteTooManyRequests(w http.ResponseWriter, msg string) {
	WriteError(w, http.StatusTooManyRequests, msg)
}

func WriteInternalError(w http.ResponseWriter, msg string) {
	WriteError(w, http.StatusInternalServerError, msg)
}

func WriteServiceUnavailable(w http.ResponseWriter, msg string) {
	WriteError(w, http.StatusServiceUnavailable, msg)
}
