package models

import "errors"

// Storage-level sentinel errors, mapped from driver errors in the database package
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")
)

// Error is a member of the fixed API error taxonomy. Code is the HTTP-style
// status returned to clients; Alerts carries field-level detail for
// validation failures.
type Error struct {
	Code   int      `json:"code"`
	Msg    string   `json:"msg"`
	Alerts []string `json:"alerts,omitempty"`
}

func (e *Error) Error() string {
	return e.Msg
}

// Is matches taxonomy members regardless of attached alerts, so
// errors.Is(err, ErrInvalidParameters) works on alert-carrying copies.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code && t.Msg == e.Msg
}

// WithAlerts returns a copy of the taxonomy error carrying field-level alerts.
func (e *Error) WithAlerts(alerts ...string) *Error {
	return &Error{Code: e.Code, Msg: e.Msg, Alerts: alerts}
}

// Fixed error taxonomy. Internal failure detail is never attached to these;
// it stays in logs.
var (
	ErrInvalidParameters = &Error{Code: 400, Msg: "invalid parameters"}
	ErrInvalidToken      = &Error{Code: 401, Msg: "invalid token"}
	ErrExpiredToken      = &Error{Code: 401, Msg: "expired token"}
	ErrUnauthenticated   = &Error{Code: 401, Msg: "authentication required"}
	ErrUnauthorized      = &Error{Code: 403, Msg: "unauthorized"}
	ErrEmailNotVerified  = &Error{Code: 403, Msg: "email not verified"}
	ErrAlreadyRegistered = &Error{Code: 409, Msg: "already registered"}
	ErrTooManyRequests   = &Error{Code: 429, Msg: "too many requests"}
	ErrUnknown           = &Error{Code: 500, Msg: "unknown error"}
)
