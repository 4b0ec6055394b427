package dispatch

import (
	"context"
	"encoding/json"
)

// Object identifies a business object. The set of objects is closed at
// compile time; snapshot rows naming anything else never reach a handler.
type Object string

// Method identifies one callable operation on an Object.
type Method string

const (
	ObjectPerson  Object = "Person"
	ObjectAccount Object = "Account"
)

// KnownObjects is the closed set of dispatchable objects.
var KnownObjects = map[Object]bool{
	ObjectPerson:  true,
	ObjectAccount: true,
}

// Caller is the authenticated identity attached to a dispatch request.
type Caller struct {
	UserID string
	RoleID int
}

// HandlerFunc executes one business operation. Params is the validated
// request payload: empty, a JSON primitive, or a JSON object.
type HandlerFunc func(ctx context.Context, caller Caller, params json.RawMessage) (any, error)

// Handler is a business object exposing its operations by method name.
// Handlers must be stateless: all per-call state arrives as parameters,
// which makes the per-object singleton cache safe.
type Handler interface {
	Methods() map[Method]HandlerFunc
}

// Factory constructs the handler instance for an object. Construction may
// be expensive; the registry amortizes it to one call per object.
type Factory func() (Handler, error)
