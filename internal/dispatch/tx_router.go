package dispatch

import (
	"context"
	"fmt"
)

// Route is the (object, method) pair a transaction code resolves to.
type Route struct {
	Object Object
	Method Method
}

// TxMapping binds one transaction code to its route.
type TxMapping struct {
	Code  int64
	Route Route
}

// TxSource supplies the transaction-code table snapshot.
type TxSource interface {
	TxMappings(ctx context.Context) ([]TxMapping, error)
}

// TxRouter is the immutable tx_code -> route mapping. Codes are opaque
// caller-supplied integers; an unmapped code is always a client error.
type TxRouter struct {
	routes map[int64]Route
}

// LoadTxRouter consumes the tx snapshot and builds the router. Snapshot rows
// naming objects outside the closed set are rejected at load time rather
// than at dispatch time.
func LoadTxRouter(ctx context.Context, src TxSource) (*TxRouter, error) {
	mappings, err := src.TxMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction code snapshot: %w", err)
	}

	routes := make(map[int64]Route, len(mappings))
	for _, m := range mappings {
		if m.Code <= 0 {
			return nil, fmt.Errorf("transaction code %d is not a positive integer", m.Code)
		}
		if !KnownObjects[m.Route.Object] {
			return nil, fmt.Errorf("transaction code %d maps to unknown object %q", m.Code, m.Route.Object)
		}
		if _, dup := routes[m.Code]; dup {
			return nil, fmt.Errorf("duplicate transaction code %d in snapshot", m.Code)
		}
		routes[m.Code] = m.Route
	}
	return &TxRouter{routes: routes}, nil
}

// NewTxRouter builds a router from in-memory mappings. Used by tests.
func NewTxRouter(routes map[int64]Route) *TxRouter {
	copied := make(map[int64]Route, len(routes))
	for code, route := range routes {
		copied[code] = route
	}
	return &TxRouter{routes: copied}
}

// Resolve returns the route for a code. The second return is false for any
// code absent from the snapshot, including non-positive ones.
func (r *TxRouter) Resolve(code int64) (Route, bool) {
	route, ok := r.routes[code]
	return route, ok
}
