package dispatch

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// HandlerRegistry lazily constructs and caches one handler instance per
// object. Two requests racing on first reference are collapsed by
// singleflight, so construction runs once even under concurrency; a
// duplicate construction after a failed attempt is tolerated.
type HandlerRegistry struct {
	mu        sync.Mutex
	factories map[Object]Factory
	handlers  sync.Map // Object -> Handler
	group     singleflight.Group
	logger    *slog.Logger
}

// NewHandlerRegistry creates an empty registry.
func NewHandlerRegistry(logger *slog.Logger) *HandlerRegistry {
	return &HandlerRegistry{
		factories: make(map[Object]Factory),
		logger:    logger,
	}
}

// Register binds a factory to an object name. Called during startup wiring,
// before the registry serves traffic.
func (r *HandlerRegistry) Register(object Object, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[object] = factory
}

// Resolve returns the callable for (object, method), constructing the
// object's handler on first reference. Construction failures and unknown
// keys are internal errors: the gateway logs them with the attempted key
// and reports unknownError to the client.
func (r *HandlerRegistry) Resolve(object Object, method Method) (HandlerFunc, error) {
	handler, err := r.handlerFor(object)
	if err != nil {
		return nil, err
	}

	fn, ok := handler.Methods()[method]
	if !ok {
		return nil, fmt.Errorf("object %q has no method %q", object, method)
	}
	return fn, nil
}

func (r *HandlerRegistry) handlerFor(object Object) (Handler, error) {
	if cached, ok := r.handlers.Load(object); ok {
		return cached.(Handler), nil
	}

	v, err, _ := r.group.Do(string(object), func() (any, error) {
		// Re-check: a previous flight may have stored it already
		if cached, ok := r.handlers.Load(object); ok {
			return cached.(Handler), nil
		}

		r.mu.Lock()
		factory, ok := r.factories[object]
		r.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("no handler registered for object %q", object)
		}

		handler, err := factory()
		if err != nil {
			return nil, fmt.Errorf("failed to construct handler for object %q: %w", object, err)
		}

		actual, _ := r.handlers.LoadOrStore(object, handler)
		r.logger.Debug("handler constructed", slog.String("object", string(object)))
		return actual.(Handler), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Handler), nil
}
