package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandler struct {
	methods map[Method]HandlerFunc
}

func (h *stubHandler) Methods() map[Method]HandlerFunc {
	return h.methods
}

func noopMethod(ctx context.Context, caller Caller, params json.RawMessage) (any, error) {
	return nil, nil
}

func TestHandlerRegistry_OneInstancePerObject(t *testing.T) {
	registry := NewHandlerRegistry(slog.Default())

	var constructions atomic.Int32
	registry.Register(ObjectPerson, func() (Handler, error) {
		constructions.Add(1)
		return &stubHandler{methods: map[Method]HandlerFunc{
			"getPersonByName": noopMethod,
			"listPersons":     noopMethod,
		}}, nil
	})

	// Resolving different methods of the same object reuses one instance
	_, err := registry.Resolve(ObjectPerson, "getPersonByName")
	require.NoError(t, err)
	_, err = registry.Resolve(ObjectPerson, "listPersons")
	require.NoError(t, err)
	_, err = registry.Resolve(ObjectPerson, "getPersonByName")
	require.NoError(t, err)

	assert.Equal(t, int32(1), constructions.Load())
}

func TestHandlerRegistry_ConcurrentFirstReference(t *testing.T) {
	registry := NewHandlerRegistry(slog.Default())

	var constructions atomic.Int32
	registry.Register(ObjectPerson, func() (Handler, error) {
		constructions.Add(1)
		return &stubHandler{methods: map[Method]HandlerFunc{
			"getPersonByName": noopMethod,
		}}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := registry.Resolve(ObjectPerson, "getPersonByName")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), constructions.Load(), "racing first references must collapse to one construction")
}

func TestHandlerRegistry_UnknownObject(t *testing.T) {
	registry := NewHandlerRegistry(slog.Default())

	_, err := registry.Resolve("Widget", "getWidget")

	assert.Error(t, err)
}

func TestHandlerRegistry_UnknownMethod(t *testing.T) {
	registry := NewHandlerRegistry(slog.Default())
	registry.Register(ObjectPerson, func() (Handler, error) {
		return &stubHandler{methods: map[Method]HandlerFunc{
			"getPersonByName": noopMethod,
		}}, nil
	})

	_, err := registry.Resolve(ObjectPerson, "deletePerson")

	assert.Error(t, err)
}

func TestHandlerRegistry_ConstructionFailureRetries(t *testing.T) {
	registry := NewHandlerRegistry(slog.Default())

	var attempts atomic.Int32
	registry.Register(ObjectPerson, func() (Handler, error) {
		if attempts.Add(1) == 1 {
			return nil, errors.New("dependency unavailable")
		}
		return &stubHandler{methods: map[Method]HandlerFunc{
			"getPersonByName": noopMethod,
		}}, nil
	})

	_, err := registry.Resolve(ObjectPerson, "getPersonByName")
	assert.Error(t, err, "first attempt surfaces the construction error")

	// A failed construction is not cached; the next reference retries
	_, err = registry.Resolve(ObjectPerson, "getPersonByName")
	assert.NoError(t, err)
	assert.Equal(t, int32(2), attempts.Load())
}
