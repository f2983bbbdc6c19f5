package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnknownEventType is returned when a type name has no registered decoder.
	ErrUnknownEventType = errors.New("unknown event type")
	// ErrEventTypeRegistered is returned when a type name is registered twice.
	ErrEventTypeRegistered = errors.New("event type already registered")
)

// DecodeFunc turns a serialized payload back into its typed form.
type DecodeFunc func(data []byte) (interface{}, error)

// Registry is the closed, versioned mapping from event type name to payload
// shape. Type names carry their version suffix (e.g. "sales.order_paid.v1")
// and the mapping is append-only: new versions are new names, existing names
// keep decoding in-flight messages captured before a deploy.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]DecodeFunc
}

func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]DecodeFunc)}
}

// Register binds a type name to a decoder. Re-registering a name is a wiring
// bug and fails loudly.
func (r *Registry) Register(eventType string, decode DecodeFunc) error {
	if eventType == "" {
		return fmt.Errorf("event type name is required")
	}
	if decode == nil {
		return fmt.Errorf("decoder for %q is required", eventType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.decoders[eventType]; exists {
		return fmt.Errorf("%w: %s", ErrEventTypeRegistered, eventType)
	}
	r.decoders[eventType] = decode
	return nil
}

// MustRegister is Register for static wiring done at startup.
func (r *Registry) MustRegister(eventType string, decode DecodeFunc) {
	if err := r.Register(eventType, decode); err != nil {
		panic(err)
	}
}

// Known reports whether the type name has a registered decoder.
func (r *Registry) Known(eventType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.decoders[eventType]
	return ok
}

// Decode resolves the type name and deserializes the payload.
func (r *Registry) Decode(eventType string, payload []byte) (interface{}, error) {
	r.mu.RLock()
	decode, ok := r.decoders[eventType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}

	v, err := decode(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", eventType, err)
	}
	return v, nil
}

// JSONDecoder builds a DecodeFunc that unmarshals into T.
func JSONDecoder[T any]() DecodeFunc {
	return func(data []byte) (interface{}, error) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}
