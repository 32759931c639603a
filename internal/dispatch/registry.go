// Package dispatch fans navigation results out to registered listeners.
package dispatch

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/wayfinder/internal/monitoring"
)

// Handle identifies a registered listener.
type Handle string

// NewHandle returns a fresh listener handle.
func NewHandle() Handle { return Handle(uuid.NewString()) }

// Registry is an ordered set of listeners of one category. It is safe for
// concurrent use; listeners are called outside the lock.
type Registry[T any] struct {
	name  string
	mu    sync.Mutex
	order []Handle
	items map[Handle]T
}

// NewRegistry returns an empty registry. name labels log messages.
func NewRegistry[T any](name string) *Registry[T] {
	return &Registry[T]{name: name, items: make(map[Handle]T)}
}

// Add registers l under a new handle. Go funcs are not comparable, so
// listener identity is the handle: adding the same func twice registers
// it twice. Use Register with a fixed handle to make adding idempotent.
func (r *Registry[T]) Add(l T) Handle {
	h := NewHandle()
	r.Register(h, l)
	return h
}

// Register adds l under h. Registering a handle that is already present is
// a no-op with a warning.
func (r *Registry[T]) Register(h Handle, l T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[h]; ok {
		monitoring.Warnf("dispatch", "%s listener %s already registered", r.name, h)
		return false
	}
	r.items[h] = l
	r.order = append(r.order, h)
	return true
}

// Remove unregisters h. Removing an absent handle is a no-op with a
// warning.
func (r *Registry[T]) Remove(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[h]; !ok {
		monitoring.Warnf("dispatch", "%s listener %s not registered", r.name, h)
		return false
	}
	delete(r.items, h)
	for i, o := range r.order {
		if o == h {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// RemoveAll clears the registry.
func (r *Registry[T]) RemoveAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = make(map[Handle]T)
	r.order = nil
}

// Len returns the number of registered listeners.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

func (r *Registry[T]) snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, 0, len(r.order))
	for _, h := range r.order {
		out = append(out, r.items[h])
	}
	return out
}

// Each calls fn for every listener in registration order. A panicking
// listener is logged and skipped; the rest still run.
func (r *Registry[T]) Each(fn func(T)) {
	for _, l := range r.snapshot() {
		r.call(fn, l)
	}
}

func (r *Registry[T]) call(fn func(T), l T) {
	defer func() {
		if rec := recover(); rec != nil {
			monitoring.Logf("dispatch: %s listener panicked: %v\n%s", r.name, rec, debug.Stack())
		}
	}()
	fn(l)
}

func (r *Registry[T]) String() string {
	return fmt.Sprintf("%s(%d)", r.name, r.Len())
}
