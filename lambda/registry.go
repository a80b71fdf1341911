// Package lambda holds the global handler registry that declarative machine
// definitions resolve task handlers from. Handlers register under a path-like
// name (directory prefix + short name); resolution is eager, so a missing
// handler fails machine construction rather than a run.
package lambda

import (
	"fmt"
	"path"
	"sync"

	"github.com/stateflow-labs/stateflow/machine"
)

type registry struct {
	entries map[string]machine.Handler
	mu      sync.RWMutex
}

var register = &registry{
	entries: make(map[string]machine.Handler),
}

// Key joins a base path and a handler name into the registry key. An empty
// base yields the bare name.
func Key(basePath, name string) string {
	if basePath == "" {
		return name
	}
	return path.Join(basePath, name)
}

// Register adds a handler to the global registry under Key(basePath, name).
// Returns ErrAlreadyExists if the key is taken. Thread-safe for concurrent
// registration.
func Register(basePath, name string, h machine.Handler) error {
	if name == "" {
		return ErrEmptyName
	}
	if h == nil {
		return fmt.Errorf("lambda %s: handler is nil", Key(basePath, name))
	}

	register.mu.Lock()
	defer register.mu.Unlock()

	key := Key(basePath, name)
	if _, exists := register.entries[key]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, key)
	}

	register.entries[key] = h
	return nil
}

// Replace updates an existing handler. Returns ErrNotFound if the key is not
// registered. Thread-safe for concurrent access.
func Replace(basePath, name string, h machine.Handler) error {
	if name == "" {
		return ErrEmptyName
	}

	register.mu.Lock()
	defer register.mu.Unlock()

	key := Key(basePath, name)
	if _, exists := register.entries[key]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	register.entries[key] = h
	return nil
}

// Resolve returns the handler registered under Key(basePath, name).
func Resolve(basePath, name string) (machine.Handler, error) {
	register.mu.RLock()
	defer register.mu.RUnlock()

	key := Key(basePath, name)
	h, exists := register.entries[key]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return h, nil
}

// List returns the registered handler keys.
func List() []string {
	register.mu.RLock()
	defer register.mu.RUnlock()

	keys := make([]string, 0, len(register.entries))
	for key := range register.entries {
		keys = append(keys, key)
	}
	return keys
}

// Reset clears the registry. Intended for tests.
func Reset() {
	register.mu.Lock()
	defer register.mu.Unlock()
	register.entries = make(map[string]machine.Handler)
}
