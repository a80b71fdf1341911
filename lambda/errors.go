package lambda

import "errors"

var (
	// ErrEmptyName is returned when registering a handler without a name.
	ErrEmptyName = errors.New("lambda name is empty")

	// ErrNotFound is returned when resolving a name no handler was
	// registered under.
	ErrNotFound = errors.New("lambda not found")

	// ErrAlreadyExists is returned when registering a name twice.
	ErrAlreadyExists = errors.New("lambda already registered")
)
