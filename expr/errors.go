package expr

import (
	"errors"
	"fmt"
)

// Sentinel errors for compilation and cache lookups.
var (
	ErrMalformedStatement = errors.New("malformed statement")
	ErrUnknownTag         = errors.New("unknown state tag")
	ErrInvalidOperator    = errors.New("invalid operator")
	ErrCacheMiss          = errors.New("compiled artifact not cached")
)

// SyntaxError reports a compile-time failure in a single statement. It wraps
// one of the sentinel errors above so callers can classify with errors.Is.
type SyntaxError struct {
	Statement string // normalized statement text
	Pos       int    // byte offset into the normalized statement
	Err       error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("statement %q at offset %d: %v", e.Statement, e.Pos, e.Err)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}
