package acl

import "fmt"

// ImportFailureKind classifies why an import was rejected.
type ImportFailureKind string

const (
	// ParseFailure covers malformed JSON and missing required fields.
	ParseFailure ImportFailureKind = "parse"
	// ReferentialFailure covers bindings naming undefined roles or
	// roles naming undefined permissions.
	ReferentialFailure ImportFailureKind = "referential"
)

// ImportError reports a rejected import. The active graph is left
// untouched whenever one of these is returned.
type ImportError struct {
	Kind ImportFailureKind
	Err  error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("acl import (%s): %v", e.Kind, e.Err)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

func parseFailure(format string, args ...any) *ImportError {
	return &ImportError{Kind: ParseFailure, Err: fmt.Errorf(format, args...)}
}

func referentialFailure(format string, args ...any) *ImportError {
	return &ImportError{Kind: ReferentialFailure, Err: fmt.Errorf(format, args...)}
}
