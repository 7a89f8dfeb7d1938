// Package fault defines the closed set of error kinds reported by relocation
// and registration operations, so callers can branch on them programmatically.
package fault

import (
	"errors"
	"fmt"
)

// Kind is one of the closed set of error kinds.
type Kind string

// Error kinds.
const (
	NotFound           Kind = "NotFound"
	Ambiguous          Kind = "Ambiguous"
	Conflict           Kind = "Conflict"
	Unauthorized       Kind = "Unauthorized"
	CorruptionDetected Kind = "CorruptionDetected"
	TransferFailed     Kind = "TransferFailed"
	CatalogUnavailable Kind = "CatalogUnavailable"
	InvalidRequest     Kind = "InvalidRequest"
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{
	NotFound,
	Ambiguous,
	Conflict,
	Unauthorized,
	CorruptionDetected,
	TransferFailed,
	CatalogUnavailable,
	InvalidRequest,
}

// Valid reports whether k is a member of the enumeration.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Error implements error so a Kind can be used as a sentinel with errors.Is.
func (k Kind) Error() string {
	return string(k)
}

// Error is an error carrying a Kind. Op names the step that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a bare Kind target, so errors.Is(err, fault.Conflict) works.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New returns an Error of the given kind with a formatted message.
func New(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches kind to err. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost fault.Error in err's chain, or
// the empty Kind when err carries none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
