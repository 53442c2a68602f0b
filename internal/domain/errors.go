package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to react to it
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindNotFound
	KindStorageFailure
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindStorageFailure:
		return "storage_failure"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

var (
	// ErrUnsupportedPieceCount is returned when a piece count is outside SupportedPieceCounts
	ErrUnsupportedPieceCount = errors.New("unsupported piece count")

	// ErrJobNotFound is returned when a job cannot be found for the requested key
	ErrJobNotFound = errors.New("job not found")

	// ErrSourceNotAssigned is returned when decomposition is requested before an upload target exists
	ErrSourceNotAssigned = errors.New("source object not assigned")

	// ErrInvalidTransition is returned when a job's current status does not allow the requested one
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Error carries a Kind alongside the operation that failed
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with kind and op. A nil err yields nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// InvalidInput builds a KindInvalidInput error from a format string
func InvalidInput(op, format string, args ...any) error {
	return &Error{Kind: KindInvalidInput, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of the outermost *Error in err's chain, or KindUnknown
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
