package merge

import (
	"errors"
	"fmt"
)

// Kind classifies merge failures.
type Kind int

const (
	// KindUnknown is reported for errors that did not come from the merge engine.
	KindUnknown Kind = iota
	// KindInvalidInput means a part does not parse as a valid container.
	KindInvalidInput
	// KindDefinitionConflict means the destination rejected a dimension or
	// global attribute, which aborts the merge.
	KindDefinitionConflict
	// KindSerializationFailure means finalizing the destination failed or
	// produced no bytes.
	KindSerializationFailure
	// KindFormatMismatch means the parts declare different formats. It is
	// only ever logged and reported, never returned.
	KindFormatMismatch
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid input"
	case KindDefinitionConflict:
		return "definition conflict"
	case KindSerializationFailure:
		return "serialization failure"
	case KindFormatMismatch:
		return "format mismatch"
	default:
		return "unknown"
	}
}

// Error is a classified merge failure.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "open", "define dimension"
	Name string // part, dimension, variable or attribute involved
	Err  error
}

func (e *Error) Error() string {
	msg := "merge: " + e.Op
	if e.Name != "" {
		msg += fmt.Sprintf(" %q", e.Name)
	}
	msg += ": " + e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindUnknown
}
