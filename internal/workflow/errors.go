package workflow

import (
	"errors"
	"fmt"
)

// Kind classifies a node failure for the containment wrapper. The split keeps
// "should never happen" defects apart from expected occasional failures.
type Kind int

const (
	// KindTransient failures are swallowed by the containment wrapper and
	// retried by the threshold router. This is the default for unclassified
	// errors.
	KindTransient Kind = iota
	// KindValidation marks schema or validation failures, for example a model
	// response that could not be parsed into its declared shape.
	KindValidation
	// KindProgramming marks programmer defects (nil delegates, impossible
	// states, runtime misuse). These must reach the caller.
	KindProgramming
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindProgramming:
		return "programming"
	default:
		return "transient"
	}
}

// Error tags an underlying error with a containment kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s error: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Validation wraps err as a validation failure.
func Validation(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindValidation, Err: err}
}

// Programming wraps err as a programmer defect.
func Programming(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindProgramming, Err: err}
}

// Transient wraps err as a recoverable failure. Untagged errors are already
// treated as transient; this exists for callers that want to be explicit.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindTransient, Err: err}
}

// KindOf reports the containment kind of err. Errors without a tag anywhere
// in their chain are transient.
func KindOf(err error) Kind {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return KindTransient
}

// AbortError is returned by the threshold router once a workflow's error
// budget is exhausted. It is fatal: the workflow halts and the error must
// surface to the operator.
type AbortError struct {
	Agent     string
	Count     int
	Threshold int
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("agent %q: error threshold exceeded: %d errors (threshold %d), halting workflow",
		e.Agent, e.Count, e.Threshold)
}

// IsAbort reports whether err carries a workflow abort.
func IsAbort(err error) bool {
	var ae *AbortError
	return errors.As(err, &ae)
}

// Policy decides which failure kinds escalate out of the containment wrapper
// instead of being swallowed. The boundary is configurable rather than fixed:
// callers with a different notion of "framework misuse" can supply their own.
type Policy struct {
	Escalate func(err error) bool
}

// DefaultPolicy escalates validation and programming errors and swallows
// everything else.
func DefaultPolicy() Policy {
	return Policy{
		Escalate: func(err error) bool {
			switch KindOf(err) {
			case KindValidation, KindProgramming:
				return true
			default:
				return false
			}
		},
	}
}
