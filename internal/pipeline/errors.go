package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	// KindRetrieval means embedding or the vector index failed.
	KindRetrieval Kind = "retrieval"
	// KindGeneration means the completion provider failed.
	KindGeneration Kind = "generation"
	// KindValidation means the request or the generated SQL was rejected.
	// It reflects model output or caller input, so retrying does not help.
	KindValidation Kind = "validation"
)

// Retryable reports whether a caller may retry the same request.
func (k Kind) Retryable() bool {
	return k == KindRetrieval || k == KindGeneration
}

// Error is returned by Service for every failed request.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	// Details holds the validator's errors, in order, for validation failures.
	Details []string
	// SQLRejected is set when the model's SQL failed validation, as opposed
	// to the request itself being invalid.
	SQLRejected bool
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf returns the kind of a pipeline error, or "" for any other error.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ""
}

// SafeMessage returns a description of err that is safe to show clients.
// Internal causes are never included.
func SafeMessage(err error) string {
	var perr *Error
	if !errors.As(err, &perr) {
		return "Internal server error"
	}
	switch perr.Kind {
	case KindRetrieval:
		return "Failed to retrieve schema context"
	case KindGeneration:
		return "Failed to generate SQL"
	case KindValidation:
		return perr.Message
	default:
		return "Internal server error"
	}
}

func retrievalError(err error) *Error {
	return &Error{Kind: KindRetrieval, Message: "schema retrieval failed", Cause: err}
}

func generationError(err error) *Error {
	return &Error{Kind: KindGeneration, Message: "SQL generation failed", Cause: err}
}

func requestError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Details: []string{msg}}
}

func rejectedSQL(errs []string) *Error {
	details := make([]string, len(errs))
	copy(details, errs)
	return &Error{Kind: KindValidation, Message: "Generated SQL failed validation", Details: details, SQLRejected: true}
}
