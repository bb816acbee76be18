package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline failure. The kind, not the Go type
// of the cause, decides whether the orchestrator retries.
type ErrorKind string

const (
	KindFetch         ErrorKind = "FetchError"
	KindParse         ErrorKind = "ParseError"
	KindModel         ErrorKind = "ModelError"
	KindContentPolicy ErrorKind = "ContentPolicyError"
	KindEnrichment    ErrorKind = "EnrichmentError"
	KindImageNotFound ErrorKind = "ImageNotFoundError"
	KindLicense       ErrorKind = "LicenseError"
	KindAuth          ErrorKind = "AuthError"
	KindSubmit        ErrorKind = "SubmitError"
	KindConfig        ErrorKind = "ConfigError"
)

// Error carries the kind and the retryable/permanent classification
// made by the component that observed the failure.
type Error struct {
	Kind      ErrorKind
	Transient bool
	Message   string
	Cause     error
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

// Retryable reports whether the orchestrator may retry the stage.
func (e *Error) Retryable() bool {
	return e.Transient
}

// NewError builds a classified pipeline error.
func NewError(kind ErrorKind, transient bool, message string, cause error) *Error {
	return &Error{Kind: kind, Transient: transient, Message: message, Cause: cause}
}

// Errorf is NewError with a formatted message and no cause.
func Errorf(kind ErrorKind, transient bool, format string, args ...any) *Error {
	return &Error{Kind: kind, Transient: transient, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the error kind, or "" for unclassified errors.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsRetryable reports whether err was classified transient.
// Unclassified errors are not retried.
func IsRetryable(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Retryable()
	}
	return false
}
