package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	// KindConnection: store or engine unreachable. Fatal for the invocation.
	KindConnection ErrorKind = "ConnectionError"
	// KindStaging: the extract could not be read or typed.
	KindStaging ErrorKind = "StagingError"
	// KindUpsert: the merge failed and the batch was rolled back.
	KindUpsert ErrorKind = "UpsertError"
	// KindEngineInvocation: the Rule Engine failed or returned malformed output.
	KindEngineInvocation ErrorKind = "EngineInvocationError"
	// KindQuery: a read-only summary or detail query failed.
	KindQuery ErrorKind = "QueryError"
)

// Error is a classified pipeline failure.
type Error struct {
	Kind ErrorKind
	Op   string // operation that failed, e.g. "start refresh"
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError wraps err unless it is already classified.
func newError(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind ErrorKind) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}

// KindOf returns the classification of err, or "" if it has none.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

var (
	// ErrValidatorClosed is returned by a Validator used after Close.
	ErrValidatorClosed = errors.New("validator is closed")

	// ErrUnknownDataset is returned for a dataset key with no registration.
	ErrUnknownDataset = errors.New("unknown dataset")

	// ErrRefreshNotRunning is returned when closing a refresh record twice.
	ErrRefreshNotRunning = errors.New("refresh record is not running")

	// ErrTotalsMismatch is returned when an engine result's counts do not add up.
	ErrTotalsMismatch = errors.New("total rules does not equal failures + warnings + passes")
)
