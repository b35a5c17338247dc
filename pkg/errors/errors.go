// Package errors defines the failure taxonomy shared by the indexing
// pipeline and the retrieval engine. Callers wrap these sentinels with
// fmt.Errorf("...: %w") so errors.Is works through every layer.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrMalformedIndex        = errors.New("malformed index")
	ErrIOFailure             = errors.New("i/o failure")
	ErrPreconditionViolation = errors.New("precondition violation")
	ErrInvalidInput          = errors.New("invalid input")
)

// Exit codes returned by the CLI for each error class.
const (
	ExitOK           = 0
	ExitInternal     = 1
	ExitNotFound     = 2
	ExitMalformed    = 3
	ExitIO           = 4
	ExitPrecondition = 5
	ExitUsage        = 64
)

type AppError struct {
	Err     error
	Op      string
	Message string
}

func (e *AppError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, op string, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Op:      op,
		Message: message,
	}
}

func Newf(sentinel error, op string, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// IOf wraps a filesystem error as ErrIOFailure while keeping the cause
// reachable through errors.Is / errors.As.
func IOf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", fmt.Sprintf(format, args...), ErrIOFailure, err)
}

// ExitCode maps an error to the process exit status used by the CLI.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrNotFound):
		return ExitNotFound
	case errors.Is(err, ErrMalformedIndex):
		return ExitMalformed
	case errors.Is(err, ErrIOFailure):
		return ExitIO
	case errors.Is(err, ErrPreconditionViolation):
		return ExitPrecondition
	case errors.Is(err, ErrInvalidInput):
		return ExitUsage
	default:
		return ExitInternal
	}
}
