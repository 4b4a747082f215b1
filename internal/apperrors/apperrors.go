// Package apperrors defines the application's error taxonomy (spec.md §7):
// ConfigError, LaunchError, OperationError, ShutdownError, IoError and
// SerialisationError, each carrying a human-readable message and a causal
// chain via github.com/pkg/errors.
package apperrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is a short, stable string identifying an error's category, suitable
// for embedding in a JSON report without a stack trace.
type Kind string

const (
	KindConfig        Kind = "config_error"
	KindLaunch        Kind = "launch_error"
	KindOperation     Kind = "operation_error"
	KindShutdown      Kind = "shutdown_error"
	KindIO            Kind = "io_error"
	KindSerialisation Kind = "serialisation_error"
)

// LaunchErrorKind refines a LaunchError (spec.md §4.4).
type LaunchErrorKind string

const (
	LaunchSpawn            LaunchErrorKind = "spawn"
	LaunchReadinessTimeout LaunchErrorKind = "readiness_timeout"
	LaunchExitStatus       LaunchErrorKind = "exit_status"
)

// OperationErrorKind refines an OperationError (spec.md §4.2/§7).
type OperationErrorKind string

const (
	OperationTimeout    OperationErrorKind = "timeout"
	OperationTransport  OperationErrorKind = "transport"
	OperationHTTP       OperationErrorKind = "http"
	OperationValidation OperationErrorKind = "validation"
)

// AppError is the common shape of every error this application raises
// deliberately: a Kind, a message and an optional wrapped cause.
type AppError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

func newf(kind Kind, cause error, format string, args ...interface{}) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// ConfigError wraps a configuration validation or parsing failure.
func ConfigError(cause error, format string, args ...interface{}) *AppError {
	return newf(KindConfig, cause, format, args...)
}

// LaunchError wraps a server launch failure of the given refined kind.
func LaunchError(kind LaunchErrorKind, cause error, format string, args ...interface{}) *AppError {
	err := newf(KindLaunch, cause, format, args...)
	err.Message = fmt.Sprintf("[%s] %s", kind, err.Message)
	return err
}

// OperationError wraps a single iteration's classified failure.
func OperationError(kind OperationErrorKind, cause error, format string, args ...interface{}) *AppError {
	err := newf(KindOperation, cause, format, args...)
	err.Message = fmt.Sprintf("[%s] %s", kind, err.Message)
	return err
}

// ShutdownError wraps a teardown failure. It is always logged and recorded,
// never allowed to mask earlier results.
func ShutdownError(cause error, format string, args ...interface{}) *AppError {
	return newf(KindShutdown, cause, format, args...)
}

// IOError wraps a filesystem or child-process I/O failure.
func IOError(cause error, format string, args ...interface{}) *AppError {
	return newf(KindIO, cause, format, args...)
}

// SerialisationError wraps a report-encoding failure.
func SerialisationError(cause error, format string, args ...interface{}) *AppError {
	return newf(KindSerialisation, cause, format, args...)
}

// Wrap re-exports github.com/pkg/errors.Wrap so callers that need a plain
// causal-chain wrap (without a Kind) don't need a second import.
func Wrap(err error, message string) error { return errors.Wrap(err, message) }

// Cause re-exports github.com/pkg/errors.Cause.
func Cause(err error) error { return errors.Cause(err) }
