package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error codes carried by AppError.
const (
	CodeConfig       = "CONFIG_ERROR"
	CodeProvider     = "PROVIDER_ERROR"
	CodeParse        = "PARSE_ERROR"
	CodeInvalidInput = "INVALID_INPUT"
	CodeOCRFailed    = "OCR_FAILED"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrMissingCredentials = errors.New("missing provider credentials")
	ErrProvider           = errors.New("provider error")
	ErrParse              = errors.New("malformed provider response")
	ErrDatabase           = errors.New("database error")
	ErrBothEnginesFailed  = errors.New("both OCR services failed to extract text")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// MissingCredentials is the configuration error returned by a provider call made without a key.
func MissingCredentials(envVar string) *AppError {
	return NewAppError(CodeConfig, envVar+" is not configured", ErrMissingCredentials)
}

// ProviderError wraps a transport or status failure from an external provider.
func ProviderError(provider string, cause error) *AppError {
	return NewAppError(CodeProvider, provider, errors.Join(ErrProvider, cause))
}

// ParseError wraps an undecodable or schema-invalid provider payload.
func ParseError(what string, cause error) *AppError {
	return NewAppError(CodeParse, what, errors.Join(ErrParse, cause))
}

// InvalidInput reports a rejected request before any provider is called.
func InvalidInput(message string) *AppError {
	return NewAppError(CodeInvalidInput, message, ErrInvalidInput)
}

// EnginesFailedError is the single fatal pipeline error: no engine produced
// text. It matches ErrBothEnginesFailed and unwraps to each engine's cause.
type EnginesFailedError struct {
	Engines []string
	Causes  []error
}

func (e *EnginesFailedError) Error() string {
	var b strings.Builder
	b.WriteString(ErrBothEnginesFailed.Error())
	for i, name := range e.Engines {
		if i == 0 {
			b.WriteString(" (")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(name)
		b.WriteString(": ")
		if i < len(e.Causes) && e.Causes[i] != nil {
			b.WriteString(e.Causes[i].Error())
		} else {
			b.WriteString("no text")
		}
		if i == len(e.Engines)-1 {
			b.WriteString(")")
		}
	}
	return b.String()
}

func (e *EnginesFailedError) Is(target error) bool { return target == ErrBothEnginesFailed }

func (e *EnginesFailedError) Unwrap() []error {
	out := make([]error, 0, len(e.Causes))
	for _, c := range e.Causes {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsConfigError reports whether err is a configuration error that must not be retried.
func IsConfigError(err error) bool {
	var ae *AppError
	return errors.As(err, &ae) && ae.Code == CodeConfig
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}

func InvalidArgumentErrorf(format string, args ...interface{}) error {
	return InvalidArgumentError(fmt.Sprintf(format, args...))
}

// GRPCError maps a pipeline error onto a gRPC status.
func GRPCError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case IsConfigError(err):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ErrBothEnginesFailed), errors.Is(err, ErrProvider):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// HTTPStatus maps a pipeline error onto an HTTP status code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case IsConfigError(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrBothEnginesFailed), errors.Is(err, ErrProvider):
		return http.StatusBadGateway
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
