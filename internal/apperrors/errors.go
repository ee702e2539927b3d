package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func InvalidArg(msg string) error {
	return New(CodeInvalidArgument, msg)
}

func NotFound(msg string) error {
	return New(CodeNotFound, msg)
}

func AlreadyExists(msg string) error {
	return New(CodeAlreadyExists, msg)
}

// Unauthenticated is fatal to the connection attempt that raised it.
func Unauthenticated(msg string) error {
	return New(CodeUnauthenticated, msg)
}

// Forbidden is never fatal; callers emit a scoped error and carry on.
func Forbidden(msg string) error {
	return New(CodeForbidden, msg)
}

// Integrity marks a plugin checksum or signature mismatch.
func Integrity(msg string) error {
	return New(CodeIntegrity, msg)
}

// Protected marks a delete attempt on the default channel/section or the
// everyone role.
func Protected(msg string) error {
	return New(CodeProtectedEntity, msg)
}

func Internal(msg string) error {
	return New(CodeInternal, msg)
}

// CodeOf extracts the taxonomy code from any error in the chain.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// HttpStatus maps a taxonomy code to the HTTP status handlers respond with.
func HttpStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyExists:
		return http.StatusConflict
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden, CodeProtectedEntity:
		return http.StatusForbidden
	case CodeIntegrity:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
