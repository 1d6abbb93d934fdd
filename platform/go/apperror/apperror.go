package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error so the HTTP boundary can map it to a
// status code without inspecting message text.
type Kind string

const (
	KindAuth           Kind = "authentication"
	KindTenantNotFound Kind = "tenant_not_found"
	KindTenantInactive Kind = "tenant_inactive"
	KindPermission     Kind = "permission_denied"
	KindQuota          Kind = "quota_exceeded"
	KindConflict       Kind = "conflict"
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindConnection     Kind = "connection"
	KindInternal       Kind = "internal"
)

// Error is a tagged application error carrying an explicit HTTP status.
// It is propagated as an ordinary return value; no exception-style control flow.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an Error with the canonical status for the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Status: statusFor(kind), Message: message}
}

// Wrap attaches a cause to a new Error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Status: statusFor(kind), Message: message, Err: err}
}

func statusFor(kind Kind) int {
	switch kind {
	case KindAuth:
		return http.StatusUnauthorized
	case KindTenantNotFound, KindNotFound:
		return http.StatusNotFound
	case KindTenantInactive, KindPermission, KindQuota:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Shared constructors for the failures the core raises on many paths.
var (
	ErrAuthRequired = New(KindAuth, "authentication required")
	ErrInvalidToken = New(KindAuth, "invalid or expired token")
)

// AsError extracts an *Error from err's chain, if any.
func AsError(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// StatusOf returns the HTTP status for err, degrading unknown errors to 500.
func StatusOf(err error) int {
	if appErr, ok := AsError(err); ok {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
