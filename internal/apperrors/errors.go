// Package apperrors defines the error categories shared by the relay and the
// HTTP surface. Specific errors wrap exactly one category so callers can
// classify with errors.Is.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Categories.
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrAuthorization  = errors.New("access denied")
	ErrValidation     = errors.New("validation failed")
	ErrPersistence    = errors.New("storage failure")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
)

var (
	ErrMissingToken = fmt.Errorf("%w: missing token", ErrAuthentication)
	ErrTokenExpired = fmt.Errorf("%w: token expired", ErrAuthentication)
	ErrTokenInvalid = fmt.Errorf("%w: invalid token", ErrAuthentication)

	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", ErrAuthentication)

	ErrNotMember             = fmt.Errorf("%w: not a member of this group", ErrAuthorization)
	ErrAnnouncementForbidden = fmt.Errorf("%w: only admins can post announcements", ErrAuthorization)
	ErrCannotManageGroup     = fmt.Errorf("%w: only owners and admins can manage members", ErrAuthorization)

	ErrUnknownEvent    = fmt.Errorf("%w: unknown event", ErrValidation)
	ErrMalformedFrame  = fmt.Errorf("%w: malformed payload", ErrValidation)
	ErrUnknownReceiver = fmt.Errorf("%w: receiver does not exist", ErrValidation)

	ErrUserNotFound    = fmt.Errorf("%w: user", ErrNotFound)
	ErrGroupNotFound   = fmt.Errorf("%w: group", ErrNotFound)
	ErrMessageNotFound = fmt.Errorf("%w: message", ErrNotFound)

	ErrMembershipNotFound = fmt.Errorf("%w: membership", ErrNotFound)

	ErrUserExists   = fmt.Errorf("%w: user with this email already exists", ErrConflict)
	ErrMemberExists = fmt.Errorf("%w: user is already a member", ErrConflict)
)

// Validation wraps a field-level failure into the validation category.
func Validation(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

// Persistence wraps a storage failure, keeping the cause for logs.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// HTTPStatus maps an error to the status code the HTTP surface answers with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text safe to show a client. Storage and
// unclassified failures never leak their cause.
func PublicMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPersistence):
		return "storage unavailable, please retry"
	case errors.Is(err, ErrAuthentication), errors.Is(err, ErrAuthorization),
		errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
		return err.Error()
	default:
		return "internal error"
	}
}
