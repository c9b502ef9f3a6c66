package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCategoriesWrap(t *testing.T) {
	req := require.New(t)

	req.ErrorIs(ErrTokenExpired, ErrAuthentication)
	req.ErrorIs(ErrTokenInvalid, ErrAuthentication)
	req.NotErrorIs(ErrTokenExpired, ErrTokenInvalid)
	req.ErrorIs(ErrAnnouncementForbidden, ErrAuthorization)
	req.ErrorIs(ErrUnknownReceiver, ErrValidation)
}

func TestPersistenceKeepsCause(t *testing.T) {
	req := require.New(t)
	cause := errors.New("connection refused")

	err := Persistence("create message", cause)

	req.ErrorIs(err, ErrPersistence)
	req.ErrorIs(err, cause)
	req.Equal("storage unavailable, please retry", PublicMessage(err))
	req.NoError(Persistence("noop", nil))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"expired", ErrTokenExpired, http.StatusUnauthorized},
		{"not member", ErrNotMember, http.StatusForbidden},
		{"validation", Validation(errors.New("content is required")), http.StatusBadRequest},
		{"not found", ErrGroupNotFound, http.StatusNotFound},
		{"conflict", ErrUserExists, http.StatusConflict},
		{"wrapped storage", fmt.Errorf("send: %w", Persistence("insert", errors.New("boom"))), http.StatusInternalServerError},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestPublicMessageHidesUnclassified(t *testing.T) {
	req := require.New(t)

	req.Equal("internal error", PublicMessage(errors.New("pq: relation does not exist")))
	req.Equal(ErrAnnouncementForbidden.Error(), PublicMessage(ErrAnnouncementForbidden))
}
