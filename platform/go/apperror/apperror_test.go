package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		kind   Kind
		status int
	}{
		{KindAuth, http.StatusUnauthorized},
		{KindTenantNotFound, http.StatusNotFound},
		{KindNotFound, http.StatusNotFound},
		{KindTenantInactive, http.StatusForbidden},
		{KindPermission, http.StatusForbidden},
		{KindQuota, http.StatusForbidden},
		{KindConflict, http.StatusConflict},
		{KindValidation, http.StatusBadRequest},
		{KindConnection, http.StatusInternalServerError},
		{KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			require.Equal(t, tt.status, New(tt.kind, "x").Status)
		})
	}
}

func TestWrapPreservesChain(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindConnection, "tenant store unavailable", cause)

	require.ErrorIs(t, err, cause)

	appErr, ok := AsError(fmt.Errorf("handling request: %w", err))
	require.True(t, ok)
	require.Equal(t, KindConnection, appErr.Kind)
}

func TestStatusOfUnknownError(t *testing.T) {
	require.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("boom")))
	require.Equal(t, http.StatusUnauthorized, StatusOf(ErrAuthRequired))
}
