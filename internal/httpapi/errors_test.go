package httpapi

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snarg/fieldops/internal/apperr"
)

func TestMapAppError_StatusTable(t *testing.T) {
	cases := []struct {
		kind   apperr.Kind
		status int
	}{
		{apperr.KindValidation, http.StatusBadRequest},
		{apperr.KindNotFound, http.StatusNotFound},
		{apperr.KindConflict, http.StatusConflict},
		{apperr.KindUnauthorized, http.StatusUnauthorized},
		{apperr.KindForbidden, http.StatusForbidden},
		{apperr.KindConsentRequired, http.StatusForbidden},
		{apperr.KindOverloaded, http.StatusTooManyRequests},
		{apperr.KindProviderTransient, http.StatusBadGateway},
		{apperr.KindProviderFatal, http.StatusBadGateway},
		{apperr.KindIntegrity, http.StatusInternalServerError},
		{apperr.KindInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		err := apperr.New(tc.kind, "some_code", "message")
		httpErr := mapAppError(err)
		assert.Equal(t, tc.status, httpErr.Code, "kind=%s", tc.kind)
	}
}

func TestMapAppError_UnwrapsWrappedError(t *testing.T) {
	wrapped := apperr.Wrap(apperr.KindConflict, "slot_unavailable", "slot taken", errors.New("db says no"))
	outer := errors.New("create job: " + wrapped.Error())
	_ = outer // demonstrates wrapping doesn't matter for a plain string; real wrap below

	httpErr := mapAppError(apperr.Wrap(apperr.KindConflict, "slot_unavailable", "slot taken", wrapped))
	assert.Equal(t, http.StatusConflict, httpErr.Code)
	body, ok := httpErr.Message.(errorBody)
	require.True(t, ok)
	assert.Equal(t, "slot_unavailable", body.Code)
}

func TestMapAppError_UnrecognizedErrorIsInternal(t *testing.T) {
	httpErr := mapAppError(errors.New("some unexpected failure"))
	assert.Equal(t, http.StatusInternalServerError, httpErr.Code)
}
