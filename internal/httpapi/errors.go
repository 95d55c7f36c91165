package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/snarg/fieldops/internal/apperr"
)

// mapAppError maps an apperr.Kind to the HTTP status table in §7, grounded
// on the teacher's errors.go dispatch pattern generalized from a fixed set
// of sentinel checks to the taxonomy's Kind enum.
func mapAppError(err error) *echo.HTTPError {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		slog.Error("unexpected internal error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, errorBody{Detail: "internal server error", Code: "internal"})
	}

	status := http.StatusInternalServerError
	switch appErr.Kind {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindUnauthorized:
		status = http.StatusUnauthorized
	case apperr.KindForbidden, apperr.KindConsentRequired:
		status = http.StatusForbidden
	case apperr.KindOverloaded:
		status = http.StatusTooManyRequests
	case apperr.KindProviderTransient, apperr.KindProviderFatal:
		status = http.StatusBadGateway
	case apperr.KindIntegrity, apperr.KindInternal:
		status = http.StatusInternalServerError
	}

	body := errorBody{Detail: appErr.Message, Code: appErr.Code}
	if body.Code == "" {
		body.Code = string(appErr.Kind)
	}
	if appErr.Field != "" {
		body.Field = appErr.Field
	}
	return echo.NewHTTPError(status, body)
}

// errorBody is the §7 error envelope: {detail, code, field?}.
type errorBody struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
	Field  string `json:"field,omitempty"`
}
