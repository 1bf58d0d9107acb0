package v1

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/embedcore/internal/errs"
)

// statusForKind maps an error kind to an HTTP status code.
func statusForKind(kind errs.Kind) int {
	switch kind {
	case errs.KindInvalidInput, errs.KindInvalidArgument, errs.KindValidationFailed:
		return http.StatusBadRequest
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindCircuitOpen:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func httpError(c echo.Context, err error) error {
	status := statusForKind(errs.KindOf(err))
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.Path(), "error", err)
		return echo.NewHTTPError(status, http.StatusText(status))
	}
	return echo.NewHTTPError(status, err.Error())
}
