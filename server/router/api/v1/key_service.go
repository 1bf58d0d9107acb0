package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RotateKey replaces the caller's obfuscation key. Key material is never
// returned, and existing records are not re-obfuscated.
func (s *APIV1Service) RotateKey(c echo.Context) error {
	userID := currentUserID(c)
	if _, err := s.Vault.RotateKey(c.Request().Context(), userID); err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"rotated": true})
}
