package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// Context keys set by Auth.
const (
	ContextUserID  = "user_id"
	ContextRoles   = "roles"
	ContextTokenID = "token_id"
	ContextClaims  = "claims"
)

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. ok is false when the header is absent or malformed.
func bearerToken(c echo.Context) (token string, ok bool) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
