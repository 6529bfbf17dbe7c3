package middleware

import (
	"context"

	"github.com/labstack/echo/v4"
)

// RevocationChecker decides whether a bearer token is still honoured.
type RevocationChecker interface {
	CheckRevocation(ctx context.Context, bearerToken string) error
}

// Revocation rejects requests whose token belongs to a terminated session.
// Requests without a bearer token pass through; Auth rejects them.
func Revocation(checker RevocationChecker) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := bearerToken(c)
			if !ok {
				return next(c)
			}
			if err := checker.CheckRevocation(c.Request().Context(), token); err != nil {
				return err
			}
			return next(c)
		}
	}
}
