package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/identity-service/internal/core/domain"
	"github.com/99minutos/identity-service/internal/core/service"
)

var testSecret = strings.Repeat("s", service.MinSigningSecretLength)

func newIssuer(t *testing.T) *service.TokenIssuer {
	t.Helper()
	issuer, err := service.NewTokenIssuer(service.IssuerConfig{
		Secret:        testSecret,
		Issuer:        "identity-service",
		Audience:      "identity-clients",
		ExpiryMinutes: 15,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	return issuer
}

func runAuth(t *testing.T, issuer *service.TokenIssuer, header string, next echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := Auth(issuer)(next)(c)
	if err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec, err
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	issuer := newIssuer(t)
	token, _, err := issuer.Issue(&domain.User{
		ID:            "u1",
		Roles:         []string{domain.RoleAdmin},
		SecurityStamp: "stamp",
	})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	called := false
	rec, err := runAuth(t, issuer, "Bearer "+token, func(c echo.Context) error {
		called = true
		if c.Get(ContextUserID) != "u1" {
			t.Fatalf("user_id not set")
		}
		roles, _ := c.Get(ContextRoles).([]string)
		if len(roles) != 1 || roles[0] != domain.RoleAdmin {
			t.Fatalf("roles not set: %v", roles)
		}
		if id, _ := c.Get(ContextTokenID).(string); id == "" {
			t.Fatalf("token_id not set")
		}
		return c.NoContent(http.StatusOK)
	})

	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !called {
		t.Fatalf("next not called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	issuer := newIssuer(t)

	hs256, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"iss": "identity-service",
		"aud": "identity-clients",
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	cases := map[string]string{
		"missing header":  "",
		"wrong scheme":    "Token abc",
		"garbage token":   "Bearer not.a.jwt",
		"wrong algorithm": "Bearer " + hs256,
		"empty bearer":    "Bearer ",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			rec, _ := runAuth(t, issuer, header, func(c echo.Context) error {
				t.Fatalf("should not reach next")
				return nil
			})
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
		})
	}
}
