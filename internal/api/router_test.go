package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/identity-service/internal/api/handler"
	"github.com/99minutos/identity-service/internal/core/domain"
	"github.com/99minutos/identity-service/internal/core/ports"
	"github.com/99minutos/identity-service/internal/core/service"
)

type routerAuthService struct {
	revoked map[string]bool
	resets  []string
}

func (s *routerAuthService) Register(context.Context, ports.RegisterInput) (*domain.User, error) {
	return nil, domain.ErrUserExists
}

func (s *routerAuthService) Login(_ context.Context, email, _ string) (*domain.TokenPair, error) {
	switch email {
	case "locked@example.com":
		return nil, &domain.LockoutError{Until: time.Now().Add(time.Minute)}
	case "down@example.com":
		return nil, fmt.Errorf("login: %w", domain.ErrStoreUnavailable)
	}
	return nil, domain.ErrInvalidCredentials
}

func (s *routerAuthService) RefreshToken(context.Context, string, string) (*domain.TokenPair, error) {
	return nil, domain.ErrInvalidRefreshToken
}

func (s *routerAuthService) Logout(context.Context, string) error { return nil }

func (s *routerAuthService) ChangePassword(context.Context, string, string, string) error {
	return nil
}

func (s *routerAuthService) ResetPassword(_ context.Context, userID, _ string) error {
	s.resets = append(s.resets, userID)
	return nil
}

func (s *routerAuthService) CheckRevocation(_ context.Context, token string) error {
	if s.revoked[token] {
		return fmt.Errorf("%w: stamp mismatch", domain.ErrRevocationRejected)
	}
	return nil
}

// The router registers Prometheus collectors globally, so it is built once.
func TestRouter(t *testing.T) {
	issuer, err := service.NewTokenIssuer(service.IssuerConfig{
		Secret:        strings.Repeat("r", service.MinSigningSecretLength),
		Issuer:        "identity-service",
		Audience:      "identity-clients",
		ExpiryMinutes: 15,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	issue := func(id string, roles ...string) string {
		token, _, err := issuer.Issue(&domain.User{ID: id, Roles: roles, SecurityStamp: "s"})
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		return token
	}

	userToken := issue("u1", domain.RoleUser)
	adminToken := issue("a1", domain.RoleAdmin)
	revokedToken := issue("u2", domain.RoleUser)

	svc := &routerAuthService{revoked: map[string]bool{revokedToken: true}}
	e := NewRouter(Dependencies{
		AuthService: svc,
		Verifier:    issuer,
		Health:      map[string]handler.Pinger{},
		Log:         zerolog.Nop(),
	})

	do := func(method, path, token, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		code   int
	}{
		{"liveness", http.MethodGet, "/health", "", "", http.StatusOK},
		{"readiness", http.MethodGet, "/health/ready", "", "", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", "", http.StatusOK},
		{"wrong password", http.MethodPost, "/auth/login", "", `{"email":"x@example.com","password":"pw"}`, http.StatusUnauthorized},
		{"locked", http.MethodPost, "/auth/login", "", `{"email":"locked@example.com","password":"pw"}`, http.StatusForbidden},
		{"store down", http.MethodPost, "/auth/login", "", `{"email":"down@example.com","password":"pw"}`, http.StatusServiceUnavailable},
		{"duplicate register", http.MethodPost, "/auth/register", "", `{"email":"x@example.com","password":"long-enough"}`, http.StatusConflict},
		{"stale refresh", http.MethodPost, "/auth/refresh", "", `{"user_id":"u1","refresh_token":"old"}`, http.StatusUnauthorized},
		{"me without token", http.MethodGet, "/auth/me", "", "", http.StatusUnauthorized},
		{"me", http.MethodGet, "/auth/me", userToken, "", http.StatusOK},
		{"me revoked", http.MethodGet, "/auth/me", revokedToken, "", http.StatusUnauthorized},
		{"logout", http.MethodPost, "/auth/logout", userToken, "", http.StatusNoContent},
		{"reset as user", http.MethodPost, "/auth/password/reset", userToken, `{"user_id":"u9","new_password":"brand-new-pw"}`, http.StatusForbidden},
		{"reset as admin", http.MethodPost, "/auth/password/reset", adminToken, `{"user_id":"u9","new_password":"brand-new-pw"}`, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(tc.method, tc.path, tc.token, tc.body)
			if rec.Code != tc.code {
				t.Fatalf("%s %s: expected %d, got %d (%s)", tc.method, tc.path, tc.code, rec.Code, rec.Body.String())
			}
		})
	}

	if len(svc.resets) != 1 || svc.resets[0] != "u9" {
		t.Fatalf("expected exactly one admin reset for u9, got %v", svc.resets)
	}
	if rec := do(http.MethodPost, "/auth/login", "", `{"email":"locked@example.com","password":"pw"}`); rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After on temporary lockout")
	}
}
