package service

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/99minutos/identity-service/internal/core/domain"
)

const (
	// MinSigningSecretLength is the HS512 key size in bytes.
	MinSigningSecretLength = 64
	DefaultExpiryMinutes   = 15
	clockSkew              = 30 * time.Second
	tokenIDBytes           = 32
)

// IssuerConfig holds the signing settings of the access token issuer.
type IssuerConfig struct {
	Secret        string
	Issuer        string
	Audience      string
	ExpiryMinutes int
}

// TokenIssuer signs and verifies HS512 access tokens.
type TokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
	expiry   time.Duration
	now      func() time.Time
}

// NewTokenIssuer validates cfg and returns an issuer. A weak or missing
// secret, issuer or audience is a domain.ErrConfiguration.
func NewTokenIssuer(cfg IssuerConfig, log zerolog.Logger) (*TokenIssuer, error) {
	if len(cfg.Secret) < MinSigningSecretLength {
		return nil, fmt.Errorf("token issuer: %w: signing secret must be at least %d bytes", domain.ErrConfiguration, MinSigningSecretLength)
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, fmt.Errorf("token issuer: %w: issuer and audience are required", domain.ErrConfiguration)
	}
	minutes := cfg.ExpiryMinutes
	if minutes <= 0 {
		log.Warn().Int("default_minutes", DefaultExpiryMinutes).Msg("access token expiry not configured, using default")
		minutes = DefaultExpiryMinutes
	}

	return &TokenIssuer{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		expiry:   time.Duration(minutes) * time.Minute,
		now:      time.Now,
	}, nil
}

// Expiry returns the configured access token lifetime.
func (t *TokenIssuer) Expiry() time.Duration { return t.expiry }

// Issue signs an access token for user. It has no side effects.
func (t *TokenIssuer) Issue(user *domain.User) (string, time.Time, error) {
	if t == nil || len(t.secret) < MinSigningSecretLength || t.expiry <= 0 {
		return "", time.Time{}, fmt.Errorf("issue token: %w: issuer not configured", domain.ErrConfiguration)
	}

	jti, err := newTokenID()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("issue token: %w", err)
	}

	now := t.now().UTC()
	expiresAt := now.Add(t.expiry)
	roles := make([]string, len(user.Roles))
	copy(roles, user.Roles)

	claims := domain.AccessClaims{
		Roles:         roles,
		SecurityStamp: user.SecurityStamp,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   user.ID,
			Issuer:    t.issuer,
			Audience:  jwt.ClaimStrings{t.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-clockSkew)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("issue token: sign: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature, algorithm, issuer, audience and time claims.
func (t *TokenIssuer) Verify(token string) (*domain.AccessClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithAudience(t.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(t.now),
	)

	claims := &domain.AccessClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return claims, nil
}

// Decode parses token without verifying its signature or time claims.
func Decode(token string) (*domain.AccessClaims, error) {
	claims := &domain.AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func newTokenID() (string, error) {
	b := make([]byte, tokenIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("token id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
