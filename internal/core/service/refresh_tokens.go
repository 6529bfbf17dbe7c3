package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/99minutos/identity-service/internal/core/domain"
	"github.com/99minutos/identity-service/internal/core/ports"
)

const (
	DefaultRefreshTTL  = 4 * time.Hour
	refreshTokenBytes  = 64
	refreshTokenPrefix = "refreshtoken:"
)

// RefreshTokens manages the single live refresh token of each user.
// Key format: refreshtoken:<user_id>
type RefreshTokens struct {
	kv  ports.KeyValueStore
	ttl time.Duration
}

// NewRefreshTokens wraps kv. A non-positive ttl falls back to DefaultRefreshTTL.
func NewRefreshTokens(kv ports.KeyValueStore, ttl time.Duration) *RefreshTokens {
	if ttl <= 0 {
		ttl = DefaultRefreshTTL
	}
	return &RefreshTokens{kv: kv, ttl: ttl}
}

// Generate creates a new token for userID, replacing any previous one.
func (r *RefreshTokens) Generate(ctx context.Context, userID string) (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	token := base64.StdEncoding.EncodeToString(b)

	if err := r.kv.Set(ctx, refreshKey(userID), token, r.ttl); err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}
	return token, nil
}

// Validate reports whether candidate is the live token of userID. An absent
// token is not an error.
func (r *RefreshTokens) Validate(ctx context.Context, userID, candidate string) (bool, error) {
	if userID == "" || candidate == "" {
		return false, nil
	}
	stored, found, err := r.kv.Get(ctx, refreshKey(userID))
	if err != nil {
		return false, fmt.Errorf("load refresh token: %w", err)
	}
	if !found {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1, nil
}

// Consume deletes candidate if and only if it is the live token of userID.
// Of several concurrent calls with the same token at most one succeeds.
func (r *RefreshTokens) Consume(ctx context.Context, userID, candidate string) error {
	if userID == "" || candidate == "" {
		return domain.ErrInvalidRefreshToken
	}
	deleted, err := r.kv.CompareAndDelete(ctx, refreshKey(userID), candidate)
	if err != nil {
		return fmt.Errorf("consume refresh token: %w", err)
	}
	if !deleted {
		return domain.ErrInvalidRefreshToken
	}
	return nil
}

// Current returns the live token of userID, if any.
func (r *RefreshTokens) Current(ctx context.Context, userID string) (string, bool, error) {
	token, found, err := r.kv.Get(ctx, refreshKey(userID))
	if err != nil {
		return "", false, fmt.Errorf("load refresh token: %w", err)
	}
	return token, found, nil
}

// Revoke deletes token only while it is still the live token of userID, so a
// token issued afterwards survives. A mismatch or missing token is success.
func (r *RefreshTokens) Revoke(ctx context.Context, userID, token string) error {
	if _, err := r.kv.CompareAndDelete(ctx, refreshKey(userID), token); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// Remove deletes the token of userID. A missing token is success.
func (r *RefreshTokens) Remove(ctx context.Context, userID string) error {
	if _, err := r.kv.Delete(ctx, refreshKey(userID)); err != nil {
		return fmt.Errorf("remove refresh token: %w", err)
	}
	return nil
}

func refreshKey(userID string) string {
	return refreshTokenPrefix + userID
}
