package service

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/99minutos/identity-service/internal/core/domain"
)

func TestRefreshTokens_Generate(t *testing.T) {
	kv := newStubKV()
	r := NewRefreshTokens(kv, 0)

	token, err := r.Generate(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil || len(raw) != refreshTokenBytes {
		t.Fatalf("expected %d random bytes, got %d (%v)", refreshTokenBytes, len(raw), err)
	}
	if kv.data["refreshtoken:u1"] != token {
		t.Errorf("token not stored under refreshtoken:u1")
	}
	if kv.ttls["refreshtoken:u1"] != DefaultRefreshTTL {
		t.Errorf("expected default ttl, got %s", kv.ttls["refreshtoken:u1"])
	}
}

func TestRefreshTokens_GenerateReplacesPrevious(t *testing.T) {
	r := NewRefreshTokens(newStubKV(), time.Hour)
	ctx := context.Background()

	old, _ := r.Generate(ctx, "u1")
	fresh, _ := r.Generate(ctx, "u1")

	if ok, _ := r.Validate(ctx, "u1", old); ok {
		t.Errorf("previous token must be invalid")
	}
	if ok, _ := r.Validate(ctx, "u1", fresh); !ok {
		t.Errorf("latest token must be valid")
	}
}

func TestRefreshTokens_ValidateAbsentIsNotError(t *testing.T) {
	r := NewRefreshTokens(newStubKV(), time.Hour)

	ok, err := r.Validate(context.Background(), "u1", "anything")
	if err != nil || ok {
		t.Fatalf("expected false without error, got %v %v", ok, err)
	}
}

func TestRefreshTokens_ConsumeIsSingleUse(t *testing.T) {
	r := NewRefreshTokens(newStubKV(), time.Hour)
	ctx := context.Background()
	token, _ := r.Generate(ctx, "u1")

	if err := r.Consume(ctx, "u1", "wrong"); !errors.Is(err, domain.ErrInvalidRefreshToken) {
		t.Fatalf("mismatch: expected ErrInvalidRefreshToken, got %v", err)
	}
	if err := r.Consume(ctx, "u1", token); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if err := r.Consume(ctx, "u1", token); !errors.Is(err, domain.ErrInvalidRefreshToken) {
		t.Fatalf("second consume: expected ErrInvalidRefreshToken, got %v", err)
	}
}

func TestRefreshTokens_RemoveIsIdempotent(t *testing.T) {
	r := NewRefreshTokens(newStubKV(), time.Hour)
	ctx := context.Background()
	_, _ = r.Generate(ctx, "u1")

	if err := r.Remove(ctx, "u1"); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	if err := r.Remove(ctx, "u1"); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}

func TestRefreshTokens_RevokeOnlyMatchingToken(t *testing.T) {
	r := NewRefreshTokens(newStubKV(), time.Hour)
	ctx := context.Background()

	old, _ := r.Generate(ctx, "u1")
	if current, found, err := r.Current(ctx, "u1"); err != nil || !found || current != old {
		t.Fatalf("expected current token %q, got %q found=%v err=%v", old, current, found, err)
	}
	fresh, _ := r.Generate(ctx, "u1")

	if err := r.Revoke(ctx, "u1", old); err != nil {
		t.Fatalf("revoke stale token: %v", err)
	}
	if ok, _ := r.Validate(ctx, "u1", fresh); !ok {
		t.Fatal("revoking a replaced token must keep the live one")
	}

	if err := r.Revoke(ctx, "u1", fresh); err != nil {
		t.Fatalf("revoke live token: %v", err)
	}
	if _, found, _ := r.Current(ctx, "u1"); found {
		t.Fatal("expected live token to be revoked")
	}
}
