package domain

import (
	"errors"
	"time"
)

var (
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrAccountLockedTemporary = errors.New("account temporarily locked")
	ErrAccountLockedPermanent = errors.New("account locked")
	ErrInvalidRefreshToken    = errors.New("invalid refresh token, re-authenticate")
	ErrStoreUnavailable       = errors.New("store unavailable")
	ErrConfiguration          = errors.New("invalid configuration")
	ErrRevocationRejected     = errors.New("token revoked")
)

// Credential store errors.
var (
	ErrUserNotFound     = errors.New("user not found")
	ErrUserExists       = errors.New("user already exists")
	ErrConcurrentUpdate = errors.New("concurrent update")
)

// LockoutError is returned by login and refresh while an account is locked.
type LockoutError struct {
	Permanent bool
	Until     time.Time
}

func (e *LockoutError) Error() string {
	if e.Permanent {
		return ErrAccountLockedPermanent.Error()
	}
	return ErrAccountLockedTemporary.Error()
}

func (e *LockoutError) Unwrap() error {
	if e.Permanent {
		return ErrAccountLockedPermanent
	}
	return ErrAccountLockedTemporary
}

// RetryAfter returns the remaining lockout time at now, rounded up to the
// second. Permanent lockouts return zero.
func (e *LockoutError) RetryAfter(now time.Time) time.Duration {
	if e.Permanent || !e.Until.After(now) {
		return 0
	}
	remaining := e.Until.Sub(now)
	if rem := remaining % time.Second; rem != 0 {
		remaining += time.Second - rem
	}
	return remaining
}
