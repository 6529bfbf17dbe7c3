package ports

import (
	"context"

	"github.com/99minutos/identity-service/internal/core/domain"
)

// CredentialStore is the identity store capability consumed by the auth core.
// Implementations must be safe for concurrent use and return
// domain.ErrUserNotFound for unknown users.
type CredentialStore interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	// FindSecurityStamp loads only the current stamp of the user.
	FindSecurityStamp(ctx context.Context, id string) (string, error)
	VerifyPassword(ctx context.Context, user *domain.User, plaintext string) (bool, error)

	GetFailedAttemptCount(ctx context.Context, user *domain.User) (int, error)
	// IncrementFailedAttempt atomically bumps the counter and returns the new value.
	IncrementFailedAttempt(ctx context.Context, user *domain.User) (int, error)
	ResetFailedAttemptCount(ctx context.Context, user *domain.User) error
	// SetLockout persists lockout; the zero Lockout clears both fields.
	SetLockout(ctx context.Context, user *domain.User, lockout domain.Lockout) error

	// RotateSecurityStamp replaces the stamp and returns the new one.
	RotateSecurityStamp(ctx context.Context, user *domain.User) (string, error)
	GetRoles(ctx context.Context, user *domain.User) ([]string, error)
	UpdateCredential(ctx context.Context, user *domain.User, newHash string) error
}

// PasswordHasher produces the stored form of a new password.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
}

// LockoutPolicyProvider supplies the lockout thresholds. It is consulted on
// every login attempt, never cached.
type LockoutPolicyProvider interface {
	LockoutPolicy(ctx context.Context) domain.LockoutPolicy
}
