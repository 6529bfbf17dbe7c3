package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/99minutos/identity-service/internal/core/domain"
	"github.com/99minutos/identity-service/internal/core/ports"
	"github.com/99minutos/identity-service/internal/pkg/metrics"
)

const defaultStoreTimeout = 3 * time.Second

// AuthDeps groups the collaborators of AuthService.
type AuthDeps struct {
	Store   ports.CredentialStore
	Hasher  ports.PasswordHasher
	Issuer  *TokenIssuer
	Refresh *RefreshTokens
	Policy  ports.LockoutPolicyProvider
	Tasks   ports.TaskQueue
	// StoreTimeout bounds the store calls of a single operation.
	StoreTimeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// AuthService implements login with progressive lockout, refresh token
// rotation, session termination and the revocation check.
type AuthService struct {
	store   ports.CredentialStore
	hasher  ports.PasswordHasher
	issuer  *TokenIssuer
	refresh *RefreshTokens
	policy  ports.LockoutPolicyProvider
	tasks   ports.TaskQueue
	timeout time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

func NewAuthService(deps AuthDeps, log zerolog.Logger) *AuthService {
	timeout := deps.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		store:   deps.Store,
		hasher:  deps.Hasher,
		issuer:  deps.Issuer,
		refresh: deps.Refresh,
		policy:  deps.Policy,
		tasks:   deps.Tasks,
		timeout: timeout,
		now:     now,
		log:     log,
	}
}

func (s *AuthService) Register(ctx context.Context, input ports.RegisterInput) (*domain.User, error) {
	email := normalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}
	roles := input.Roles
	if len(roles) == 0 {
		roles = []string{domain.RoleUser}
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := s.now().UTC()
	created, err := s.store.Create(ctx, &domain.User{
		Email:        email,
		PasswordHash: hash,
		Roles:        roles,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			return nil, err
		}
		return nil, unavailable("register", err)
	}
	return created, nil
}

// Login verifies credentials and returns a token pair. Locked accounts are
// refused before the password is checked and without consuming an attempt.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.TokenPair, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, domain.ErrInvalidCredentials
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
			return nil, domain.ErrInvalidCredentials
		}
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, unavailable("login", err)
	}

	now := s.now()
	if lockErr := lockoutError(user, now); lockErr != nil {
		metrics.LoginAttemptsTotal.WithLabelValues(lockResult(lockErr)).Inc()
		return nil, lockErr
	}

	ok, err := s.store.VerifyPassword(ctx, user, password)
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, unavailable("login", err)
	}
	if !ok {
		return nil, s.recordFailure(ctx, user, now)
	}

	if user.FailedAttempts > 0 || user.LockoutUntil != nil {
		if err := s.store.ResetFailedAttemptCount(ctx, user); err != nil {
			s.reportError("reset failed attempts", user.ID, err)
		}
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("login: %w", err)
	}

	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	s.log.Info().Str("user_id", user.ID).Msg("login succeeded")
	return pair, nil
}

// recordFailure books a failed password check and escalates the lockout.
// Bookkeeping errors are reported out of band; the decision taken from the
// in-memory count stands for this request.
func (s *AuthService) recordFailure(ctx context.Context, user *domain.User, now time.Time) error {
	count, err := s.store.IncrementFailedAttempt(ctx, user)
	if err != nil {
		s.reportError("increment failed attempts", user.ID, err)
		count = user.FailedAttempts + 1
	}

	lockout, locked := s.policy.LockoutPolicy(ctx).Escalate(count, now)
	if !locked {
		metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
		return domain.ErrInvalidCredentials
	}

	if err := s.store.SetLockout(ctx, user, lockout); err != nil {
		s.reportError("set lockout", user.ID, err)
	}

	if lockout.Permanent {
		metrics.LockoutsTotal.WithLabelValues("permanent").Inc()
		metrics.LoginAttemptsTotal.WithLabelValues("locked_permanent").Inc()
		s.log.Warn().Str("user_id", user.ID).Int("failed_attempts", count).Msg("account locked permanently")
		s.enqueue(ports.TaskNotifyAccountLocked, user.ID, map[string]string{"email": user.Email, "kind": "permanent"})
		s.enqueue(ports.TaskOfferPasswordReset, user.ID, map[string]string{"email": user.Email})
		return &domain.LockoutError{Permanent: true}
	}

	metrics.LockoutsTotal.WithLabelValues("temporary").Inc()
	metrics.LoginAttemptsTotal.WithLabelValues("locked_temporary").Inc()
	s.log.Warn().Str("user_id", user.ID).Int("failed_attempts", count).Time("until", *lockout.Until).Msg("account locked temporarily")
	s.enqueue(ports.TaskNotifyAccountLocked, user.ID, map[string]string{
		"email": user.Email,
		"kind":  "temporary",
		"until": lockout.Until.UTC().Format(time.RFC3339),
	})
	return &domain.LockoutError{Until: *lockout.Until}
}

// RefreshToken exchanges a refresh token for a new token pair. The presented
// token is consumed atomically before anything is issued.
func (s *AuthService) RefreshToken(ctx context.Context, userID, refreshToken string) (*domain.TokenPair, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.refresh.Consume(ctx, userID, refreshToken); err != nil {
		if errors.Is(err, domain.ErrInvalidRefreshToken) {
			metrics.RefreshTotal.WithLabelValues("invalid").Inc()
			return nil, err
		}
		metrics.RefreshTotal.WithLabelValues("error").Inc()
		return nil, unavailable("refresh", err)
	}

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			metrics.RefreshTotal.WithLabelValues("invalid").Inc()
			return nil, domain.ErrInvalidRefreshToken
		}
		metrics.RefreshTotal.WithLabelValues("error").Inc()
		return nil, unavailable("refresh", err)
	}
	if lockErr := lockoutError(user, s.now()); lockErr != nil {
		metrics.RefreshTotal.WithLabelValues("locked").Inc()
		return nil, lockErr
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		metrics.RefreshTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("refresh: %w", err)
	}
	metrics.RefreshTotal.WithLabelValues("success").Inc()
	return pair, nil
}

// issuePair loads the current roles and issues an access and a refresh token.
func (s *AuthService) issuePair(ctx context.Context, user *domain.User) (*domain.TokenPair, error) {
	roles, err := s.store.GetRoles(ctx, user)
	if err != nil {
		return nil, unavailable("load roles", err)
	}
	user.Roles = roles

	access, expiresAt, err := s.issuer.Issue(user)
	if err != nil {
		return nil, err
	}
	refresh, err := s.refresh.Generate(ctx, user.ID)
	if err != nil {
		return nil, unavailable("issue refresh token", err)
	}

	return &domain.TokenPair{
		UserID:       user.ID,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt.Unix(),
	}, nil
}

// enqueue submits a task without waiting for it and reports whether the queue
// accepted it.
func (s *AuthService) enqueue(name, userID string, args map[string]string) bool {
	return s.tasks.Enqueue(ports.Task{
		ID:         uuid.NewString(),
		Name:       name,
		Key:        userID,
		Args:       args,
		EnqueuedAt: s.now().UTC(),
	})
}

// reportError logs a side-effect failure and forwards it to the error channel.
func (s *AuthService) reportError(operation, userID string, err error) {
	s.log.Warn().Err(err).Str("operation", operation).Str("user_id", userID).Msg("side effect failed")
	s.enqueue(ports.TaskReportError, userID, map[string]string{
		"operation": operation,
		"error":     err.Error(),
	})
}

func lockoutError(user *domain.User, now time.Time) error {
	switch user.LockState(now) {
	case domain.HardLocked:
		return &domain.LockoutError{Permanent: true}
	case domain.SoftLocked:
		return &domain.LockoutError{Until: *user.LockoutUntil}
	}
	return nil
}

func lockResult(err error) string {
	if errors.Is(err, domain.ErrAccountLockedPermanent) {
		return "locked_permanent"
	}
	return "locked_temporary"
}

// unavailable converts an infrastructure failure into the retryable
// ErrStoreUnavailable while keeping the cause inspectable.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
