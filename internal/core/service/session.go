package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/99minutos/identity-service/internal/core/domain"
	"github.com/99minutos/identity-service/internal/core/ports"
)

// Logout ends every session of userID. Refresh token removal is deferred to
// the task queue and a failed stamp rotation is only reported; neither fails
// the logout.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if userID == "" {
		return domain.ErrInvalidCredentials
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.terminateSession(ctx, &domain.User{ID: userID}, "logout")
	s.log.Info().Str("user_id", userID).Msg("logged out")
	return nil
}

// ChangePassword replaces the password after checking the current one, then
// terminates all sessions.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if userID == "" || currentPassword == "" || newPassword == "" {
		return domain.ErrInvalidCredentials
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.findUser(ctx, "change password", userID)
	if err != nil {
		return err
	}

	ok, err := s.store.VerifyPassword(ctx, user, currentPassword)
	if err != nil {
		return unavailable("change password", err)
	}
	if !ok {
		return domain.ErrInvalidCredentials
	}

	if err := s.updateCredential(ctx, "change password", user, newPassword); err != nil {
		return err
	}

	s.terminateSession(ctx, user, "password_change")
	s.log.Info().Str("user_id", user.ID).Msg("password changed")
	return nil
}

// ResetPassword is the administrative reset: it sets a new password, clears
// any lockout including a permanent one, and terminates all sessions.
func (s *AuthService) ResetPassword(ctx context.Context, userID, newPassword string) error {
	if userID == "" || newPassword == "" {
		return domain.ErrInvalidCredentials
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.findUser(ctx, "reset password", userID)
	if err != nil {
		return err
	}

	if err := s.updateCredential(ctx, "reset password", user, newPassword); err != nil {
		return err
	}
	// The new credential is committed: old sessions end even if the lockout
	// cleanup below fails.
	s.terminateSession(ctx, user, "password_reset")

	if err := s.store.SetLockout(ctx, user, domain.Lockout{}); err != nil {
		return unavailable("reset password", err)
	}
	if err := s.store.ResetFailedAttemptCount(ctx, user); err != nil {
		return unavailable("reset password", err)
	}

	s.log.Info().Str("user_id", user.ID).Msg("password reset")
	return nil
}

// terminateSession revokes the refresh token held right now and rotates the
// security stamp, which revokes every outstanding access token.
func (s *AuthService) terminateSession(ctx context.Context, user *domain.User, reason string) {
	s.revokeRefreshToken(ctx, user.ID, reason)

	if _, err := s.store.RotateSecurityStamp(ctx, user); err != nil {
		s.reportError("rotate security stamp", user.ID, err)
	}
}

// revokeRefreshToken defers deletion of the user's current refresh token to
// the task queue. The task carries the token so a later login keeps its own.
// When the queue refuses the task the deletion runs inline.
func (s *AuthService) revokeRefreshToken(ctx context.Context, userID, reason string) {
	token, found, err := s.refresh.Current(ctx, userID)
	if err != nil {
		s.reportError("load refresh token", userID, err)
		if !s.enqueue(ports.TaskRemoveRefreshToken, userID, map[string]string{"reason": reason}) {
			if err := s.refresh.Remove(ctx, userID); err != nil {
				s.reportError("remove refresh token", userID, err)
			}
		}
		return
	}
	if !found {
		return
	}

	args := map[string]string{"reason": reason, ports.TaskArgRefreshToken: token}
	if s.enqueue(ports.TaskRemoveRefreshToken, userID, args) {
		return
	}
	s.log.Warn().Str("user_id", userID).Msg("task queue refused refresh token removal, removing inline")
	if err := s.refresh.Revoke(ctx, userID, token); err != nil {
		s.reportError("remove refresh token", userID, err)
	}
}

func (s *AuthService) findUser(ctx context.Context, op, userID string) (*domain.User, error) {
	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, unavailable(op, err)
	}
	return user, nil
}

func (s *AuthService) updateCredential(ctx context.Context, op string, user *domain.User, newPassword string) error {
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.store.UpdateCredential(ctx, user, hash); err != nil {
		if errors.Is(err, domain.ErrConcurrentUpdate) {
			return fmt.Errorf("%s: %w", op, err)
		}
		return unavailable(op, err)
	}
	return nil
}
