package queue

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/99minutos/identity-service/internal/core/ports"
)

// RefreshRemover deletes the stored refresh token of a user, either a
// specific one or whatever is stored.
type RefreshRemover interface {
	Revoke(ctx context.Context, userID, token string) error
	Remove(ctx context.Context, userID string) error
}

// RegisterAuthHandlers wires the tasks produced by the auth service. Account
// notifications are logged here; delivery is handled by the mail relay that
// tails these entries.
func RegisterAuthHandlers(d *Dispatcher, refresh RefreshRemover, log zerolog.Logger) {
	d.Handle(ports.TaskNotifyAccountLocked, func(_ context.Context, t ports.Task) error {
		log.Info().
			Str("task", t.Name).
			Str("user_id", t.Key).
			Str("kind", t.Args["kind"]).
			Str("until", t.Args["until"]).
			Msg("account lock notification")
		return nil
	})

	d.Handle(ports.TaskOfferPasswordReset, func(_ context.Context, t ports.Task) error {
		log.Info().
			Str("task", t.Name).
			Str("user_id", t.Key).
			Msg("password reset offered")
		return nil
	})

	d.Handle(ports.TaskRemoveRefreshToken, func(ctx context.Context, t ports.Task) error {
		if t.Key == "" {
			return errors.New("remove refresh token: empty user id")
		}
		if token := t.Args[ports.TaskArgRefreshToken]; token != "" {
			return refresh.Revoke(ctx, t.Key, token)
		}
		return refresh.Remove(ctx, t.Key)
	})

	d.Handle(ports.TaskReportError, func(_ context.Context, t ports.Task) error {
		log.Error().
			Str("task", t.Name).
			Str("user_id", t.Key).
			Str("operation", t.Args["operation"]).
			Str("error", t.Args["error"]).
			Msg("side effect failure reported")
		return nil
	})
}
