package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/99minutos/identity-service/internal/core/domain"
	"github.com/99minutos/identity-service/internal/pkg/metrics"
)

// CheckRevocation compares the security stamp embedded in bearerToken with
// the user's current stamp. Tokens that do not parse are let through for the
// signature check to reject; store failures reject the request.
func (s *AuthService) CheckRevocation(ctx context.Context, bearerToken string) error {
	claims, err := Decode(bearerToken)
	if err != nil {
		return nil
	}
	if claims.Subject == "" {
		metrics.RevocationRejectionsTotal.WithLabelValues("missing_subject").Inc()
		return fmt.Errorf("%w: invalid token", domain.ErrRevocationRejected)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	current, err := s.store.FindSecurityStamp(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			metrics.RevocationRejectionsTotal.WithLabelValues("unknown_user").Inc()
			return fmt.Errorf("%w: unknown user", domain.ErrRevocationRejected)
		}
		metrics.RevocationRejectionsTotal.WithLabelValues("store_unavailable").Inc()
		return unavailable("check revocation", err)
	}

	if claims.SecurityStamp == "" || subtle.ConstantTimeCompare([]byte(claims.SecurityStamp), []byte(current)) != 1 {
		metrics.RevocationRejectionsTotal.WithLabelValues("stamp_mismatch").Inc()
		return fmt.Errorf("%w: stamp mismatch", domain.ErrRevocationRejected)
	}
	return nil
}
