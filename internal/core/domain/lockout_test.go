package domain

import (
	"errors"
	"testing"
	"time"
)

func TestUser_LockState(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	soon := now.Add(10 * time.Minute)
	forever := now.Add(200 * 365 * 24 * time.Hour)

	cases := []struct {
		name string
		user User
		want LockState
	}{
		{"no lockout", User{}, Unlocked},
		{"expired deadline", User{LockoutUntil: &past}, Unlocked},
		{"future deadline", User{LockoutUntil: &soon}, SoftLocked},
		{"far future deadline", User{LockoutUntil: &forever}, HardLocked},
		{"permanent flag", User{LockoutPermanent: true, LockoutUntil: &past}, HardLocked},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.user.LockState(now); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestLockoutPolicy_Escalate(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p := LockoutPolicy{MaxFailedAttempts: 5, LockoutDuration: 15 * time.Minute, PermanentLockoutAfterAttempts: 10}

	if _, locked := p.Escalate(4, now); locked {
		t.Errorf("4 failures must not lock")
	}
	l, locked := p.Escalate(5, now)
	if !locked || l.Permanent || l.Until == nil || !l.Until.Equal(now.Add(15*time.Minute)) {
		t.Errorf("5 failures: unexpected lockout %+v", l)
	}
	if l, _ := p.Escalate(10, now); !l.Permanent {
		t.Errorf("10 failures must lock permanently")
	}
	if l, _ := p.Escalate(11, now); !l.Permanent {
		t.Errorf("11 failures must lock permanently")
	}
}

func TestLockoutPolicy_EscalateZeroDisables(t *testing.T) {
	if _, locked := (LockoutPolicy{}).Escalate(100, time.Now()); locked {
		t.Fatalf("zero policy must never lock")
	}
}

func TestLockoutError(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	temp := &LockoutError{Until: now.Add(90*time.Second + time.Millisecond)}

	if !errors.Is(temp, ErrAccountLockedTemporary) || errors.Is(temp, ErrAccountLockedPermanent) {
		t.Errorf("temporary lockout unwraps to the wrong sentinel")
	}
	if got := temp.RetryAfter(now); got != 91*time.Second {
		t.Errorf("expected retry after rounded up to 91s, got %s", got)
	}

	perm := &LockoutError{Permanent: true}
	if !errors.Is(perm, ErrAccountLockedPermanent) {
		t.Errorf("permanent lockout unwraps to the wrong sentinel")
	}
	if perm.RetryAfter(now) != 0 {
		t.Errorf("permanent lockout has no retry hint")
	}
}
