package domain

import "time"

// hardLockHorizon is how far ahead a lockout deadline must be before it is
// treated as permanent.
const hardLockHorizon = 100 * 365 * 24 * time.Hour

// LockState is the position of an account in the login state machine.
type LockState int

const (
	Unlocked LockState = iota
	SoftLocked
	HardLocked
)

func (s LockState) String() string {
	switch s {
	case SoftLocked:
		return "soft_locked"
	case HardLocked:
		return "hard_locked"
	default:
		return "unlocked"
	}
}

// LockoutPolicy holds the lockout thresholds. A zero threshold disables that
// stage.
type LockoutPolicy struct {
	MaxFailedAttempts             int
	LockoutDuration               time.Duration
	PermanentLockoutAfterAttempts int
}

// Lockout is the value written to the credential store. The zero value clears
// any lockout.
type Lockout struct {
	Until     *time.Time
	Permanent bool
}

// LockState evaluates the account lockout fields at now. The permanent flag
// wins over any deadline.
func (u *User) LockState(now time.Time) LockState {
	if u.LockoutPermanent {
		return HardLocked
	}
	if u.LockoutUntil == nil || !u.LockoutUntil.After(now) {
		return Unlocked
	}
	if u.LockoutUntil.Sub(now) >= hardLockHorizon {
		return HardLocked
	}
	return SoftLocked
}

// Escalate decides the lockout to apply after the failed-attempt counter has
// reached count. The permanent threshold is checked first so a count that
// crosses both thresholds at once always lands on the hard lock.
func (p LockoutPolicy) Escalate(count int, now time.Time) (Lockout, bool) {
	if p.PermanentLockoutAfterAttempts > 0 && count >= p.PermanentLockoutAfterAttempts {
		return Lockout{Permanent: true}, true
	}
	if p.MaxFailedAttempts > 0 && count >= p.MaxFailedAttempts {
		until := now.Add(p.LockoutDuration)
		return Lockout{Until: &until}, true
	}
	return Lockout{}, false
}
