package domain

import "time"

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User models an identity as held by the credential store. Only the lockout
// bookkeeping and the security stamp are mutated by the auth core.
type User struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"-"`
	Roles            []string   `json:"roles"`
	SecurityStamp    string     `json:"-"`
	FailedAttempts   int        `json:"-"`
	LockoutUntil     *time.Time `json:"-"`
	LockoutPermanent bool       `json:"-"`
	// Version is bumped on every write and guards read-modify-write updates.
	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasRole reports whether role is assigned to the user.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
