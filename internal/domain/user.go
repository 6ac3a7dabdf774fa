package domain

import "time"

// User is a record in the user directory.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// ActiveUser tracks a user's last activity. There is exactly one live
// record per user ID, enforced by the store's upsert.
type ActiveUser struct {
	UserID        int64
	LastSeen      time.Time
	SessionExpiry *time.Time
}

// IdleUser is an ActiveUser selected by an inactivity sweep, joined with
// the username the sweep needs to enumerate cached sessions.
type IdleUser struct {
	UserID   int64
	Username string
	LastSeen time.Time
}
