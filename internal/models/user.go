package models

import "time"

// User is a registered board user, identified by email.
type User struct {
	ID        string
	Email     string
	Name      string // optional display name
	CreatedAt time.Time
}

// DisplayName returns the user's name, falling back to email.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
