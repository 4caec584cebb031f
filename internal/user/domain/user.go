package domain

import (
	"errors"
	"strings"
	"time"
)

// User is the principal that owns sessions.
type User struct {
	ID           string
	Email        string
	PasswordHash string // bcrypt; never the plaintext password
	CreatedAt    time.Time
}

// NormalizeEmail lowercases and trims an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("id is required")
	}
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	return nil
}
