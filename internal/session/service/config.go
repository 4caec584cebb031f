package service

import (
	"fmt"
	"strings"
	"time"
)

// RotationPolicy decides what a concurrent redeemer of the same refresh token receives.
type RotationPolicy string

const (
	// RotationFailClosed lets exactly one concurrent rotation succeed; the others get ErrNotFound.
	RotationFailClosed RotationPolicy = "fail_closed"
	// RotationFailOpen issues a new pair to every concurrent redeemer that passed the lookup.
	RotationFailOpen RotationPolicy = "fail_open"
)

// ParseRotationPolicy parses a policy name. Empty means RotationFailClosed.
func ParseRotationPolicy(s string) (RotationPolicy, error) {
	switch p := RotationPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return RotationFailClosed, nil
	case RotationFailClosed, RotationFailOpen:
		return p, nil
	}
	return "", fmt.Errorf("unknown rotation policy %q", s)
}

const (
	DefaultAccessTTL         = 15 * time.Minute
	DefaultRefreshTTL        = 30 * 24 * time.Hour
	DefaultMaxInsertAttempts = 5
)

// Config holds the engine settings. It is copied into the Engine at construction.
type Config struct {
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	RotationPolicy    RotationPolicy
	MaxInsertAttempts int
}

// DefaultConfig returns the stock lifetimes: 15 minutes for access tokens, 30 days for refresh tokens.
func DefaultConfig() Config {
	return Config{
		AccessTTL:         DefaultAccessTTL,
		RefreshTTL:        DefaultRefreshTTL,
		RotationPolicy:    RotationFailClosed,
		MaxInsertAttempts: DefaultMaxInsertAttempts,
	}
}

func (c Config) validate() error {
	if c.AccessTTL <= 0 {
		return fmt.Errorf("access token TTL must be positive, got %s", c.AccessTTL)
	}
	if c.RefreshTTL <= 0 {
		return fmt.Errorf("refresh token TTL must be positive, got %s", c.RefreshTTL)
	}
	if c.MaxInsertAttempts < 1 {
		return fmt.Errorf("max insert attempts must be at least 1, got %d", c.MaxInsertAttempts)
	}
	if _, err := ParseRotationPolicy(string(c.RotationPolicy)); err != nil {
		return err
	}
	return nil
}
