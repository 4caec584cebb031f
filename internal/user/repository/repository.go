package repository

import (
	"context"
	"errors"

	"seshlock/internal/user/domain"
)

// ErrEmailTaken is returned by Create when another user has the email.
var ErrEmailTaken = errors.New("email already taken")

// Repository defines persistence for users. Get methods return (nil, nil) when not found.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	// Delete removes the user and, through foreign keys, every token it owns.
	// It reports whether a row was deleted.
	Delete(ctx context.Context, id string) (bool, error)
}
