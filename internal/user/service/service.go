// Package service implements the principal collaborator: registration, password
// verification and session issuance for users.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"seshlock/internal/logging"
	"seshlock/internal/security"
	sessiondomain "seshlock/internal/session/domain"
	"seshlock/internal/user/domain"
	"seshlock/internal/user/repository"
)

// Sentinel errors for the user service.
var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrUserNotFound           = errors.New("user not found")
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// SessionIssuer is the part of the session engine the user service needs.
type SessionIssuer interface {
	Issue(ctx context.Context, principalID, device string) (*sessiondomain.TokenPair, error)
}

// Service manages users and hands verified users to the session engine.
type Service struct {
	repo     repository.Repository
	hasher   *security.Hasher
	sessions SessionIssuer
	log      logging.Logger
	clock    func() time.Time
}

// NewService returns a Service. log may be nil.
func NewService(repo repository.Repository, hasher *security.Hasher, sessions SessionIssuer, log logging.Logger) *Service {
	if log == nil {
		log = logging.Nop()
	}
	return &Service{repo: repo, hasher: hasher, sessions: sessions, log: log, clock: time.Now}
}

// Register creates a user with the given email and password.
func (s *Service) Register(ctx context.Context, email, password string) (*domain.User, error) {
	email = domain.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.clock().UTC().Truncate(time.Microsecond),
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, ErrEmailAlreadyRegistered
		}
		return nil, err
	}
	s.log.Info(ctx, "user registered", "user_id", u.ID)
	return u, nil
}

// VerifyCredentials returns the user when password matches. Unknown emails and
// wrong passwords both return ErrInvalidCredentials after the same bcrypt work.
func (s *Service) VerifyCredentials(ctx context.Context, email, password string) (*domain.User, error) {
	u, err := s.repo.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if u == nil {
		s.hasher.CompareDummy(password)
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(u.PasswordHash, password); err != nil {
		if errors.Is(err, security.ErrPasswordMismatch) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("compare password: %w", err)
	}
	return u, nil
}

// IssueSession issues a token pair for the user.
func (s *Service) IssueSession(ctx context.Context, userID, device string) (*sessiondomain.TokenPair, error) {
	return s.sessions.Issue(ctx, userID, device)
}

// GetByID returns the user or ErrUserNotFound.
func (s *Service) GetByID(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// Delete removes the user and every session it owns.
func (s *Service) Delete(ctx context.Context, id string) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrUserNotFound
	}
	s.log.Info(ctx, "user deleted", "user_id", id)
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	if !emailPattern.MatchString(email) {
		return errors.New("invalid email format")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 12 {
		return errors.New("password must be at least 12 characters")
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		default:
			hasSymbol = true
		}
	}
	switch {
	case !hasUpper:
		return errors.New("password must contain at least one uppercase letter")
	case !hasLower:
		return errors.New("password must contain at least one lowercase letter")
	case !hasNumber:
		return errors.New("password must contain at least one number")
	case !hasSymbol:
		return errors.New("password must contain at least one symbol")
	}
	return nil
}
