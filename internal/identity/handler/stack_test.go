package handler_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"seshlock/internal/db"
	"seshlock/internal/identity/service"
	"seshlock/internal/security"
	sessionrepo "seshlock/internal/session/repository"
	sessionservice "seshlock/internal/session/service"
	"seshlock/internal/testutil"
	userrepo "seshlock/internal/user/repository"
	userservice "seshlock/internal/user/service"
)

const (
	testEmail    = "ada@example.com"
	testPassword = "Correct-Horse-42"
)

type stack struct {
	gateway *service.Gateway
	tokens  *sessionrepo.SQLRepository
	users   *userservice.Service
}

func newStack(t *testing.T) *stack {
	t.Helper()
	conn := testutil.OpenSQLite(t)
	tokens := sessionrepo.NewSQLRepository(conn, db.SQLite)
	engine, err := sessionservice.NewEngine(tokens, sessionservice.DefaultConfig())
	require.NoError(t, err)
	users := userservice.NewService(userrepo.NewSQLRepository(conn, db.SQLite), security.NewHasher(bcrypt.MinCost), engine, nil)
	_, err = users.Register(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	return &stack{
		gateway: service.NewGateway(tokens, engine, users),
		tokens:  tokens,
		users:   users,
	}
}
