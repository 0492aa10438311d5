package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"retail-service/internal/models"
	"retail-service/internal/store"
	"retail-service/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func newAuthService(t *testing.T) (*AuthService, *store.MemoryStore) {
	t.Helper()
	util.SetLogger(zap.NewNop())
	ms := store.NewMemoryStore()
	return NewAuthService(ms, AuthConfig{AdminRoleID: 1, TokenTTL: time.Minute, BcryptCost: bcrypt.MinCost}), ms
}

func roleOf(id int64) *int64 {
	return &id
}

func TestRegister_DefaultsToLeastPrivilegedRole(t *testing.T) {
	svc, _ := newAuthService(t)

	user, err := svc.Register(context.Background(), nil, RegisterRequest{Username: " maria ", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "maria", user.Username)
	assert.Equal(t, int64(2), user.RoleID)
	assert.NotEqual(t, "secret", user.PasswordHash)
	assert.False(t, svc.IsAdmin(user))
}

func TestRegister_RoleRules(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()
	admin := &models.User{ID: 1, RoleID: 1}
	operator := &models.User{ID: 2, RoleID: 2}

	tests := []struct {
		name    string
		caller  *models.User
		req     RegisterRequest
		want    error
		message string
	}{
		{"blank password", nil, RegisterRequest{Username: "a"}, ErrInvalidInput, "Usuário e/ou senha em branco"},
		{"role without login", nil, RegisterRequest{Username: "b", Password: "x", Role: roleOf(1)}, ErrForbidden, "Precisa estar logado para definir permissão"},
		{"unknown role", admin, RegisterRequest{Username: "c", Password: "x", Role: roleOf(3)}, ErrInvalidInput, "Permissão fornecida não existe"},
		{"escalation", operator, RegisterRequest{Username: "d", Password: "x", Role: roleOf(1)}, ErrForbidden, "Sem autorização para criar usuário com as permissões fornecidas"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.caller, tt.req)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.message, err.Error())
		})
	}

	user, err := svc.Register(ctx, admin, RegisterRequest{Username: "root", Password: "x", Role: roleOf(1)})
	require.NoError(t, err)
	assert.True(t, svc.IsAdmin(user))

	_, err = svc.Register(ctx, nil, RegisterRequest{Username: "root", Password: "y"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLoginAndAuthenticate(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()
	registered, err := svc.Register(ctx, nil, RegisterRequest{Username: "maria", Password: "secret"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, "maria", "wrong")
	assert.ErrorIs(t, err, ErrBadCredentials)
	_, err = svc.Login(ctx, "nobody", "secret")
	assert.ErrorIs(t, err, ErrBadCredentials)

	tok, err := svc.Login(ctx, "maria", "secret")
	require.NoError(t, err)
	assert.Equal(t, "bearer", tok.TokenType)
	assert.Len(t, tok.AccessToken, 32)

	user, err := svc.Authenticate(ctx, tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)

	refreshed, err := svc.Refresh(ctx, user)
	require.NoError(t, err)
	assert.NotEqual(t, tok.AccessToken, refreshed.AccessToken)

	_, err = svc.Authenticate(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = svc.Authenticate(ctx, "unknown")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, nil, RegisterRequest{Username: "maria", Password: "secret"})
	require.NoError(t, err)
	tok, err := svc.Login(ctx, "maria", "secret")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, err = svc.Authenticate(ctx, tok.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticate_InactiveUser(t *testing.T) {
	svc, ms := newAuthService(t)
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, ms.Repo().CreateUser(ctx, &models.User{
		Username:     "ghost",
		PasswordHash: string(hash),
		RoleID:       2,
		Disabled:     true,
	}))

	tok, err := svc.Login(ctx, "ghost", "secret")
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, tok.AccessToken)
	assert.True(t, errors.Is(err, ErrInactiveUser))
}
