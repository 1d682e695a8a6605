package service

import (
	"context"
	"testing"
	"time"

	"github.com/geocoder89/civichub/internal/apperr"
	"github.com/geocoder89/civichub/internal/auth"
	"github.com/geocoder89/civichub/internal/domain/user"
	"github.com/geocoder89/civichub/internal/repo/memory"
	"github.com/geocoder89/civichub/internal/security"
	"github.com/stretchr/testify/require"
)

func newAuthService() (*AuthService, *auth.Manager) {
	jwtm := auth.NewManager("test-secret", time.Hour)
	return NewAuthService(memory.NewUsersRepo(), security.Hasher{}, jwtm), jwtm
}

func TestRegister_DuplicateEmailThenLogin(t *testing.T) {
	svc, jwtm := newAuthService()
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterInput{Username: "ada", Email: "Ada@Example.com", Password: "correct-horse"})
	require.NoError(t, err)
	require.Equal(t, user.RoleUser, u.Role)
	require.Equal(t, "ada@example.com", u.Email)
	require.NotEqual(t, "correct-horse", u.PasswordHash)

	_, err = svc.Register(ctx, RegisterInput{Username: "other", Email: "ada@example.com", Password: "whatever1"})
	require.ErrorIs(t, err, apperr.ErrConflict)

	token, got, err := svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	claims, err := jwtm.VerifyAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, u.ID, claims.UserID)
	require.Equal(t, user.RoleUser, claims.Role)
}

func TestRegister_MissingFields(t *testing.T) {
	svc, _ := newAuthService()

	_, err := svc.Register(context.Background(), RegisterInput{Email: " "})
	require.ErrorIs(t, err, apperr.ErrValidation)

	e, _ := apperr.As(err)
	require.Len(t, e.Fields, 3)
}

func TestLogin_BadCredentials(t *testing.T) {
	svc, _ := newAuthService()
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Username: "ada", Email: "ada@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		input LoginInput
	}{
		{name: "unknown email", input: LoginInput{Email: "nobody@example.com", Password: "correct-horse"}},
		{name: "wrong password", input: LoginInput{Email: "ada@example.com", Password: "nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Login(ctx, tt.input)
			require.ErrorIs(t, err, ErrInvalidCredentials)
			require.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
		})
	}
}
