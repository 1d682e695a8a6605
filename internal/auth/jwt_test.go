package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerifyAccessToken(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	raw, err := m.GenerateAccessToken("user-1", "sam@example.com", "admin")
	require.NoError(t, err)

	claims, err := m.VerifyAccessToken(raw)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, "admin", claims.Role)
	require.Equal(t, "sam@example.com", claims.Email)
	require.NotEmpty(t, claims.JTI)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	raw, err := NewManager("secret-a", time.Hour).GenerateAccessToken("u", "e@example.com", "user")
	require.NoError(t, err)

	_, err = NewManager("secret-b", time.Hour).VerifyAccessToken(raw)
	require.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m := NewManager("test-secret", time.Minute)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	raw, err := m.GenerateAccessToken("u", "e@example.com", "user")
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.VerifyAccessToken(raw)
	require.Error(t, err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	_, err := NewManager("s", time.Hour).VerifyAccessToken("not-a-jwt")
	require.Error(t, err)
}
