package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"wschat/internal/config"
	"wschat/internal/database"
	"wschat/internal/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := &config.Config{
		Chat: config.ChatConfig{PasswordCost: bcrypt.MinCost},
		JWT:  config.JWTConfig{Secret: []byte("test-secret"), ExpiresIn: time.Hour},
	}
	return NewService(database.NewMemoryDB(), cfg)
}

func TestAuthenticate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, "alice", "Alice", "wonderland", models.GlobalRights{WebSocket: true})
	require.NoError(t, err)
	assert.Empty(t, created.PasswordHash)

	user, err := svc.Authenticate(ctx, "alice", "wonderland")
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)
	assert.Empty(t, user.PasswordHash)

	_, err = svc.Authenticate(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "bob", "wonderland")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	rights, err := svc.GlobalRights(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, rights.WebSocket)
	assert.False(t, rights.ChatAdmin)
}

func TestRoomRightsAndPseudonyms(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "alice", "Alice", "pw", models.GlobalRights{})
	require.NoError(t, err)

	require.NoError(t, svc.GrantRoomRights(ctx, user.ID, "lobby", models.FullRoomRights()))
	rights, err := svc.RoomRights(ctx, user.ID, "lobby")
	require.NoError(t, err)
	assert.True(t, rights.Kick)

	other, err := svc.RoomRights(ctx, user.ID, "games")
	require.NoError(t, err)
	assert.False(t, other.Kick)

	registered, err := svc.IsPseudonymRegistered(ctx, "ALICE")
	require.NoError(t, err)
	assert.True(t, registered)
}

func TestPasswordHashing(t *testing.T) {
	svc := newTestService(t)

	hash, err := svc.HashPassword("secret")
	require.NoError(t, err)
	assert.NotEqual(t, "secret", hash)
	assert.True(t, svc.ComparePassword(hash, "secret"))
	assert.False(t, svc.ComparePassword(hash, "Secret"))
	assert.False(t, svc.ComparePassword("", "secret"))
}

func TestTokens(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "alice", "Alice", "pw", models.GlobalRights{})
	require.NoError(t, err)

	token, err := svc.IssueToken(user)
	require.NoError(t, err)

	fromToken, err := svc.UserFromToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, fromToken.ID)
	assert.Equal(t, "Alice", fromToken.Pseudonym)

	_, err = svc.UserFromToken(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := forged.SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = svc.UserFromToken(ctx, signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"exp":     time.Now().Add(-time.Minute).Unix(),
	})
	signed, err = expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = svc.UserFromToken(ctx, signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	unknown := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 4242,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err = unknown.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = svc.UserFromToken(ctx, signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
