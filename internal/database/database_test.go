package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wschat/internal/models"
)

func exerciseDatabase(t *testing.T, db Database) {
	ctx := context.Background()
	suffix := uuid.NewString()[:8]
	login := "alice-" + suffix
	pseudonym := "Alice" + suffix

	_, err := db.GetUserByLogin(ctx, login)
	assert.ErrorIs(t, err, ErrUserNotFound)

	user, err := db.CreateUser(ctx, login, pseudonym, "hash")
	require.NoError(t, err)
	assert.Equal(t, login, user.Login)
	assert.NotZero(t, user.ID)

	_, err = db.CreateUser(ctx, login, "other"+suffix, "hash")
	assert.ErrorIs(t, err, ErrUserExists)

	found, err := db.GetUserByLogin(ctx, login)
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
	assert.Equal(t, "hash", found.PasswordHash)

	byID, err := db.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, pseudonym, byID.Pseudonym)
	assert.Empty(t, byID.PasswordHash)

	exists, err := db.PseudonymExists(ctx, "alice"+suffix)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = db.PseudonymExists(ctx, "nobody"+suffix)
	require.NoError(t, err)
	assert.False(t, exists)

	global, err := db.GetGlobalRights(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GlobalRights{}, global)

	require.NoError(t, db.SetGlobalRights(ctx, user.ID, models.GlobalRights{ChatAdmin: true}))
	global, err = db.GetGlobalRights(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, global.ChatAdmin)
	assert.False(t, global.WebSocket)

	room := "lobby-" + suffix
	rights, err := db.GetRoomRights(ctx, user.ID, room)
	require.NoError(t, err)
	assert.Equal(t, models.RoomRights{}, rights)

	require.NoError(t, db.SetRoomRights(ctx, user.ID, room, models.FullRoomRights()))
	rights, err = db.GetRoomRights(ctx, user.ID, room)
	require.NoError(t, err)
	assert.Equal(t, models.FullRoomRights(), rights)

	require.NoError(t, db.SetRoomRights(ctx, user.ID, room, models.RoomRights{Kick: true}))
	rights, err = db.GetRoomRights(ctx, user.ID, room)
	require.NoError(t, err)
	assert.Equal(t, models.RoomRights{Kick: true}, rights)
}

func TestMemoryDB(t *testing.T) {
	db := NewMemoryDB()
	defer db.Close()
	exerciseDatabase(t, db)

	assert.ErrorIs(t, db.SetGlobalRights(context.Background(), 999, models.GlobalRights{}), ErrUserNotFound)
}

func TestPostgresDB(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := NewPostgresDB(ctx, url)
	require.NoError(t, err)
	defer db.Close()

	exerciseDatabase(t, db)
}
