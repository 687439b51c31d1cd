package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, store BlobStore) {
	ctx := context.Background()

	_, err := store.Read(ctx, "lobby/room.json")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Write(ctx, "lobby/room.json", []byte(`{"name":"lobby"}`)))
	require.NoError(t, store.Write(ctx, "lobby/historic-part-0.json", []byte(`[]`)))
	require.NoError(t, store.Write(ctx, "games/room.json", []byte(`{"name":"games"}`)))

	data, err := store.Read(ctx, "lobby/room.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"lobby"}`, string(data))

	require.NoError(t, store.Write(ctx, "lobby/room.json", []byte(`{"name":"lobby","maxUsers":5}`)))
	data, err = store.Read(ctx, "lobby/room.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"lobby","maxUsers":5}`, string(data))

	top, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"games", "lobby"}, top)

	files, err := store.List(ctx, "lobby")
	require.NoError(t, err)
	assert.Equal(t, []string{"historic-part-0.json", "room.json"}, files)

	empty, err := store.List(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, empty)

	assert.Error(t, store.Write(ctx, "../escape", []byte("x")))
	assert.Error(t, store.Write(ctx, "", []byte("x")))
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	exerciseStore(t, store)
}

func TestFileStore(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileStore(root)
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)

	_, err = os.Stat(filepath.Join(root, "lobby", "room.json"))
	assert.NoError(t, err)
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "rooms.db"))
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
}

func TestSQLiteStoreEscapesLikePatterns(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "rooms.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Write(ctx, "a_b/room.json", []byte("1")))
	require.NoError(t, store.Write(ctx, "axb/room.json", []byte("2")))

	names, err := store.List(ctx, "a_b")
	require.NoError(t, err)
	assert.Equal(t, []string{"room.json"}, names)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available at %s: %v", addr, err)
	}

	prefix := "wschat-test:" + uuid.NewString() + ":"
	store := NewRedisStoreWithClient(client, prefix)
	defer func() {
		keys, _ := client.Keys(context.Background(), prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(context.Background(), keys...)
		}
		store.Close()
	}()

	exerciseStore(t, store)
}

func TestChildren(t *testing.T) {
	keys := []string{"a/1", "a/2", "b/1", "a/sub/3", "c"}
	assert.Equal(t, []string{"a", "b", "c"}, children(keys, ""))
	assert.Equal(t, []string{"1", "2", "sub"}, children(keys, "a"))
	assert.Equal(t, []string{"3"}, children(keys, "/a/sub/"))
	assert.Nil(t, children(keys, "z"))
}
