package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRoom(max int) *Room {
	return &Room{Name: "lobby", Type: RoomPublic, MaxUsers: max, CreatedAt: time.Now()}
}

func TestRoomValidate(t *testing.T) {
	tests := []struct {
		name    string
		room    Room
		wantErr bool
	}{
		{"public", Room{Name: "lobby", Type: RoomPublic, MaxUsers: 2}, false},
		{"private", Room{Name: "vip", Type: RoomPrivate, Password: "hash", MaxUsers: 10}, false},
		{"empty name", Room{Name: "  ", Type: RoomPublic, MaxUsers: 2}, true},
		{"private without password", Room{Name: "vip", Type: RoomPrivate, MaxUsers: 2}, true},
		{"public with password", Room{Name: "lobby", Type: RoomPublic, Password: "x", MaxUsers: 2}, true},
		{"unknown type", Room{Name: "lobby", Type: "secret", MaxUsers: 2}, true},
		{"too small", Room{Name: "lobby", Type: RoomPublic, MaxUsers: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.room.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRoomMembershipNeverExceedsCapacity(t *testing.T) {
	room := newRoom(2)

	require.NoError(t, room.AddMember("s1", "alice"))
	require.NoError(t, room.AddMember("s2", "bob"))
	assert.ErrorIs(t, room.AddMember("s3", "carol"), ErrRoomFull)
	assert.Equal(t, 2, room.MemberCount())
	assert.NoError(t, room.Validate())

	// Rejoining under a new pseudonym does not take a new place.
	require.NoError(t, room.AddMember("s2", "bobby"))
	assert.Equal(t, []string{"alice", "bobby"}, room.Pseudonyms())
}

func TestRoomRemoveMemberKeepsOrder(t *testing.T) {
	room := newRoom(5)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, room.AddMember(id, "user-"+id))
	}

	p, ok := room.RemoveMember("b")
	assert.True(t, ok)
	assert.Equal(t, "user-b", p)
	assert.Equal(t, []string{"a", "c"}, room.MemberIDs())

	_, ok = room.RemoveMember("b")
	assert.False(t, ok)

	id, ok := room.SessionOf("USER-C")
	assert.True(t, ok)
	assert.Equal(t, "c", id)
}

func TestRoomBansAndInfo(t *testing.T) {
	room := newRoom(3)
	room.Bans = append(room.Bans, BanRecord{Room: "lobby", IP: "10.0.0.1"})

	assert.True(t, room.IsBanned("10.0.0.1"))
	assert.False(t, room.IsBanned("10.0.0.2"))

	info := room.Info()
	assert.Equal(t, "lobby", info.Name)
	assert.Equal(t, 3, info.MaxUsers)
}

func TestParseEnvelope(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"service":["chatService","other"],"action":"sendMessage","message":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, ServiceList{"chatService", "other"}, env.Service)
	assert.Equal(t, "sendMessage", env.Action)

	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, env.Decode(&body))
	assert.Equal(t, "hi", body.Message)

	env, err = ParseEnvelope([]byte(`{"service":"chatService","action":"connect"}`))
	require.NoError(t, err)
	assert.Equal(t, ServiceList{"chatService"}, env.Service)

	_, err = ParseEnvelope([]byte(`{"service":42}`))
	assert.Error(t, err)
}
