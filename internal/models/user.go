package models

import "time"

type User struct {
	ID           int       `json:"id"`
	Login        string    `json:"login"`
	Pseudonym    string    `json:"pseudonym"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// GlobalRights apply to every room. ChatAdmin bypasses per-room checks and
// WebSocket grants access to the service management protocol.
type GlobalRights struct {
	WebSocket bool `json:"webSocket"`
	ChatAdmin bool `json:"chatAdmin"`
	Kibana    bool `json:"kibana"`
}

type RoomRights struct {
	Kick         bool `json:"kick"`
	Ban          bool `json:"ban"`
	Grant        bool `json:"grant"`
	Rename       bool `json:"rename"`
	EditPassword bool `json:"editPassword"`
}

// FullRoomRights is granted to the creator of a room.
func FullRoomRights() RoomRights {
	return RoomRights{Kick: true, Ban: true, Grant: true, Rename: true, EditPassword: true}
}
