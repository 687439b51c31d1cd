package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

type RoomType string

const (
	RoomPublic  RoomType = "public"
	RoomPrivate RoomType = "private"
)

// RecipientAll addresses every member of a room.
const RecipientAll = "all"

// MinRoomUsers is the smallest capacity a room can be created with.
const MinRoomUsers = 2

var ErrRoomFull = errors.New("room is full")

// Room is the durable metadata of a chat room plus its transient state.
// Members and Current are never persisted with the metadata.
type Room struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	CreatorID int         `json:"creatorId"`
	Type      RoomType    `json:"type"`
	Password  string      `json:"password,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	MaxUsers  int         `json:"maxUsers"`
	Bans      []BanRecord `json:"bans"`

	LastPart int               `json:"-"`
	Current  []HistoricMessage `json:"-"`

	members map[string]string // session id -> pseudonym
	order   []string          // session ids in join order
}

type BanRecord struct {
	Room      string    `json:"room"`
	IP        string    `json:"ip"`
	Pseudonym string    `json:"pseudonym"`
	Admin     string    `json:"admin"`
	Reason    string    `json:"reason"`
	BannedAt  time.Time `json:"bannedAt"`
}

// HistoricMessage is one entry of a room's history. To is RecipientAll or
// the pseudonym of a single member.
type HistoricMessage struct {
	Text   string    `json:"text"`
	SentAt time.Time `json:"sentAt"`
	From   string    `json:"from"`
	To     string    `json:"to"`
}

func (m HistoricMessage) IsPublic() bool {
	return m.To == RecipientAll
}

// Validate checks the invariants of a room.
func (r *Room) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("room name cannot be empty")
	}
	// The name doubles as a storage directory.
	if r.Name == "." || r.Name == ".." || strings.ContainsAny(r.Name, `/\`) {
		return fmt.Errorf("room name %q contains forbidden characters", r.Name)
	}
	switch r.Type {
	case RoomPublic:
		if r.Password != "" {
			return fmt.Errorf("a public room cannot have a password")
		}
	case RoomPrivate:
		if r.Password == "" {
			return fmt.Errorf("a private room requires a password")
		}
	default:
		return fmt.Errorf("room type must be %q or %q", RoomPublic, RoomPrivate)
	}
	if r.MaxUsers < MinRoomUsers {
		return fmt.Errorf("a room must accept at least %d users", MinRoomUsers)
	}
	if len(r.members) > r.MaxUsers {
		return fmt.Errorf("room has %d members for %d places", len(r.members), r.MaxUsers)
	}
	return nil
}

func (r *Room) IsPrivate() bool {
	return r.Type == RoomPrivate
}

func (r *Room) IsFull() bool {
	return len(r.members) >= r.MaxUsers
}

func (r *Room) MemberCount() int {
	return len(r.members)
}

// AddMember joins a session under a pseudonym. A full room is left untouched.
func (r *Room) AddMember(sessionID, pseudonym string) error {
	if r.members == nil {
		r.members = make(map[string]string)
	}
	if _, ok := r.members[sessionID]; ok {
		r.members[sessionID] = pseudonym
		return nil
	}
	if r.IsFull() {
		return ErrRoomFull
	}
	r.members[sessionID] = pseudonym
	r.order = append(r.order, sessionID)
	return nil
}

// RemoveMember removes a session and returns the pseudonym it used.
func (r *Room) RemoveMember(sessionID string) (string, bool) {
	pseudonym, ok := r.members[sessionID]
	if !ok {
		return "", false
	}
	delete(r.members, sessionID)
	for i, id := range r.order {
		if id == sessionID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return pseudonym, true
}

func (r *Room) Pseudonym(sessionID string) (string, bool) {
	p, ok := r.members[sessionID]
	return p, ok
}

// SessionOf returns the session using a pseudonym, compared case-insensitively.
func (r *Room) SessionOf(pseudonym string) (string, bool) {
	for _, id := range r.order {
		if strings.EqualFold(r.members[id], pseudonym) {
			return id, true
		}
	}
	return "", false
}

// MemberIDs returns session ids in join order.
func (r *Room) MemberIDs() []string {
	return append([]string(nil), r.order...)
}

// Pseudonyms returns the sorted pseudonyms of current members.
func (r *Room) Pseudonyms() []string {
	out := make([]string, 0, len(r.members))
	for _, p := range r.members {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (r *Room) IsBanned(ip string) bool {
	for _, ban := range r.Bans {
		if ban.IP == ip {
			return true
		}
	}
	return false
}

// Info is the metadata sent to clients; the password never leaves the server.
func (r *Room) Info() RoomInfo {
	return RoomInfo{
		Name:       r.Name,
		Type:       r.Type,
		MaxUsers:   r.MaxUsers,
		UsersCount: len(r.members),
		CreatedAt:  r.CreatedAt.Format(time.RFC3339),
	}
}

type RoomInfo struct {
	Name       string   `json:"name"`
	Type       RoomType `json:"type"`
	MaxUsers   int      `json:"maxUsers"`
	UsersCount int      `json:"usersCount"`
	CreatedAt  string   `json:"createdAt,omitempty"`
}
