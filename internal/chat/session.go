package chat

import (
	"crypto/sha256"
	"crypto/subtle"
	"sort"

	"github.com/google/uuid"

	"wschat/internal/models"
	"wschat/internal/services"
)

// Session is the chat state of one connection. User is nil for guests.
type Session struct {
	ID   string
	User *models.User

	conn  services.Conn
	rooms map[string]string // room name -> pseudonym

	// roomKeys holds digests of private room passwords already checked
	// against the stored hash.
	roomKeys map[string][sha256.Size]byte
}

func newSession(conn services.Conn) *Session {
	return &Session{
		ID:       uuid.NewString(),
		conn:     conn,
		rooms:    make(map[string]string),
		roomKeys: make(map[string][sha256.Size]byte),
	}
}

func (s *Session) IsGuest() bool {
	return s.User == nil
}

// Pseudonym returns the name used in room, if joined.
func (s *Session) Pseudonym(room string) (string, bool) {
	p, ok := s.rooms[room]
	return p, ok
}

// Rooms returns the joined room names in sorted order.
func (s *Session) Rooms() []string {
	names := make([]string, 0, len(s.rooms))
	for name := range s.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// displayName is the name shown for s in room, falling back to the profile.
func (s *Session) displayName(room string) string {
	if p, ok := s.rooms[room]; ok {
		return p
	}
	if s.User != nil {
		return s.User.Pseudonym
	}
	return ""
}

// rememberRoomKey records that password opened room.
func (s *Session) rememberRoomKey(room, password string) {
	s.roomKeys[room] = sha256.Sum256([]byte(password))
}

// checkRoomKey compares password with the one remembered for room. The
// second result is false when nothing is remembered.
func (s *Session) checkRoomKey(room, password string) (match, known bool) {
	key, ok := s.roomKeys[room]
	if !ok {
		return false, false
	}
	digest := sha256.Sum256([]byte(password))
	return subtle.ConstantTimeCompare(key[:], digest[:]) == 1, true
}
