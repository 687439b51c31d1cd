// Package chat implements the room based chat protocol: rooms, presence,
// public and private messages, history pages and moderation.
package chat

import (
	"context"
	"time"

	"wschat/internal/models"
	"wschat/internal/rooms"
	"wschat/internal/services"
	"wschat/pkg/logger"
)

const (
	ActionCreateRoom         = "createRoom"
	ActionConnect            = "connect"
	ActionSendMessage        = "sendMessage"
	ActionGetHistoric        = "getHistoric"
	ActionKickUser           = "kickUser"
	ActionBanUser            = "banUser"
	ActionDisconnectFromRoom = "disconnectFromRoom"
	ActionDisconnect         = "disconnect"
	ActionLogIn              = "logIn"
	ActionLogOut             = "logOut"
	ActionGetRoomsInfo       = "getRoomsInfo"
)

// Directory is the user and rights lookup.
type Directory interface {
	Authenticate(ctx context.Context, login, password string) (*models.User, error)
	GlobalRights(ctx context.Context, userID int) (models.GlobalRights, error)
	RoomRights(ctx context.Context, userID int, room string) (models.RoomRights, error)
	GrantRoomRights(ctx context.Context, userID int, room string, rights models.RoomRights) error
	IsPseudonymRegistered(ctx context.Context, pseudonym string) (bool, error)
	IssueToken(user *models.User) (string, error)
	UserFromToken(ctx context.Context, token string) (*models.User, error)
	HashPassword(password string) (string, error)
	ComparePassword(hash, password string) bool
}

type Options struct {
	// Name is the service name clients address.
	Name string
	// Timeout bounds the directory and storage calls of one action.
	Timeout time.Duration
	Now     func() time.Time
}

// Service is driven by the connection scheduler; it is not safe for
// concurrent use.
type Service struct {
	name    string
	rooms   *rooms.Store
	dir     Directory
	timeout time.Duration
	now     func() time.Time

	sessions map[string]*Session // by connection id
	byID     map[string]*Session // by session id
}

func NewService(store *rooms.Store, dir Directory, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	return &Service{
		name:     opts.Name,
		rooms:    store,
		dir:      dir,
		timeout:  opts.Timeout,
		now:      opts.Now,
		sessions: make(map[string]*Session),
		byID:     make(map[string]*Session),
	}
}

func (s *Service) Name() string {
	return s.name
}

// request holds the fields of every inbound chat action.
type request struct {
	RoomName     string `json:"roomName"`
	Type         string `json:"type"`
	RoomPassword string `json:"roomPassword"`
	MaxUsers     int    `json:"maxUsers"`
	Pseudonym    string `json:"pseudonym"`
	Login        string `json:"login"`
	Password     string `json:"password"`
	Token        string `json:"token"`
	Message      string `json:"message"`
	Recipient    string `json:"recipient"`
	Part         int    `json:"part"`
	Reason       string `json:"reason"`
}

type actionFunc func(ctx context.Context, sess *Session, req *request) error

func (s *Service) actions() map[string]actionFunc {
	return map[string]actionFunc{
		ActionCreateRoom:         s.createRoom,
		ActionConnect:            s.connect,
		ActionSendMessage:        s.sendMessage,
		ActionGetHistoric:        s.getHistoric,
		ActionKickUser:           s.kickUser,
		ActionBanUser:            s.banUser,
		ActionDisconnectFromRoom: s.disconnectFromRoom,
		ActionDisconnect:         s.disconnectAll,
		ActionLogIn:              s.logIn,
		ActionLogOut:             s.logOut,
		ActionGetRoomsInfo:       s.getRoomsInfo,
	}
}

func (s *Service) Process(conn services.Conn, env *models.Envelope) {
	action, ok := s.actions()[env.Action]
	if !ok {
		services.UnknownAction(conn, s.name, env.Action)
		return
	}

	var req request
	if err := env.Decode(&req); err != nil {
		s.fail(conn, env.Action, wrapValidation("malformed %s request", env.Action))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := action(ctx, s.session(conn), &req); err != nil {
		s.fail(conn, env.Action, err)
	}
}

// Disconnect leaves every room of the connection and forgets its session.
func (s *Service) Disconnect(conn services.Conn) {
	sess, ok := s.sessions[conn.ID()]
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.leaveAll(ctx, sess)
	delete(s.sessions, conn.ID())
	delete(s.byID, sess.ID)
}

// SessionOf returns the session of a connection.
func (s *Service) SessionOf(connID string) (*Session, bool) {
	sess, ok := s.sessions[connID]
	return sess, ok
}

func (s *Service) session(conn services.Conn) *Session {
	if sess, ok := s.sessions[conn.ID()]; ok {
		return sess
	}
	sess := newSession(conn)
	s.sessions[conn.ID()] = sess
	s.byID[sess.ID] = sess
	logger.Debug("Chat session %s created for connection %s", sess.ID, conn.ID())
	return sess
}

func (s *Service) fail(conn services.Conn, action string, err error) {
	services.Fail(conn, s.name, action, err, userErrors...)
}

func (s *Service) reply(sess *Session, resp models.Response) {
	resp.Service = s.name
	resp.Success = true
	services.Send(sess.conn, resp)
}

// broadcast sends resp to every member of room in join order.
func (s *Service) broadcast(room *models.Room, resp models.Response) {
	resp.Service = s.name
	resp.Success = true
	for _, id := range room.MemberIDs() {
		if member, ok := s.byID[id]; ok {
			services.Send(member.conn, resp)
		}
	}
}

func (s *Service) broadcastUsers(room *models.Room) {
	info := room.Info()
	s.broadcast(room, models.Response{
		Action:     models.ActionUpdateRoomUsers,
		RoomName:   room.Name,
		Pseudonyms: room.Pseudonyms(),
		Room:       &info,
	})
}

// leave removes sess from room, tells the remaining members and evicts the
// room once nobody is left.
func (s *Service) leave(ctx context.Context, sess *Session, room *models.Room) {
	room.RemoveMember(sess.ID)
	delete(sess.rooms, room.Name)
	delete(sess.roomKeys, room.Name)

	s.broadcastUsers(room)
	if _, err := s.rooms.EvictIfEmpty(ctx, room); err != nil {
		logger.Error("Failed to evict room %s: %v", room.Name, err)
	}
}

func (s *Service) leaveAll(ctx context.Context, sess *Session) {
	for _, name := range sess.Rooms() {
		room, ok := s.rooms.Cached(name)
		if !ok {
			delete(sess.rooms, name)
			continue
		}
		s.leave(ctx, sess, room)
	}
}

// roomPasswordOK checks password for a private room. Bcrypt runs once per
// session and room; later checks use the remembered digest.
func (s *Service) roomPasswordOK(sess *Session, room *models.Room, password string) bool {
	if match, known := sess.checkRoomKey(room.Name, password); known {
		return match
	}
	if !s.dir.ComparePassword(room.Password, password) {
		return false
	}
	sess.rememberRoomKey(room.Name, password)
	return true
}

// joinedRoom returns a room the session is a member of.
func (s *Service) joinedRoom(sess *Session, name string) (*models.Room, string, error) {
	pseudonym, ok := sess.Pseudonym(name)
	if !ok {
		return nil, "", ErrNotInRoom
	}
	room, ok := s.rooms.Cached(name)
	if !ok {
		delete(sess.rooms, name)
		return nil, "", ErrNotInRoom
	}
	return room, pseudonym, nil
}
