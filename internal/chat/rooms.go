package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"wschat/internal/auth"
	"wschat/internal/models"
	"wschat/internal/rooms"
	"wschat/pkg/logger"
)

func (s *Service) createRoom(ctx context.Context, sess *Session, req *request) error {
	name := strings.TrimSpace(req.RoomName)
	room := &models.Room{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      models.RoomType(req.Type),
		Password:  req.RoomPassword,
		CreatedAt: s.now().UTC(),
		MaxUsers:  req.MaxUsers,
	}
	if err := room.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	exists, err := s.rooms.Exists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return wrapValidation("room %s already exists", name)
	}

	if sess.IsGuest() {
		return ErrAuthenticationFailed
	}

	if room.IsPrivate() {
		if room.Password, err = s.dir.HashPassword(req.RoomPassword); err != nil {
			return err
		}
	}
	room.CreatorID = sess.User.ID

	if err := s.rooms.Create(ctx, room); err != nil {
		if errors.Is(err, rooms.ErrExists) {
			return wrapValidation("room %s already exists", name)
		}
		return err
	}
	if err := s.dir.GrantRoomRights(ctx, sess.User.ID, name, models.FullRoomRights()); err != nil {
		logger.Error("Failed to grant rights on %s to user %d: %v", name, sess.User.ID, err)
	}

	pseudonym := sess.User.Pseudonym
	if err := room.AddMember(sess.ID, pseudonym); err != nil {
		return err
	}
	sess.rooms[name] = pseudonym
	if room.IsPrivate() {
		sess.rememberRoomKey(name, req.RoomPassword)
	}
	logger.Info("Room %s created by %s", name, sess.User.Login)

	info := room.Info()
	s.reply(sess, models.Response{
		Action:    ActionCreateRoom,
		Text:      fmt.Sprintf("Room %s created", name),
		RoomName:  name,
		Pseudonym: pseudonym,
		Room:      &info,
	})
	s.broadcastUsers(room)
	return nil
}

func (s *Service) connect(ctx context.Context, sess *Session, req *request) error {
	name := strings.TrimSpace(req.RoomName)
	if name == "" {
		return wrapValidation("roomName is required")
	}
	if _, joined := sess.Pseudonym(name); joined {
		return wrapValidation("you are already in room %s", name)
	}

	room, err := s.rooms.Get(ctx, name)
	if errors.Is(err, rooms.ErrNotFound) {
		return ErrRoomNotFound
	}
	if err != nil {
		return err
	}

	// A room loaded only for this attempt must not stay cached.
	joined := false
	defer func() {
		if !joined {
			if _, err := s.rooms.EvictIfEmpty(ctx, room); err != nil {
				logger.Error("Failed to evict room %s: %v", room.Name, err)
			}
		}
	}()

	if room.IsFull() {
		return ErrRoomFull
	}
	if room.IsPrivate() && !s.roomPasswordOK(sess, room, req.RoomPassword) {
		return ErrWrongPassword
	}
	if room.IsBanned(sess.conn.RemoteIP()) {
		return ErrBanned
	}

	pseudonym, user, err := s.resolvePseudonym(ctx, sess, room, req)
	if err != nil {
		return err
	}

	if err := room.AddMember(sess.ID, pseudonym); err != nil {
		return err
	}
	if user != nil {
		sess.User = user
	}
	sess.rooms[name] = pseudonym
	joined = true
	logger.Debug("%s joined room %s", pseudonym, name)

	info := room.Info()
	s.reply(sess, models.Response{
		Action:    ActionConnect,
		Text:      fmt.Sprintf("Connected to %s", name),
		RoomName:  name,
		Pseudonym: pseudonym,
		Room:      &info,
		Historic:  visibleHistory(room.Current, pseudonym),
	})
	s.broadcastUsers(room)
	return nil
}

// resolvePseudonym picks the name sess will use in room. Authenticated
// users prove their identity again and use their profile pseudonym; the
// proven user is returned for the caller to attach once the join succeeds.
func (s *Service) resolvePseudonym(ctx context.Context, sess *Session, room *models.Room, req *request) (string, *models.User, error) {
	var (
		pseudonym string
		user      *models.User
	)

	if !sess.IsGuest() || req.Login != "" || req.Token != "" {
		var err error
		user, err = s.reauthenticate(ctx, req)
		if err != nil {
			return "", nil, err
		}
		if !sess.IsGuest() && user.ID != sess.User.ID {
			return "", nil, fmt.Errorf("%w: credentials belong to another user", ErrAuthenticationFailed)
		}
		pseudonym = user.Pseudonym
	} else {
		pseudonym = strings.TrimSpace(req.Pseudonym)
		if pseudonym == "" {
			return "", nil, wrapValidation("pseudonym is required")
		}
		if strings.EqualFold(pseudonym, models.RecipientAll) {
			return "", nil, wrapValidation("pseudonym %q is reserved", pseudonym)
		}
		registered, err := s.dir.IsPseudonymRegistered(ctx, pseudonym)
		if err != nil {
			return "", nil, err
		}
		if registered {
			return "", nil, ErrPseudonymInUse
		}
	}

	if _, taken := room.SessionOf(pseudonym); taken {
		return "", nil, ErrPseudonymInUse
	}
	return pseudonym, user, nil
}

func (s *Service) reauthenticate(ctx context.Context, req *request) (*models.User, error) {
	var (
		user *models.User
		err  error
	)
	switch {
	case req.Token != "":
		user, err = s.dir.UserFromToken(ctx, req.Token)
	case req.Login != "":
		user, err = s.dir.Authenticate(ctx, req.Login, req.Password)
	default:
		return nil, fmt.Errorf("%w: login and password or token required", ErrAuthenticationFailed)
	}

	if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrInvalidToken) {
		return nil, ErrAuthenticationFailed
	}
	return user, err
}

func (s *Service) disconnectFromRoom(ctx context.Context, sess *Session, req *request) error {
	room, _, err := s.joinedRoom(sess, strings.TrimSpace(req.RoomName))
	if err != nil {
		return err
	}
	s.leave(ctx, sess, room)

	s.reply(sess, models.Response{
		Action:   ActionDisconnectFromRoom,
		Text:     fmt.Sprintf("Left %s", room.Name),
		RoomName: room.Name,
	})
	return nil
}

func (s *Service) disconnectAll(ctx context.Context, sess *Session, req *request) error {
	s.leaveAll(ctx, sess)
	s.reply(sess, models.Response{
		Action: ActionDisconnect,
		Text:   "Left every room",
	})
	return nil
}

func (s *Service) getRoomsInfo(ctx context.Context, sess *Session, req *request) error {
	names, err := s.rooms.List(ctx)
	if err != nil {
		return err
	}

	infos := make([]models.RoomInfo, 0, len(names))
	for _, name := range names {
		info, err := s.rooms.Info(ctx, name)
		if errors.Is(err, rooms.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		infos = append(infos, info)
	}

	s.reply(sess, models.Response{
		Action: ActionGetRoomsInfo,
		Text:   fmt.Sprintf("%d rooms", len(infos)),
		Rooms:  infos,
	})
	return nil
}
