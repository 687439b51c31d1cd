package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"wschat/internal/models"
	"wschat/internal/rooms"
	"wschat/pkg/logger"
)

type sanction struct {
	action   string
	notice   string // sent to the target
	info     string // sent to the remaining members
	verb     string
	allowed  func(models.RoomRights) bool
	recorded bool
}

var (
	kick = sanction{
		action:  ActionKickUser,
		notice:  models.ActionGetKicked,
		info:    models.ActionUserKicked,
		verb:    "kicked",
		allowed: func(r models.RoomRights) bool { return r.Kick },
	}
	ban = sanction{
		action:   ActionBanUser,
		notice:   models.ActionGetBanned,
		info:     models.ActionUserBanned,
		verb:     "banned",
		allowed:  func(r models.RoomRights) bool { return r.Ban },
		recorded: true,
	}
)

func (s *Service) kickUser(ctx context.Context, sess *Session, req *request) error {
	return s.sanction(ctx, sess, req, kick)
}

func (s *Service) banUser(ctx context.Context, sess *Session, req *request) error {
	return s.sanction(ctx, sess, req, ban)
}

func (s *Service) sanction(ctx context.Context, sess *Session, req *request, sn sanction) error {
	name := strings.TrimSpace(req.RoomName)
	if name == "" {
		return wrapValidation("roomName is required")
	}
	targetName := strings.TrimSpace(req.Pseudonym)
	if targetName == "" {
		return wrapValidation("pseudonym is required")
	}

	room, err := s.rooms.Get(ctx, name)
	if errors.Is(err, rooms.ErrNotFound) {
		return ErrRoomNotFound
	}
	if err != nil {
		return err
	}
	defer func() {
		if _, err := s.rooms.EvictIfEmpty(ctx, room); err != nil {
			logger.Error("Failed to evict room %s: %v", room.Name, err)
		}
	}()

	if err := s.authorize(ctx, sess, name, sn.allowed); err != nil {
		return err
	}

	targetID, ok := room.SessionOf(targetName)
	if !ok {
		return ErrUserNotFound
	}
	target, ok := s.byID[targetID]
	if !ok {
		return ErrUserNotFound
	}
	targetName, _ = room.Pseudonym(targetID)
	admin := sess.displayName(name)
	reason := strings.TrimSpace(req.Reason)

	if sn.recorded {
		record := models.BanRecord{
			Room:      name,
			IP:        target.conn.RemoteIP(),
			Pseudonym: targetName,
			Admin:     admin,
			Reason:    reason,
			BannedAt:  s.now().UTC(),
		}
		if err := s.rooms.AddBan(ctx, room, record); err != nil {
			return err
		}
	}

	s.reply(target, models.Response{
		Action:   sn.notice,
		Text:     fmt.Sprintf("You have been %s from %s by %s", sn.verb, name, admin),
		RoomName: name,
		Admin:    admin,
		Reason:   reason,
	})

	s.leave(ctx, target, room)
	logger.Info("%s %s from %s by %s (%s)", targetName, sn.verb, name, admin, reason)

	s.broadcast(room, models.Response{
		Action:    sn.info,
		Text:      fmt.Sprintf("%s has been %s by %s", targetName, sn.verb, admin),
		RoomName:  name,
		Pseudonym: targetName,
		Admin:     admin,
		Reason:    reason,
	})

	s.reply(sess, models.Response{
		Action:    sn.action,
		Text:      fmt.Sprintf("%s has been %s", targetName, sn.verb),
		RoomName:  name,
		Pseudonym: targetName,
	})
	return nil
}

// authorize requires the global chatAdmin right or the per room right.
func (s *Service) authorize(ctx context.Context, sess *Session, room string, allowed func(models.RoomRights) bool) error {
	if sess.IsGuest() {
		return ErrAuthorizationFailed
	}

	global, err := s.dir.GlobalRights(ctx, sess.User.ID)
	if err != nil {
		return err
	}
	if global.ChatAdmin {
		return nil
	}

	rights, err := s.dir.RoomRights(ctx, sess.User.ID, room)
	if err != nil {
		return err
	}
	if !allowed(rights) {
		return ErrAuthorizationFailed
	}
	return nil
}
