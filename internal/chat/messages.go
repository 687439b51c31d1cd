package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wschat/internal/models"
	"wschat/internal/rooms"
	"wschat/pkg/logger"
)

func (s *Service) sendMessage(ctx context.Context, sess *Session, req *request) error {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return ErrEmptyMessage
	}

	room, pseudonym, err := s.joinedRoom(sess, strings.TrimSpace(req.RoomName))
	if err != nil {
		return err
	}
	if room.IsPrivate() && !s.roomPasswordOK(sess, room, req.RoomPassword) {
		return ErrPrivateRoomAuth
	}

	recipient := strings.TrimSpace(req.Recipient)
	var target *Session
	if recipient == "" || strings.EqualFold(recipient, models.RecipientAll) {
		recipient = models.RecipientAll
	} else {
		id, ok := room.SessionOf(recipient)
		if !ok {
			return ErrUnknownRecipient
		}
		target = s.byID[id]
		recipient, _ = room.Pseudonym(id)
	}

	msg := models.HistoricMessage{
		Text:   text,
		SentAt: s.now().UTC(),
		From:   pseudonym,
		To:     recipient,
	}
	if err := s.rooms.AppendMessage(ctx, room, msg); err != nil {
		return err
	}

	delivery := models.Response{
		Action:    models.ActionReceiveMessage,
		Text:      text,
		RoomName:  room.Name,
		Pseudonym: pseudonym,
		Recipient: recipient,
		Type:      models.MessageTypePublic,
		Time:      msg.SentAt.Format(time.RFC3339),
	}
	if target == nil {
		s.broadcast(room, delivery)
	} else {
		delivery.Type = models.MessageTypePrivate
		s.reply(target, delivery)
		if target != sess {
			s.reply(sess, delivery)
		}
	}

	s.reply(sess, models.Response{
		Action:    ActionSendMessage,
		Text:      "Message sent",
		RoomName:  room.Name,
		Recipient: recipient,
	})
	return nil
}

func (s *Service) getHistoric(ctx context.Context, sess *Session, req *request) error {
	name := strings.TrimSpace(req.RoomName)
	if name == "" {
		return wrapValidation("roomName is required")
	}
	if req.Part < 0 {
		return wrapValidation("part cannot be negative")
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

	if room.IsPrivate() && !s.roomPasswordOK(sess, room, req.RoomPassword) {
		return ErrPrivateRoomAuth
	}

	resp := models.Response{
		Action:   ActionGetHistoric,
		RoomName: name,
		Part:     req.Part,
	}
	if req.Part > room.LastPart {
		resp.Text = "No more history"
		s.reply(sess, resp)
		return nil
	}

	part, err := s.rooms.Part(ctx, room, room.LastPart-req.Part)
	if err != nil {
		return err
	}
	resp.Historic = visibleHistory(part, sess.displayName(name))
	resp.Text = fmt.Sprintf("%d messages", len(resp.Historic))
	s.reply(sess, resp)
	return nil
}

// visibleHistory keeps public messages and the private messages viewer
// sent or received.
func visibleHistory(messages []models.HistoricMessage, viewer string) []models.HistoricEntry {
	entries := make([]models.HistoricEntry, 0, len(messages))
	for _, m := range messages {
		entry := models.HistoricEntry{
			Text:      m.Text,
			Time:      m.SentAt.Format(time.RFC3339),
			Pseudonym: m.From,
		}
		switch {
		case m.IsPublic():
			entry.Type = models.MessageTypePublic
		case viewer != "" && (strings.EqualFold(m.From, viewer) || strings.EqualFold(m.To, viewer)):
			entry.Type = models.MessageTypePrivate
			entry.Recipient = m.To
		default:
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}
