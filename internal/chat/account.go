package chat

import (
	"context"
	"errors"
	"fmt"

	"wschat/internal/auth"
	"wschat/internal/models"
	"wschat/pkg/logger"
)

func (s *Service) logIn(ctx context.Context, sess *Session, req *request) error {
	if req.Login == "" || req.Password == "" {
		return wrapValidation("login and password are required")
	}

	user, err := s.dir.Authenticate(ctx, req.Login, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return ErrAuthenticationFailed
	}
	if err != nil {
		return err
	}

	// Rooms joined under another identity are left first.
	if sess.User != nil && sess.User.ID != user.ID {
		s.leaveAll(ctx, sess)
	}

	token, err := s.dir.IssueToken(user)
	if err != nil {
		return err
	}
	sess.User = user
	logger.Info("%s logged in on session %s", user.Login, sess.ID)

	s.reply(sess, models.Response{
		Action:    ActionLogIn,
		Text:      fmt.Sprintf("Welcome %s", user.Pseudonym),
		Pseudonym: user.Pseudonym,
		Token:     token,
		User:      user,
	})
	return nil
}

func (s *Service) logOut(ctx context.Context, sess *Session, req *request) error {
	if sess.IsGuest() {
		return ErrAuthenticationFailed
	}

	s.leaveAll(ctx, sess)
	logger.Info("%s logged out of session %s", sess.User.Login, sess.ID)
	sess.User = nil

	s.reply(sess, models.Response{
		Action: ActionLogOut,
		Text:   "Logged out",
	})
	return nil
}
