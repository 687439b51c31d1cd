// Package auth is the user and rights lookup used by the chat service and
// the service registry.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"wschat/internal/config"
	"wschat/internal/database"
	"wschat/internal/models"
)

type Service struct {
	db   database.Database
	jwt  config.JWTConfig
	cost int
}

func NewService(db database.Database, cfg *config.Config) *Service {
	cost := cfg.Chat.PasswordCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		db:   db,
		jwt:  cfg.JWT,
		cost: cost,
	}
}

// Authenticate checks a login and password. Unknown logins and wrong
// passwords are reported the same way.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*models.User, error) {
	if login == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.db.GetUserByLogin(ctx, login)
	if errors.Is(err, database.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	// Remove sensitive data
	user.PasswordHash = ""
	return user, nil
}

func (s *Service) GlobalRights(ctx context.Context, userID int) (models.GlobalRights, error) {
	return s.db.GetGlobalRights(ctx, userID)
}

func (s *Service) RoomRights(ctx context.Context, userID int, room string) (models.RoomRights, error) {
	return s.db.GetRoomRights(ctx, userID, room)
}

func (s *Service) GrantRoomRights(ctx context.Context, userID int, room string, rights models.RoomRights) error {
	return s.db.SetRoomRights(ctx, userID, room, rights)
}

func (s *Service) IsPseudonymRegistered(ctx context.Context, pseudonym string) (bool, error) {
	return s.db.PseudonymExists(ctx, pseudonym)
}

// CreateUser registers a user with the given global rights.
func (s *Service) CreateUser(ctx context.Context, login, pseudonym, password string, rights models.GlobalRights) (*models.User, error) {
	login = strings.TrimSpace(login)
	pseudonym = strings.TrimSpace(pseudonym)
	if login == "" || pseudonym == "" || password == "" {
		return nil, fmt.Errorf("missing required fields")
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := s.db.CreateUser(ctx, login, pseudonym, hash)
	if err != nil {
		return nil, err
	}
	if err := s.db.SetGlobalRights(ctx, user.ID, rights); err != nil {
		return nil, fmt.Errorf("failed to set rights: %w", err)
	}

	user.PasswordHash = ""
	return user, nil
}

func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func (s *Service) ComparePassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (s *Service) IssueToken(user *models.User) (string, error) {
	claims := jwt.MapClaims{
		"user_id":   user.ID,
		"login":     user.Login,
		"pseudonym": user.Pseudonym,
		"exp":       time.Now().Add(s.jwt.ExpiresIn).Unix(),
		"iat":       time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwt.Secret)
}

func (s *Service) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, jwt.MapClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwt.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) UserFromToken(ctx context.Context, tokenString string) (*models.User, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	userIDFloat, ok := claims["user_id"].(float64)
	if !ok {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}

	user, err := s.db.GetUserByID(ctx, int(userIDFloat))
	if errors.Is(err, database.ErrUserNotFound) {
		return nil, ErrInvalidToken
	}
	return user, err
}
