package database

import (
	"context"
	"errors"

	"wschat/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

type UserRepository interface {
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	CreateUser(ctx context.Context, login, pseudonym, passwordHash string) (*models.User, error)
	// PseudonymExists compares case-insensitively.
	PseudonymExists(ctx context.Context, pseudonym string) (bool, error)
}

// RightsRepository returns zero rights for users without a stored row.
type RightsRepository interface {
	GetGlobalRights(ctx context.Context, userID int) (models.GlobalRights, error)
	SetGlobalRights(ctx context.Context, userID int, rights models.GlobalRights) error
	GetRoomRights(ctx context.Context, userID int, room string) (models.RoomRights, error)
	SetRoomRights(ctx context.Context, userID int, room string, rights models.RoomRights) error
}

type Database interface {
	UserRepository
	RightsRepository
	Close() error
}
