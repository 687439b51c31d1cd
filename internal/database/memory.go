package database

import (
	"context"
	"strings"
	"sync"
	"time"

	"wschat/internal/models"
)

type roomRightsKey struct {
	userID int
	room   string
}

// MemoryDB is a process-local Database used when no DATABASE_URL is set.
type MemoryDB struct {
	mu         sync.RWMutex
	nextID     int
	users      map[int]*models.User
	byLogin    map[string]int
	global     map[int]models.GlobalRights
	roomRights map[roomRightsKey]models.RoomRights
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		nextID:     1,
		users:      make(map[int]*models.User),
		byLogin:    make(map[string]int),
		global:     make(map[int]models.GlobalRights),
		roomRights: make(map[roomRightsKey]models.RoomRights),
	}
}

func (db *MemoryDB) Close() error {
	return nil
}

func (db *MemoryDB) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	id, ok := db.byLogin[login]
	if !ok {
		return nil, ErrUserNotFound
	}
	user := *db.users[id]
	return &user, nil
}

func (db *MemoryDB) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	stored, ok := db.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	user := *stored
	user.PasswordHash = ""
	return &user, nil
}

func (db *MemoryDB) CreateUser(ctx context.Context, login, pseudonym, passwordHash string) (*models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.byLogin[login]; ok {
		return nil, ErrUserExists
	}
	for _, u := range db.users {
		if strings.EqualFold(u.Pseudonym, pseudonym) {
			return nil, ErrUserExists
		}
	}

	user := &models.User{
		ID:           db.nextID,
		Login:        login,
		Pseudonym:    pseudonym,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	db.nextID++
	db.users[user.ID] = user
	db.byLogin[login] = user.ID

	created := *user
	return &created, nil
}

func (db *MemoryDB) PseudonymExists(ctx context.Context, pseudonym string) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, u := range db.users {
		if strings.EqualFold(u.Pseudonym, pseudonym) {
			return true, nil
		}
	}
	return false, nil
}

func (db *MemoryDB) GetGlobalRights(ctx context.Context, userID int) (models.GlobalRights, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.global[userID], nil
}

func (db *MemoryDB) SetGlobalRights(ctx context.Context, userID int, rights models.GlobalRights) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.users[userID]; !ok {
		return ErrUserNotFound
	}
	db.global[userID] = rights
	return nil
}

func (db *MemoryDB) GetRoomRights(ctx context.Context, userID int, room string) (models.RoomRights, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.roomRights[roomRightsKey{userID, room}], nil
}

func (db *MemoryDB) SetRoomRights(ctx context.Context, userID int, room string, rights models.RoomRights) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.users[userID]; !ok {
		return ErrUserNotFound
	}
	db.roomRights[roomRightsKey{userID, room}] = rights
	return nil
}
