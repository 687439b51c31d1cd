package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"wschat/internal/models"
	"wschat/pkg/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            SERIAL PRIMARY KEY,
	login         TEXT NOT NULL UNIQUE,
	pseudonym     TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS global_rights (
	user_id    INTEGER PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
	web_socket BOOLEAN NOT NULL DEFAULT FALSE,
	chat_admin BOOLEAN NOT NULL DEFAULT FALSE,
	kibana     BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE TABLE IF NOT EXISTS room_rights (
	user_id       INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	room_name     TEXT NOT NULL,
	kick          BOOLEAN NOT NULL DEFAULT FALSE,
	ban           BOOLEAN NOT NULL DEFAULT FALSE,
	grant_rights  BOOLEAN NOT NULL DEFAULT FALSE,
	rename        BOOLEAN NOT NULL DEFAULT FALSE,
	edit_password BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (user_id, room_name)
);`

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// User Repository Implementation
func (db *PostgresDB) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	query := `SELECT id, login, pseudonym, password_hash, created_at FROM users WHERE login = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, login).Scan(
		&user.ID, &user.Login, &user.Pseudonym, &user.PasswordHash, &user.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	query := `SELECT id, login, pseudonym, created_at FROM users WHERE id = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Login, &user.Pseudonym, &user.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (db *PostgresDB) CreateUser(ctx context.Context, login, pseudonym, passwordHash string) (*models.User, error) {
	query := `
		INSERT INTO users (login, pseudonym, password_hash, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, login, pseudonym, created_at`

	user := &models.User{PasswordHash: passwordHash}
	err := db.pool.QueryRow(ctx, query, login, pseudonym, passwordHash).Scan(
		&user.ID, &user.Login, &user.Pseudonym, &user.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return nil, ErrUserExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

func (db *PostgresDB) PseudonymExists(ctx context.Context, pseudonym string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(pseudonym) = LOWER($1))`

	var exists bool
	err := db.pool.QueryRow(ctx, query, pseudonym).Scan(&exists)
	return exists, err
}

// Rights Repository Implementation
func (db *PostgresDB) GetGlobalRights(ctx context.Context, userID int) (models.GlobalRights, error) {
	query := `SELECT web_socket, chat_admin, kibana FROM global_rights WHERE user_id = $1`

	var rights models.GlobalRights
	err := db.pool.QueryRow(ctx, query, userID).Scan(&rights.WebSocket, &rights.ChatAdmin, &rights.Kibana)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.GlobalRights{}, nil
	}
	return rights, err
}

func (db *PostgresDB) SetGlobalRights(ctx context.Context, userID int, rights models.GlobalRights) error {
	query := `
		INSERT INTO global_rights (user_id, web_socket, chat_admin, kibana) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id)
		DO UPDATE SET web_socket = EXCLUDED.web_socket, chat_admin = EXCLUDED.chat_admin, kibana = EXCLUDED.kibana`

	_, err := db.pool.Exec(ctx, query, userID, rights.WebSocket, rights.ChatAdmin, rights.Kibana)
	return err
}

func (db *PostgresDB) GetRoomRights(ctx context.Context, userID int, room string) (models.RoomRights, error) {
	query := `
		SELECT kick, ban, grant_rights, rename, edit_password
		FROM room_rights WHERE user_id = $1 AND room_name = $2`

	var rights models.RoomRights
	err := db.pool.QueryRow(ctx, query, userID, room).Scan(
		&rights.Kick, &rights.Ban, &rights.Grant, &rights.Rename, &rights.EditPassword,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.RoomRights{}, nil
	}
	return rights, err
}

func (db *PostgresDB) SetRoomRights(ctx context.Context, userID int, room string, rights models.RoomRights) error {
	query := `
		INSERT INTO room_rights (user_id, room_name, kick, ban, grant_rights, rename, edit_password)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, room_name)
		DO UPDATE SET kick = EXCLUDED.kick, ban = EXCLUDED.ban, grant_rights = EXCLUDED.grant_rights,
			rename = EXCLUDED.rename, edit_password = EXCLUDED.edit_password`

	_, err := db.pool.Exec(ctx, query, userID, room,
		rights.Kick, rights.Ban, rights.Grant, rights.Rename, rights.EditPassword)
	return err
}
