package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"wschat/internal/auth"
	"wschat/internal/chat"
	"wschat/internal/config"
	"wschat/internal/database"
	"wschat/internal/models"
	"wschat/internal/rooms"
	"wschat/internal/services"
	"wschat/internal/storage"
	"wschat/internal/websocket"
	"wschat/pkg/logger"

	gfshutdown "github.com/gelmium/graceful-shutdown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize room storage
	blobs, err := openStore(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to open %s storage: %v", cfg.Storage.Driver, err)
	}
	defer blobs.Close()

	// Initialize user directory
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	authService := auth.NewService(db, cfg)
	if err := seedAdmin(ctx, authService, cfg.Bootstrap); err != nil {
		logger.Fatal("Failed to create administrator: %v", err)
	}

	roomStore := rooms.NewStore(blobs, cfg.Chat.MaxMessagesPerFile)

	// Services known to the binary
	factories := map[string]services.Factory{
		cfg.Chat.ServiceName: func() services.Service {
			return chat.NewService(roomStore, authService, chat.Options{
				Name:    cfg.Chat.ServiceName,
				Timeout: cfg.Database.Timeout,
			})
		},
	}
	registry := services.NewRegistry(factories, authService, cfg.Database.Timeout)
	if err := registry.Enable(cfg.Chat.Services...); err != nil {
		logger.Fatal("Failed to start services: %v", err)
	}

	mux, err := websocket.NewMultiplexer(cfg.Server, registry)
	if err != nil {
		logger.Fatal("Failed to create server: %v", err)
	}

	logger.Info("🚀 Server started on ws://localhost%s", cfg.Server.ListenAddr)
	logger.Info("📡 Services: %v (storage: %s)", registry.Running(), cfg.Storage.Driver)

	go func() {
		if err := mux.ListenAndServe(); err != nil && !errors.Is(err, websocket.ErrServerClosed) {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Stop accepting, close connections, then flush partial history parts
	wait := gfshutdown.GracefulShutdown(context.Background(), shutdownTimeout,
		map[string]gfshutdown.Operation{
			"chat-server": func(ctx context.Context) error {
				logger.Info("Server shutting down...")
				if err := mux.Shutdown(ctx); err != nil {
					logger.Warn("Connections did not close in time: %v", err)
				}
				if err := roomStore.FlushAll(ctx); err != nil {
					logger.Error("Failed to flush room history: %v", err)
					return err
				}
				return nil
			},
		},
	)

	exitCode := <-wait
	logger.Info("Server stopped (exit code %d)", exitCode)
	blobs.Close()
	db.Close()
	os.Exit(exitCode)
}

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.BlobStore, error) {
	switch cfg.Driver {
	case config.StorageFile:
		return storage.NewFileStore(cfg.Path)
	case config.StorageRedis:
		return storage.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPrefix)
	case config.StorageSQLite:
		return storage.NewSQLiteStore(cfg.SQLitePath)
	case config.StorageMemory:
		logger.Warn("Using in-memory storage, rooms are lost on restart")
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func openDatabase(ctx context.Context, cfg *config.Config) (database.Database, error) {
	if cfg.Database.URL == "" {
		logger.Warn("DATABASE_URL not set, using an in-memory user directory")
		return database.NewMemoryDB(), nil
	}
	return database.NewPostgresDB(ctx, cfg.Database.URL)
}

// seedAdmin creates the configured administrator if it does not exist yet.
func seedAdmin(ctx context.Context, authService *auth.Service, cfg config.BootstrapConfig) error {
	if cfg.AdminLogin == "" {
		return nil
	}
	rights := models.GlobalRights{WebSocket: true, ChatAdmin: true}
	_, err := authService.CreateUser(ctx, cfg.AdminLogin, cfg.AdminLogin, cfg.AdminPassword, rights)
	if errors.Is(err, database.ErrUserExists) {
		return nil
	}
	if err == nil {
		logger.Info("Administrator %s created", cfg.AdminLogin)
	}
	return err
}
