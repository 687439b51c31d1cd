// Package rooms caches rooms in memory and persists their metadata, bans
// and history pages to a blob store.
//
// A Store is not safe for concurrent use. Callers serialize access through
// the connection scheduler.
package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"wschat/internal/models"
	"wschat/internal/storage"
	"wschat/pkg/logger"
)

var (
	ErrNotFound = errors.New("room not found")
	ErrExists   = errors.New("room already exists")
)

const (
	metadataFile   = "room.json"
	lastPartMarker = "historic-last-part"
)

func metadataKey(room string) string {
	return room + "/" + metadataFile
}

func markerKey(room string) string {
	return room + "/" + lastPartMarker
}

func partKey(room string, n int) string {
	return fmt.Sprintf("%s/historic-part-%d.json", room, n)
}

type Store struct {
	blobs      storage.BlobStore
	maxPerPart int
	cache      map[string]*models.Room
}

func NewStore(blobs storage.BlobStore, maxMessagesPerPart int) *Store {
	if maxMessagesPerPart < 1 {
		maxMessagesPerPart = 1
	}
	return &Store{
		blobs:      blobs,
		maxPerPart: maxMessagesPerPart,
		cache:      make(map[string]*models.Room),
	}
}

// Get returns the cached room or loads it with its latest history part.
func (s *Store) Get(ctx context.Context, name string) (*models.Room, error) {
	if room, ok := s.cache[name]; ok {
		return room, nil
	}

	room, err := s.loadMetadata(ctx, name)
	if err != nil {
		return nil, err
	}

	room.LastPart, err = s.readMarker(ctx, name)
	if err != nil {
		return nil, err
	}
	room.Current, err = s.readPart(ctx, name, room.LastPart)
	if err != nil {
		return nil, err
	}

	s.cache[name] = room
	logger.Debug("Loaded room %s (part %d, %d messages)", name, room.LastPart, len(room.Current))
	return room, nil
}

func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	if _, ok := s.cache[name]; ok {
		return true, nil
	}
	_, err := s.blobs.Read(ctx, metadataKey(name))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Create validates and persists a new room, then caches it.
func (s *Store) Create(ctx context.Context, room *models.Room) error {
	if err := room.Validate(); err != nil {
		return err
	}
	exists, err := s.Exists(ctx, room.Name)
	if err != nil {
		return err
	}
	if exists {
		return ErrExists
	}

	if err := s.Put(ctx, room); err != nil {
		return err
	}
	if err := s.writeMarker(ctx, room.Name, room.LastPart); err != nil {
		return err
	}
	s.cache[room.Name] = room
	return nil
}

// Put persists the metadata and ban list. Members and unflushed history
// are not written.
func (s *Store) Put(ctx context.Context, room *models.Room) error {
	if room.Bans == nil {
		room.Bans = []models.BanRecord{}
	}
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to encode room %s: %w", room.Name, err)
	}
	if err := s.blobs.Write(ctx, metadataKey(room.Name), data); err != nil {
		return fmt.Errorf("failed to save room %s: %w", room.Name, err)
	}
	return nil
}

// AddBan appends a ban record and persists it.
func (s *Store) AddBan(ctx context.Context, room *models.Room, ban models.BanRecord) error {
	room.Bans = append(room.Bans, ban)
	return s.Put(ctx, room)
}

// AppendMessage adds msg to the current part. A part reaching the cap is
// written out and a new one begins.
func (s *Store) AppendMessage(ctx context.Context, room *models.Room, msg models.HistoricMessage) error {
	room.Current = append(room.Current, msg)
	if len(room.Current) < s.maxPerPart {
		return nil
	}

	if err := s.writePart(ctx, room.Name, room.LastPart, room.Current); err != nil {
		return err
	}
	if err := s.writeMarker(ctx, room.Name, room.LastPart+1); err != nil {
		return err
	}
	room.LastPart++
	room.Current = nil
	return nil
}

// Part returns history page n; the current page is served from memory.
// Pages outside [0, LastPart] are empty.
func (s *Store) Part(ctx context.Context, room *models.Room, n int) ([]models.HistoricMessage, error) {
	switch {
	case n < 0 || n > room.LastPart:
		return nil, nil
	case n == room.LastPart:
		return append([]models.HistoricMessage(nil), room.Current...), nil
	default:
		return s.readPart(ctx, room.Name, n)
	}
}

// EvictIfEmpty writes out the partial part of a room without members and
// drops it from the cache.
func (s *Store) EvictIfEmpty(ctx context.Context, room *models.Room) (bool, error) {
	if room.MemberCount() > 0 {
		return false, nil
	}
	if err := s.flush(ctx, room); err != nil {
		return false, err
	}
	delete(s.cache, room.Name)
	logger.Debug("Evicted room %s", room.Name)
	return true, nil
}

// FlushAll writes out every cached room's partial part.
func (s *Store) FlushAll(ctx context.Context) error {
	var errs []error
	for _, room := range s.cache {
		if err := s.flush(ctx, room); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// List returns the names of all persisted rooms.
func (s *Store) List(ctx context.Context) ([]string, error) {
	names, err := s.blobs.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return names, nil
}

// Info describes a room without loading its history into the cache.
func (s *Store) Info(ctx context.Context, name string) (models.RoomInfo, error) {
	if room, ok := s.cache[name]; ok {
		return room.Info(), nil
	}
	room, err := s.loadMetadata(ctx, name)
	if err != nil {
		return models.RoomInfo{}, err
	}
	return room.Info(), nil
}

func (s *Store) Cached(name string) (*models.Room, bool) {
	room, ok := s.cache[name]
	return room, ok
}

func (s *Store) flush(ctx context.Context, room *models.Room) error {
	if len(room.Current) == 0 {
		return nil
	}
	return s.writePart(ctx, room.Name, room.LastPart, room.Current)
}

func (s *Store) loadMetadata(ctx context.Context, name string) (*models.Room, error) {
	data, err := s.blobs.Read(ctx, metadataKey(name))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read room %s: %w", name, err)
	}

	room := &models.Room{}
	if err := json.Unmarshal(data, room); err != nil {
		return nil, fmt.Errorf("failed to decode room %s: %w", name, err)
	}
	return room, nil
}

func (s *Store) readMarker(ctx context.Context, name string) (int, error) {
	data, err := s.blobs.Read(ctx, markerKey(name))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read history marker of %s: %w", name, err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("corrupt history marker for %s: %q", name, data)
	}
	return n, nil
}

func (s *Store) writeMarker(ctx context.Context, name string, n int) error {
	if err := s.blobs.Write(ctx, markerKey(name), []byte(strconv.Itoa(n))); err != nil {
		return fmt.Errorf("failed to write history marker of %s: %w", name, err)
	}
	return nil
}

func (s *Store) readPart(ctx context.Context, name string, n int) ([]models.HistoricMessage, error) {
	data, err := s.blobs.Read(ctx, partKey(name, n))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history part %d of %s: %w", n, name, err)
	}
	var part []models.HistoricMessage
	if err := json.Unmarshal(data, &part); err != nil {
		return nil, fmt.Errorf("failed to decode history part %d of %s: %w", n, name, err)
	}
	return part, nil
}

func (s *Store) writePart(ctx context.Context, name string, n int, messages []models.HistoricMessage) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	if err := s.blobs.Write(ctx, partKey(name, n), data); err != nil {
		return fmt.Errorf("failed to write history part %d of %s: %w", n, name, err)
	}
	return nil
}
