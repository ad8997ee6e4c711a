package tap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// State holds the per-stream bookmarks. It is safe for concurrent use.
type State struct {
	mu        sync.Mutex
	bookmarks map[string]map[string]string
}

// stateDocument is the persisted form of State
type stateDocument struct {
	Bookmarks map[string]map[string]string `json:"bookmarks"`
}

// NewState creates an empty state
func NewState() *State {
	return &State{bookmarks: make(map[string]map[string]string)}
}

// Bookmark returns the stored replication value of a stream, if any
func (s *State) Bookmark(stream, key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.bookmarks[stream][key]
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SetBookmark stores a replication value. Bookmarks never move backwards.
func (s *State) SetBookmark(stream, key string, value time.Time) {
	if value.IsZero() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.bookmarks[stream][key]; ok {
		if t, err := time.Parse(time.RFC3339, current); err == nil && !value.After(t) {
			return
		}
	}
	if s.bookmarks[stream] == nil {
		s.bookmarks[stream] = make(map[string]string)
	}
	s.bookmarks[stream][key] = value.UTC().Format(time.RFC3339)
}

// MarshalJSON implements json.Marshaler
func (s *State) MarshalJSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return json.Marshal(stateDocument{Bookmarks: s.bookmarks})
}

// UnmarshalJSON implements json.Unmarshaler
func (s *State) UnmarshalJSON(data []byte) error {
	var doc stateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.bookmarks = doc.Bookmarks
	if s.bookmarks == nil {
		s.bookmarks = make(map[string]map[string]string)
	}
	return nil
}

// StateStore persists bookmarks between runs
type StateStore interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, state *State) error
}

// FileStore keeps the state as a JSON document on disk
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the state file. A missing file yields an empty state.
func (f *FileStore) Load(ctx context.Context) (*State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	state := NewState()
	if len(data) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", f.path, err)
	}
	return state, nil
}

// Save writes the state atomically
func (f *FileStore) Save(ctx context.Context, state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// RedisClient is the subset of the go-redis client used by RedisStore
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisStore keeps the state as a JSON document under a single Redis key
type RedisStore struct {
	client RedisClient
	key    string
}

// NewRedisStore creates a store using key on client
func NewRedisStore(client RedisClient, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

// Load reads the state. A missing key yields an empty state.
func (r *RedisStore) Load(ctx context.Context) (*State, error) {
	data, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state from redis key %s: %w", r.key, err)
	}

	state := NewState()
	if err := json.Unmarshal([]byte(data), state); err != nil {
		return nil, fmt.Errorf("failed to parse state from redis key %s: %w", r.key, err)
	}
	return state, nil
}

// Save writes the state without expiry
func (r *RedisStore) Save(ctx context.Context, state *State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := r.client.Set(ctx, r.key, string(data), 0).Err(); err != nil {
		return fmt.Errorf("failed to write state to redis key %s: %w", r.key, err)
	}
	return nil
}
