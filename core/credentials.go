package core

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// defaultCredentialKey is the Redis key holding the session record
const defaultCredentialKey = "farmiq:session:credentials"

// FileCredentialStore persists the session record as a single JSON file.
// Writes go through a temp file and rename so the token and user snapshot
// can never be observed half-written.
type FileCredentialStore struct {
	path string
	mu   sync.Mutex
}

// NewFileCredentialStore creates a file-backed credential store at path.
// Parent directories are created on first save.
func NewFileCredentialStore(path string) *FileCredentialStore {
	return &FileCredentialStore{path: path}
}

// Load reads the persisted record. A missing file yields (nil, nil);
// a corrupt file is treated the same way, since a record the session
// manager cannot parse is as good as no record.
func (s *FileCredentialStore) Load(ctx context.Context) (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, nil
	}
	if creds.Token == "" {
		return nil, nil
	}
	return &creds, nil
}

// Save atomically writes the record
func (s *FileCredentialStore) Save(ctx context.Context, creds *Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}

	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".credentials-*")
	if err != nil {
		return fmt.Errorf("create temp credentials: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close credentials: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod credentials: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("install credentials: %w", err)
	}
	return nil
}

// Clear removes the record. A missing file is not an error.
func (s *FileCredentialStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// RedisCredentialStore persists the session record in Redis, for headless
// deployments that share session state across restarts or replicas.
// The record is one key, so the pair invariant holds for free.
type RedisCredentialStore struct {
	client *redis.Client
	key    string
}

// NewRedisCredentialStore connects to Redis and verifies connectivity.
// An empty key selects the default.
func NewRedisCredentialStore(redisURL, key string) (*RedisCredentialStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	if key == "" {
		key = defaultCredentialKey
	}
	return &RedisCredentialStore{client: client, key: key}, nil
}

// Load reads the persisted record; a missing key yields (nil, nil)
func (s *RedisCredentialStore) Load(ctx context.Context) (*Credentials, error) {
	data, err := s.client.Get(ctx, s.key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal([]byte(data), &creds); err != nil {
		return nil, nil
	}
	if creds.Token == "" {
		return nil, nil
	}
	return &creds, nil
}

// Save writes the record as one key
func (s *RedisCredentialStore) Save(ctx context.Context, creds *Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// Clear removes the record
func (s *RedisCredentialStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// Close releases the Redis connection
func (s *RedisCredentialStore) Close() error {
	return s.client.Close()
}

// MemoryCredentialStore keeps the record in memory only. Used in tests
// and for sessions that should not survive the process.
type MemoryCredentialStore struct {
	mu    sync.Mutex
	creds *Credentials
}

// NewMemoryCredentialStore creates an empty in-memory credential store
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{}
}

func (s *MemoryCredentialStore) Load(ctx context.Context) (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds == nil {
		return nil, nil
	}
	copied := *s.creds
	return &copied, nil
}

func (s *MemoryCredentialStore) Save(ctx context.Context, creds *Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *creds
	s.creds = &copied
	return nil
}

func (s *MemoryCredentialStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = nil
	return nil
}

// NewCredentialStore builds the credential store selected by the configuration
func NewCredentialStore(cfg *Config) (CredentialStore, error) {
	switch cfg.Credentials.Provider {
	case "file":
		return NewFileCredentialStore(cfg.Credentials.Path), nil
	case "redis":
		return NewRedisCredentialStore(cfg.Credentials.RedisURL, "")
	case "memory":
		return NewMemoryCredentialStore(), nil
	default:
		return nil, fmt.Errorf("%w: unknown credentials provider %q",
			ErrInvalidConfiguration, cfg.Credentials.Provider)
	}
}
