package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	rferrors "github.com/vnykmshr/rowflow/pkg/common/errors"
)

// Store publishes distribution tables by run id.
type Store interface {
	Save(ctx context.Context, runID string, t *DistributionTable) error
	Load(ctx context.Context, runID string) (*DistributionTable, error)
}

// ErrTableNotFound is returned by Load when no table was saved for a run.
var ErrTableNotFound = fmt.Errorf("%w: distribution table not found", rferrors.ErrInvalidConfiguration)

// MemoryStore keeps tables in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string][]Entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string][]Entry)}
}

func (s *MemoryStore) Save(_ context.Context, runID string, t *DistributionTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[runID] = t.Entries()
	return nil
}

func (s *MemoryStore) Load(_ context.Context, runID string) (*DistributionTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, ok := s.tables[runID]
	if !ok {
		return nil, ErrTableNotFound
	}
	return NewDistributionTable(entries...), nil
}

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	// Redis client for coordination
	Redis redis.UniversalClient

	// KeyPrefix is prepended to every run key. Defaults to "rowflow:distribution".
	KeyPrefix string

	// TTL expires published tables. Zero keeps them until overwritten.
	TTL time.Duration
}

// RedisStore keeps each run's table in one Redis hash.
type RedisStore struct {
	config RedisConfig
}

// NewRedisStore creates a RedisStore.
func NewRedisStore(config RedisConfig) *RedisStore {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "rowflow:distribution"
	}
	return &RedisStore{config: config}
}

func (s *RedisStore) key(runID string) string {
	return s.config.KeyPrefix + ":" + runID
}

type fieldKey struct {
	Server string `json:"s"`
	Schema string `json:"p"`
	Copy   int    `json:"c"`
}

// Save replaces the run's table atomically.
func (s *RedisStore) Save(ctx context.Context, runID string, t *DistributionTable) error {
	values := make(map[string]interface{}, t.Len())
	for _, e := range t.Entries() {
		field, err := json.Marshal(fieldKey{Server: e.Server, Schema: e.Schema, Copy: e.Copy})
		if err != nil {
			return err
		}
		values[string(field)] = e.Partition
	}

	key := s.key(runID)
	pipe := s.config.Redis.TxPipeline()
	pipe.Del(ctx, key)
	if len(values) > 0 {
		pipe.HSet(ctx, key, values)
		if s.config.TTL > 0 {
			pipe.Expire(ctx, key, s.config.TTL)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return rferrors.NewOperationError("cluster", "Save", err).WithContext(key)
	}
	return nil
}

// Load reads the run's table. It returns ErrTableNotFound when the key is absent.
func (s *RedisStore) Load(ctx context.Context, runID string) (*DistributionTable, error) {
	key := s.key(runID)
	raw, err := s.config.Redis.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, rferrors.NewOperationError("cluster", "Load", err).WithContext(key)
	}
	if len(raw) == 0 {
		return nil, ErrTableNotFound
	}

	t := NewDistributionTable()
	for field, value := range raw {
		var fk fieldKey
		if err := json.Unmarshal([]byte(field), &fk); err != nil {
			return nil, fmt.Errorf("cluster: malformed entry %q: %w", field, err)
		}
		nr, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("cluster: malformed partition %q: %w", value, err)
		}
		t.Set(fk.Server, fk.Schema, fk.Copy, nr)
	}
	return t, nil
}
