package introspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/devplatform/modelgraph/internal/orm"
)

// Store shares the persisted columns of tables between processes, so a fleet
// of replicas reads the database catalog once per table instead of once each
type Store interface {
	Load(ctx context.Context, table string) ([]orm.ColumnInfo, bool, error)
	Save(ctx context.Context, table string, cols []orm.ColumnInfo) error
}

// RedisStore keeps column lists in redis as JSON
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a store over an existing client. A zero ttl keeps
// entries until they are deleted.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Load returns the stored columns of a table
func (s *RedisStore) Load(ctx context.Context, table string) ([]orm.ColumnInfo, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+table).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load columns of %s: %w", table, err)
	}

	var cols []orm.ColumnInfo
	if err := json.Unmarshal(data, &cols); err != nil {
		return nil, false, fmt.Errorf("failed to decode columns of %s: %w", table, err)
	}
	return cols, true, nil
}

// Save stores the columns of a table
func (s *RedisStore) Save(ctx context.Context, table string, cols []orm.ColumnInfo) error {
	data, err := json.Marshal(cols)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.prefix+table, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save columns of %s: %w", table, err)
	}
	return nil
}
