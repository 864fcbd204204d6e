package columns

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash column layouts are stored under
const DefaultRedisKey = "propsheet:columns"

// RedisStore keeps column layouts in a Redis hash, one JSON-encoded field
// per view.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a store over client
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// Load reads every field of the hash
func (s *RedisStore) Load(ctx context.Context) (map[string][]State, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read column state: %w", err)
	}

	views := make(map[string][]State, len(fields))
	for id, raw := range fields {
		var states []State
		if err := json.Unmarshal([]byte(raw), &states); err != nil {
			return nil, fmt.Errorf("%w: view %s: %v", ErrCorruptState, id, err)
		}
		views[id] = states
	}
	return views, nil
}

// Save replaces the hash in one transaction
func (s *RedisStore) Save(ctx context.Context, views map[string][]State) error {
	values := make(map[string]interface{}, len(views))
	for id, states := range views {
		data, err := json.Marshal(states)
		if err != nil {
			return fmt.Errorf("failed to encode view %s: %w", id, err)
		}
		values[id] = string(data)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(values) > 0 {
			pipe.HSet(ctx, s.key, values)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save column state: %w", err)
	}
	return nil
}

// Close closes the client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
