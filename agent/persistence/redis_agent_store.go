package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisAgentStore is a Redis-based implementation of AgentStore.
// Suitable for distributed deployments sharing one registry.
// Definitions are stored as JSON strings with a set indexing all names.
type RedisAgentStore struct {
	client    *redis.Client
	keyPrefix string
	ownClient bool
}

// NewRedisAgentStore creates a new Redis-based agent store
func NewRedisAgentStore(config StoreConfig) (*RedisAgentStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
		PoolSize: config.Redis.PoolSize,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	store := NewRedisAgentStoreWithClient(client, config.Redis.KeyPrefix)
	store.ownClient = true
	return store, nil
}

// NewRedisAgentStoreWithClient wraps an existing client. Close does not close
// a client it did not create.
func NewRedisAgentStoreWithClient(client *redis.Client, keyPrefix string) *RedisAgentStore {
	if keyPrefix == "" {
		keyPrefix = "stepflow:"
	}
	return &RedisAgentStore{
		client:    client,
		keyPrefix: keyPrefix + "agent:",
	}
}

// Close closes the store
func (s *RedisAgentStore) Close() error {
	if !s.ownClient {
		return nil
	}
	return s.client.Close()
}

// Ping checks if the store is healthy
func (s *RedisAgentStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// agentKey returns the Redis key for an agent record
func (s *RedisAgentStore) agentKey(name string) string {
	return s.keyPrefix + "data:" + name
}

// namesKey returns the Redis key of the name index
func (s *RedisAgentStore) namesKey() string {
	return s.keyPrefix + "names"
}

// Save persists the record's definition
func (s *RedisAgentStore) Save(ctx context.Context, rec Record) error {
	if err := validateRecord(&rec); err != nil {
		return err
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.agentKey(rec.Name), data, 0)
	pipe.SAdd(ctx, s.namesKey(), rec.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save agent %q: %w", rec.Name, err)
	}
	return nil
}

// Restore loads the record saved under name
func (s *RedisAgentStore) Restore(ctx context.Context, name string) (*Record, error) {
	data, err := s.client.Get(ctx, s.agentKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to restore agent %q: %w", name, err)
	}
	return decodeRecord(data)
}

// Remove deletes the record saved under name
func (s *RedisAgentStore) Remove(ctx context.Context, name string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.agentKey(name))
	pipe.SRem(ctx, s.namesKey(), name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove agent %q: %w", name, err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns the saved names
func (s *RedisAgentStore) List(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, s.namesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	sort.Strings(names)
	return names, nil
}
