package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/stepflow/agent"
)

// Common errors
var (
	ErrNotFound       = errors.New("not found")
	ErrStoreClosed    = errors.New("store is closed")
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotPersistable = errors.New("record has no definition to persist")
)

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeSQL    StoreType = "sql"
)

// StoreConfig is the base configuration for all store implementations
type StoreConfig struct {
	// Type is the storage backend type
	Type StoreType `json:"type" yaml:"type"`

	// BaseDir is the base directory for file-based storage
	BaseDir string `json:"base_dir" yaml:"base_dir"`

	// Redis configuration (only used when Type is "redis")
	Redis RedisStoreConfig `json:"redis" yaml:"redis"`

	// SQL configuration (only used when Type is "sql")
	SQL SQLStoreConfig `json:"sql" yaml:"sql"`
}

// RedisStoreConfig contains Redis-specific configuration
type RedisStoreConfig struct {
	// Addr is the Redis server address (host:port)
	Addr string `json:"addr" yaml:"addr"`

	// Password is the Redis password (optional)
	Password string `json:"password" yaml:"password"`

	// DB is the Redis database number
	DB int `json:"db" yaml:"db"`

	// PoolSize is the connection pool size
	PoolSize int `json:"pool_size" yaml:"pool_size"`

	// KeyPrefix is the prefix for all Redis keys
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// SQLStoreConfig contains database configuration for the SQL store
type SQLStoreConfig struct {
	// Driver is one of sqlite, postgres, mysql
	Driver string `json:"driver" yaml:"driver"`

	// DSN is the driver-specific data source name
	DSN string `json:"dsn" yaml:"dsn"`

	// Table overrides the table name (default: agent_records)
	Table string `json:"table" yaml:"table"`
}

// DefaultStoreConfig returns the default store configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:    StoreTypeMemory,
		BaseDir: "./data/agents",
		Redis: RedisStoreConfig{
			Addr:      "localhost:6379",
			DB:        0,
			PoolSize:  10,
			KeyPrefix: "stepflow:",
		},
		SQL: SQLStoreConfig{
			Driver: "sqlite",
			DSN:    "agents.db",
		},
	}
}

// Store is the base interface for all persistent stores
type Store interface {
	// Close closes the store and releases resources
	Close() error

	// Ping checks if the store is healthy
	Ping(ctx context.Context) error
}

// Record is one registry entry.
type Record struct {
	// Name is the agent name the record is keyed by
	Name string `json:"name"`

	// Definition is the definition the agent was built from
	Definition *agent.Definition `json:"definition,omitempty"`

	// Agent is the live instance. Only the memory store keeps it.
	Agent agent.Agent `json:"-"`

	// Live reports whether Agent holds a restored live instance
	Live bool `json:"-"`

	// SavedAt is when the record was last saved
	SavedAt time.Time `json:"saved_at"`
}

// AgentStore is the agent registry.
type AgentStore interface {
	Store

	// Save stores or replaces the record under rec.Name
	Save(ctx context.Context, rec Record) error

	// Restore returns the record saved under name, or ErrNotFound
	Restore(ctx context.Context, name string) (*Record, error)

	// Remove deletes the record saved under name, or returns ErrNotFound
	Remove(ctx context.Context, name string) error

	// List returns the saved names in ascending order
	List(ctx context.Context) ([]string, error)
}

// definitionSource is implemented by agents that can hand back the
// definition they were built from.
type definitionSource interface {
	Definition() *agent.Definition
}

// validateRecord normalizes rec and checks it can be saved.
func validateRecord(rec *Record) error {
	if rec.Name == "" {
		if rec.Definition != nil {
			rec.Name = rec.Definition.Name()
		} else if rec.Agent != nil {
			rec.Name = rec.Agent.Name()
		}
	}
	if rec.Name == "" {
		return fmt.Errorf("%w: record name is required", ErrInvalidInput)
	}
	if rec.Definition == nil && rec.Agent == nil {
		return fmt.Errorf("%w: record %q has neither definition nor agent", ErrInvalidInput, rec.Name)
	}
	if rec.SavedAt.IsZero() {
		rec.SavedAt = time.Now()
	}
	return nil
}

// encodeRecord serializes the definition part of rec for persistent backends.
func encodeRecord(rec Record) ([]byte, error) {
	if err := validateRecord(&rec); err != nil {
		return nil, err
	}
	if rec.Definition == nil {
		src, ok := rec.Agent.(definitionSource)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrNotPersistable, rec.Name)
		}
		rec.Definition = src.Definition()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &rec, nil
}
