package persistence

import (
	"fmt"
)

// NewAgentStore creates a new AgentStore based on the configuration
func NewAgentStore(config StoreConfig) (AgentStore, error) {
	switch config.Type {
	case StoreTypeMemory, "":
		return NewMemoryAgentStore(), nil
	case StoreTypeFile:
		return NewFileAgentStore(config)
	case StoreTypeRedis:
		return NewRedisAgentStore(config)
	case StoreTypeSQL:
		return NewSQLAgentStore(config)
	default:
		return nil, fmt.Errorf("unsupported agent store type: %s", config.Type)
	}
}

// MustNewAgentStore creates a new AgentStore or panics on error.
//
// WARNING: This function should ONLY be used during application initialization.
// For runtime store creation, use NewAgentStore instead.
func MustNewAgentStore(config StoreConfig) AgentStore {
	store, err := NewAgentStore(config)
	if err != nil {
		panic(fmt.Sprintf("failed to create agent store: %v", err))
	}
	return store
}
