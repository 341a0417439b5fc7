package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileAgentStore 是基于文件的 AgentStore 实现。
// 所有定义保存在单个 JSON 索引中，适合单节点部署。
type FileAgentStore struct {
	path    string
	records map[string]json.RawMessage // in-memory cache
	mu      sync.RWMutex
	closed  bool
}

// NewFileAgentStore 创建文件智能体存储
func NewFileAgentStore(config StoreConfig) (*FileAgentStore, error) {
	if config.BaseDir == "" {
		return nil, fmt.Errorf("%w: base_dir is required for file store", ErrInvalidInput)
	}
	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create agent store directory: %w", err)
	}

	store := &FileAgentStore{
		path:    filepath.Join(config.BaseDir, "agents.json"),
		records: make(map[string]json.RawMessage),
	}

	// 装入已存在的记录
	if err := store.loadFromDisk(); err != nil {
		return nil, fmt.Errorf("failed to load agents from disk: %w", err)
	}
	return store, nil
}

// 从磁盘加载全部记录到内存
func (s *FileAgentStore) loadFromDisk() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil // No existing data
	}
	if err != nil {
		return err
	}

	var records map[string]json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	if records != nil {
		s.records = records
	}
	return nil
}

// 原子写: 写入临时文件后重命名
func (s *FileAgentStore) saveToDisk() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return err
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tempPath, s.path)
}

// Close 关闭存储
func (s *FileAgentStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping 检查存储是否可用
func (s *FileAgentStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Save 保存记录的定义部分
func (s *FileAgentStore) Save(ctx context.Context, rec Record) error {
	if err := validateRecord(&rec); err != nil {
		return err
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	previous, existed := s.records[rec.Name]
	s.records[rec.Name] = data
	if err := s.saveToDisk(); err != nil {
		// 回滚内存缓存
		if existed {
			s.records[rec.Name] = previous
		} else {
			delete(s.records, rec.Name)
		}
		return fmt.Errorf("failed to persist agent %q: %w", rec.Name, err)
	}
	return nil
}

// Restore 恢复记录，返回的记录永远不是活动实例
func (s *FileAgentStore) Restore(ctx context.Context, name string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	data, ok := s.records[name]
	if !ok {
		return nil, ErrNotFound
	}
	return decodeRecord(data)
}

// Remove 删除记录
func (s *FileAgentStore) Remove(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	previous, ok := s.records[name]
	if !ok {
		return ErrNotFound
	}
	delete(s.records, name)
	if err := s.saveToDisk(); err != nil {
		s.records[name] = previous
		return fmt.Errorf("failed to persist removal of %q: %w", name, err)
	}
	return nil
}

// List 返回全部名称
func (s *FileAgentStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	names := make([]string, 0, len(s.records))
	for name := range s.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
