// Package memory 内存 KV 实现（用于测试）
//
// 与 etcd 实现遵循同一份接口契约：单调递增的版本号、
// CAS 按版本比较、前缀列举与删除。健康检查结果由测试方
// 通过 SetHealth 直接注入。
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"swift-cluster/internal/shared/kv"
)

// entry 存储条目
type entry struct {
	value       []byte
	modifyIndex int64
}

// Store 内存 KV 存储
type Store struct {
	mu       sync.Mutex
	data     map[string]*entry
	revision int64
	health   map[string]bool
	services map[string]string // id -> address
}

// NewStore 创建内存 KV 存储
func NewStore() *Store {
	return &Store{
		data:     make(map[string]*entry),
		health:   make(map[string]bool),
		services: make(map[string]string),
	}
}

// Close 关闭存储（无操作）
func (s *Store) Close() error {
	return nil
}

// ============================================================================
// KV 操作
// ============================================================================

// Get 读取单个键，键不存在时返回 (nil, nil)
func (s *Store) Get(ctx context.Context, key string) (*kv.Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	value := make([]byte, len(e.value))
	copy(value, e.value)
	return &kv.Pair{Key: key, Value: value, ModifyIndex: e.modifyIndex}, nil
}

// Keys 列出前缀下所有键名（字典序）
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Create 幂等地确保键存在（空值占位），返回当前 Pair
func (s *Store) Create(ctx context.Context, key string) (*kv.Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok {
		s.revision++
		e = &entry{value: []byte{}, modifyIndex: s.revision}
		s.data[key] = e
	}
	value := make([]byte, len(e.value))
	copy(value, e.value)
	return &kv.Pair{Key: key, Value: value, ModifyIndex: e.modifyIndex}, nil
}

// CAS 当且仅当存储端版本等于 p.ModifyIndex 时写入
func (s *Store) CAS(ctx context.Context, p *kv.Pair) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[p.Key]
	if p.ModifyIndex == 0 {
		if ok {
			return false, nil
		}
	} else {
		if !ok || e.modifyIndex != p.ModifyIndex {
			return false, nil
		}
	}

	s.revision++
	value := make([]byte, len(p.Value))
	copy(value, p.Value)
	s.data[p.Key] = &entry{value: value, modifyIndex: s.revision}
	return true, nil
}

// DeleteTree 删除前缀下所有键
func (s *Store) DeleteTree(ctx context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			delete(s.data, k)
		}
	}
	return nil
}

// ============================================================================
// 服务注册与健康检查
// ============================================================================

// RegisterService 注册服务，注册后立即视为健康
func (s *Store) RegisterService(ctx context.Context, id, address string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[id] = address
	s.health[id] = true
	return nil
}

// PassTTL 刷新服务心跳
func (s *Store) PassTTL(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.services[id]; !ok {
		return kv.ErrUnavailable
	}
	s.health[id] = true
	return nil
}

// CheckHealth 返回测试方注入的健康状态
func (s *Store) CheckHealth(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health[id], nil
}

// SetHealth 注入健康状态（仅测试使用）
func (s *Store) SetHealth(id string, healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health[id] = healthy
}

// 接口验证
var _ kv.Store = (*Store)(nil)
