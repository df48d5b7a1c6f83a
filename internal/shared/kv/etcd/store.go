// Package etcd etcd 存储实现
package etcd

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"swift-cluster/internal/shared/kv"
)

// Store etcd 存储客户端
//
// 数据键按调用方给出的完整键名存取（如 Swift/c1/Members）；
// 服务注册键统一放在 <prefix>/health/<id> 下，由租约 TTL 维持存活。
type Store struct {
	client *clientv3.Client
	prefix string

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID // 服务 id -> 心跳租约
	ttls   map[string]time.Duration    // 服务 id -> 注册 TTL（租约丢失后重建用）
}

// Config etcd 配置
type Config struct {
	Endpoints   []string
	DialTimeout time.Duration
	Prefix      string
}

// NewStore 创建 etcd 存储客户端
func NewStore(cfg Config) (*Store, error) {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "swift"
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err = client.Status(ctx, cfg.Endpoints[0])
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	log.Printf("[etcd] Connected to %v", cfg.Endpoints)
	return &Store{
		client: client,
		prefix: cfg.Prefix,
		leases: make(map[string]clientv3.LeaseID),
		ttls:   make(map[string]time.Duration),
	}, nil
}

// Close 关闭连接
func (s *Store) Close() error {
	return s.client.Close()
}

// Client 返回底层 etcd 客户端
func (s *Store) Client() *clientv3.Client {
	return s.client
}

// ============================================================================
// KV 操作
// ============================================================================

// Get 读取单个键，键不存在时返回 (nil, nil)
func (s *Store) Get(ctx context.Context, key string) (*kv.Pair, error) {
	resp, err := s.client.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}

	item := resp.Kvs[0]
	return &kv.Pair{
		Key:         string(item.Key),
		Value:       item.Value,
		ModifyIndex: item.ModRevision,
	}, nil
}

// Keys 列出前缀下所有键名（字典序）
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	resp, err := s.client.Get(ctx, prefix,
		clientv3.WithPrefix(),
		clientv3.WithKeysOnly(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}

	keys := make([]string, 0, len(resp.Kvs))
	for _, item := range resp.Kvs {
		keys = append(keys, string(item.Key))
	}
	return keys, nil
}

// Create 幂等地确保键存在（空值占位），返回当前 Pair
func (s *Store) Create(ctx context.Context, key string) (*kv.Pair, error) {
	_, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, "")).
		Commit()
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", key, err)
	}

	p, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if p == nil {
		// 创建与删除并发时可能出现，作为错误返回给调用方
		return nil, fmt.Errorf("key %s vanished after create", key)
	}
	return p, nil
}

// CAS 当且仅当存储端版本等于 p.ModifyIndex 时写入
//
// p.ModifyIndex == 0 表示"键必须尚不存在"，等价于 create-if-absent。
func (s *Store) CAS(ctx context.Context, p *kv.Pair) (bool, error) {
	var cmp clientv3.Cmp
	if p.ModifyIndex == 0 {
		cmp = clientv3.Compare(clientv3.CreateRevision(p.Key), "=", 0)
	} else {
		cmp = clientv3.Compare(clientv3.ModRevision(p.Key), "=", p.ModifyIndex)
	}

	resp, err := s.client.Txn(ctx).
		If(cmp).
		Then(clientv3.OpPut(p.Key, string(p.Value))).
		Commit()
	if err != nil {
		return false, fmt.Errorf("failed to cas %s: %w", p.Key, err)
	}
	return resp.Succeeded, nil
}

// DeleteTree 删除前缀下所有键
func (s *Store) DeleteTree(ctx context.Context, prefix string) error {
	_, err := s.client.Delete(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return fmt.Errorf("failed to delete tree %s: %w", prefix, err)
	}
	return nil
}

// ============================================================================
// 服务注册与健康检查
// ============================================================================

func (s *Store) healthKey(id string) string {
	return fmt.Sprintf("%s/health/%s", s.prefix, id)
}

// RegisterService 注册服务心跳键，由租约 TTL 维持
func (s *Store) RegisterService(ctx context.Context, id, address string, ttl time.Duration) error {
	lease, err := s.client.Grant(ctx, int64(ttl/time.Second))
	if err != nil {
		return fmt.Errorf("failed to create lease for %s: %w", id, err)
	}

	_, err = s.client.Put(ctx, s.healthKey(id), address, clientv3.WithLease(lease.ID))
	if err != nil {
		return fmt.Errorf("failed to register service %s: %w", id, err)
	}

	s.mu.Lock()
	s.leases[id] = lease.ID
	s.ttls[id] = ttl
	s.mu.Unlock()

	log.Printf("[etcd] Registered service: %s addr=%s ttl=%s", id, address, ttl)
	return nil
}

// PassTTL 刷新服务心跳；租约已过期时重新注册
func (s *Store) PassTTL(ctx context.Context, id string) error {
	s.mu.Lock()
	leaseID, ok := s.leases[id]
	ttl := s.ttls[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("service %s not registered", id)
	}

	_, err := s.client.KeepAliveOnce(ctx, leaseID)
	if err == nil {
		return nil
	}

	// 租约丢失（进程停顿超过 TTL），重建租约和心跳键
	resp, gerr := s.client.Get(ctx, s.healthKey(id))
	addr := id
	if gerr == nil && len(resp.Kvs) > 0 {
		addr = string(resp.Kvs[0].Value)
	}
	if rerr := s.RegisterService(ctx, id, addr, ttl); rerr != nil {
		return fmt.Errorf("failed to refresh ttl for %s: %w", id, err)
	}
	return nil
}

// CheckHealth 检查服务是否存活（心跳键存在即为健康）
func (s *Store) CheckHealth(ctx context.Context, id string) (bool, error) {
	resp, err := s.client.Get(ctx, s.healthKey(id))
	if err != nil {
		return false, fmt.Errorf("failed to check health of %s: %w", id, err)
	}
	return len(resp.Kvs) > 0, nil
}

// 接口验证
var _ kv.Store = (*Store)(nil)
