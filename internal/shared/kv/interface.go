// Package kv 定义集群协调所依赖的一致性 KV 存储抽象接口
//
// 设计原则：依赖倒置 (DIP)
//   - 调用方（internal/cluster）只依赖接口，不知道具体实现
//   - 具体实现在子包中：etcd/, memory/
//   - 初始化时通过依赖注入传入实现（不使用进程级全局客户端）
//
// CAS 是唯一安全的写原语：任何写冲突都表现为 CAS 返回 false，
// 调用方必须重读后重试。
package kv

import (
	"context"
	"errors"
	"time"
)

// ============================================================================
// 类型定义
// ============================================================================

// Pair KV 键值对，ModifyIndex 为存储端的不透明版本号
//
// ModifyIndex == 0 表示"键尚不存在"：以此调用 CAS 等价于 create-if-absent。
type Pair struct {
	Key         string
	Value       []byte
	ModifyIndex int64
}

// ============================================================================
// 错误定义
// ============================================================================

var (
	// ErrUnavailable KV 存储不可达（网络/超时）
	ErrUnavailable = errors.New("kv store unavailable")
	// ErrMalformedValue 键值无法解码
	ErrMalformedValue = errors.New("malformed kv value")
)

// ============================================================================
// 存储接口
// ============================================================================

// Store 一致性 KV 存储接口
//
// 语义约定：
//   - Get 键不存在时返回 (nil, nil)
//   - Keys 返回按字典序排列的完整键名列表
//   - Create 幂等地确保键存在（空值占位），返回当前 Pair
//   - CAS 当且仅当存储端版本等于 Pair.ModifyIndex 时写入，返回是否成功
//   - DeleteTree 删除前缀下所有键
type Store interface {
	Get(ctx context.Context, key string) (*Pair, error)
	Keys(ctx context.Context, prefix string) ([]string, error)
	Create(ctx context.Context, key string) (*Pair, error)
	CAS(ctx context.Context, p *Pair) (bool, error)
	DeleteTree(ctx context.Context, prefix string) error

	// 服务注册与健康检查（TTL 心跳子系统）
	RegisterService(ctx context.Context, id, address string, ttl time.Duration) error
	PassTTL(ctx context.Context, id string) error
	CheckHealth(ctx context.Context, id string) (bool, error)

	Close() error
}
