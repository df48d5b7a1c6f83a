// Package cluster 测试基础设施
package cluster

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"swift-cluster/internal/shared/kv/memory"
)

// newTestCluster 构造不启动监控循环的集群实例
//
// 指标挂在独立注册表上，时钟可通过 c.now 注入。
func newTestCluster(t *testing.T, name, localID string, role MemberRole) (*Cluster, *memory.Store) {
	t.Helper()

	store := memory.NewStore()
	c := New(Config{
		Name:       name,
		LocalID:    localID,
		Role:       role,
		JobsDir:    t.TempDir(),
		Registerer: prometheus.NewRegistry(),
	}, store)
	return c, store
}

// newTestRegistry 每个实例独立的指标注册表
func newTestRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// fixedClock 固定时钟注入
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
