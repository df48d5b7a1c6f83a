// Package cluster 集群协调核心
//
// 一组进程（成员）通过共享的一致性 KV 存储协调：一个 Manager，
// 其余为 Worker。KV 是集群状态的唯一真实来源；所有跨成员写入
// 都通过 CAS 完成，所有存活判定都来自 KV 的健康检查子系统。
//
// 目录结构：
//   - cluster.go:            Cluster 主体与监控生命周期
//   - member.go:             成员模型
//   - registry.go:           成员注册与成员 reconcile
//   - heartbeat.go:          TTL 心跳
//   - job.go:                JobConfig / JobRecord / JobTask 模型
//   - jobpackage.go:         任务包发现与解压（Manager）
//   - jobconfig.go:          配置 reconcile（Manager 磁盘→KV，Worker KV→内存）
//   - jobrecord.go:          记录 reconcile
//   - task.go:               任务计划提取
//   - timeplan.go:           时间计划调度器（Manager）
//   - metrics_prometheus.go: Prometheus 指标
//   - localip.go:            本机 IP 选择
package cluster

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"swift-cluster/internal/shared/eventbus"
	"swift-cluster/internal/shared/kv"
	"swift-cluster/pkg/logging"
)

// ============================================================================
// 周期参数
// ============================================================================

const (
	memberMonitorInitial = 3 * time.Second
	memberMonitorPeriod  = 5 * time.Second

	configMonitorInitial = 5 * time.Second
	configMonitorPeriod  = 30 * time.Second

	recordMonitorInitial = 30 * time.Second
	recordMonitorPeriod  = 10 * time.Second

	taskMonitorInitial = 40 * time.Second
	taskMonitorPeriod  = 10 * time.Second

	schedulerInitial = 10 * time.Second
	schedulerPeriod  = 30 * time.Second

	heartbeatTTL    = 15 * time.Second
	heartbeatPeriod = 10 * time.Second

	casRetryDelay = time.Second

	tickTimeout = 30 * time.Second
)

// Config 集群配置
type Config struct {
	Name    string     // 集群名，决定 KV 命名空间 Swift/<Name>/
	LocalID string     // 本成员 id（约定为本机 IPv4 地址）
	Role    MemberRole // Manager 或 Worker
	JobsDir string     // 任务包目录（Manager 使用），默认 "Jobs"

	Logger     *logging.Logger       // 可选，默认 logging.Default("cluster")
	Registerer prometheus.Registerer // 可选，默认全局注册表
}

// Cluster 集群协调器
//
// 并发模型：每个 reconciler 在自己的周期循环上运行；
// 配置/记录/任务/调度循环共享 refreshLock 串行化，
// 成员 reconcile 因健康探测可能耗时数秒，单独用非阻塞的
// 重入守卫（refreshingMembers），不与其余循环串行。
type Cluster struct {
	cfg    Config
	store  kv.Store
	bus    *eventbus.Bus
	logger *logging.Logger
	mx     *Metrics

	refreshLock       sync.Mutex
	refreshingMembers atomic.Bool

	// 成员视图由成员 reconcile 单写，membersMu 保护并发读
	membersMu     sync.RWMutex
	members       []*Member
	currentMember *Member
	manager       *Member
	workers       []*Member

	// 以下列表只在 refreshLock 下变更
	jobConfigs []*JobConfig
	jobRecords []*JobRecord
	tasks      []*JobTask

	// 调度去重：jobName -> 最近一次创建记录的分钟（"2006-01-02 15:04"）
	lastFired map[string]string

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool

	// 测试注入点
	now         func() time.Time
	healthProbe func(ctx context.Context, id string) (bool, error)
}

// New 创建集群协调器，KV 存储由调用方注入
func New(cfg Config, store kv.Store) *Cluster {
	if cfg.JobsDir == "" {
		cfg.JobsDir = "Jobs"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default("cluster")
	}

	c := &Cluster{
		cfg:       cfg,
		store:     store,
		bus:       eventbus.NewBus(),
		logger:    cfg.Logger,
		mx:        NewMetrics(cfg.Registerer, cfg.LocalID),
		lastFired: make(map[string]string),
		stopCh:    make(chan struct{}),
		now:       time.Now,
	}
	c.healthProbe = store.CheckHealth
	return c
}

// Name 集群名
func (c *Cluster) Name() string {
	return c.cfg.Name
}

// LocalID 本成员 id
func (c *Cluster) LocalID() string {
	return c.cfg.LocalID
}

// Role 本成员角色
func (c *Cluster) Role() MemberRole {
	return c.cfg.Role
}

// Bus 集群事件总线
func (c *Cluster) Bus() *eventbus.Bus {
	return c.bus
}

// ============================================================================
// 监控生命周期
// ============================================================================

// StartMonitor 启动全部周期 reconcile
//
// 成员 reconcile 立即执行一次，随后进入周期循环；
// 其余循环按各自的首次延迟启动。按角色启用不同的配置来源
// 和调度器：Manager 从磁盘发布配置并创建记录，Worker 只读 KV。
func (c *Cluster) StartMonitor() {
	if c.started {
		return
	}
	c.started = true

	if err := c.RefreshMembers(context.Background()); err != nil {
		c.logger.Warn("initial member refresh failed", "error", err)
	}

	c.runLoop("members", memberMonitorInitial, memberMonitorPeriod, c.RefreshMembers)
	c.runLoop("records", recordMonitorInitial, recordMonitorPeriod, c.refreshJobRecords)
	c.runLoop("tasks", taskMonitorInitial, taskMonitorPeriod, c.refreshTasks)

	switch c.cfg.Role {
	case RoleManager:
		c.runLoop("configs", configMonitorInitial, configMonitorPeriod, c.refreshJobConfigsFromDisk)
		c.runLoop("scheduler", schedulerInitial, schedulerPeriod, c.runTimePlans)
	default:
		c.runLoop("configs", configMonitorInitial, configMonitorPeriod, c.refreshJobConfigsFromKV)
	}

	c.logger.Info("cluster monitor started",
		"cluster", c.cfg.Name, "member", c.cfg.LocalID, "role", string(c.cfg.Role))
}

// StopMonitor 停止全部周期 reconcile
//
// 已在执行中的回调运行到自然结束；心跳循环同样被终止。
func (c *Cluster) StopMonitor() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
	c.logger.Info("cluster monitor stopped", "cluster", c.cfg.Name)
}

// runLoop 周期循环：首次延迟 initial，之后每 period 执行一次
//
// 回调相对自身定时器是同步的：上一次执行未结束不会再次触发。
func (c *Cluster) runLoop(name string, initial, period time.Duration, fn func(ctx context.Context) error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		timer := time.NewTimer(initial)
		defer timer.Stop()

		for {
			select {
			case <-c.stopCh:
				return
			case <-timer.C:
			}
			c.tick(name, fn)
			timer.Reset(period)
		}
	}()
}

// tick 执行一次 reconcile 回调，吞掉错误和 panic 以保证定时器存活
func (c *Cluster) tick(name string, fn func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("reconciler panicked", "reconciler", name, "panic", fmt.Sprint(r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	c.mx.ReconcileRuns.WithLabelValues(name).Inc()
	c.mx.ReconcileDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		c.logger.Error("reconcile failed", "reconciler", name, "error", err)
	}
}

// ============================================================================
// 快照视图（供展示层读取）
// ============================================================================

// Snapshot 当前成员列表的副本
func (c *Cluster) Snapshot() []*Member {
	c.membersMu.RLock()
	defer c.membersMu.RUnlock()

	out := make([]*Member, len(c.members))
	copy(out, c.members)
	return out
}

// Manager 当前 Manager 成员（可能为 nil）
func (c *Cluster) Manager() *Member {
	c.membersMu.RLock()
	defer c.membersMu.RUnlock()
	return c.manager
}

// Workers 当前 Worker 成员列表的副本
func (c *Cluster) Workers() []*Member {
	c.membersMu.RLock()
	defer c.membersMu.RUnlock()

	out := make([]*Member, len(c.workers))
	copy(out, c.workers)
	return out
}

// CurrentMember 本进程对应的成员（注册并 reconcile 后可用）
func (c *Cluster) CurrentMember() *Member {
	c.membersMu.RLock()
	defer c.membersMu.RUnlock()
	return c.currentMember
}

// JobConfigs 当前任务配置列表的副本
func (c *Cluster) JobConfigs() []*JobConfig {
	c.refreshLock.Lock()
	defer c.refreshLock.Unlock()

	out := make([]*JobConfig, len(c.jobConfigs))
	copy(out, c.jobConfigs)
	return out
}

// JobRecords 当前活动任务记录列表的副本
func (c *Cluster) JobRecords() []*JobRecord {
	c.refreshLock.Lock()
	defer c.refreshLock.Unlock()

	out := make([]*JobRecord, len(c.jobRecords))
	copy(out, c.jobRecords)
	return out
}

// Tasks 当前活动任务列表的副本
func (c *Cluster) Tasks() []*JobTask {
	c.refreshLock.Lock()
	defer c.refreshLock.Unlock()

	out := make([]*JobTask, len(c.tasks))
	copy(out, c.tasks)
	return out
}
