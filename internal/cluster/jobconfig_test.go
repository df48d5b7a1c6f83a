// Package cluster 任务配置 reconcile 测试
package cluster

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swift-cluster/internal/shared/eventbus"
)

// writeDiskConfig 在 Manager 的任务目录下放置 config/job.json
func writeDiskConfig(t *testing.T, jobsDir string, cfg *JobConfig) {
	t.Helper()

	dir := filepath.Join(jobsDir, cfg.Name, "config")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, jobConfigFileName), data, 0o644))
}

// TestRefreshJobConfigsFromDisk_Publish 磁盘配置发布到 KV 并发出 JobConfigJoin
func TestRefreshJobConfigsFromDisk_Publish(t *testing.T) {
	c, store := newTestCluster(t, "c1", "10.0.0.1", RoleManager)

	writeDiskConfig(t, c.cfg.JobsDir, &JobConfig{
		Name:        "j1",
		RunTimePlan: []string{"12:00"},
	})

	var joined []*JobConfig
	c.Bus().Subscribe(eventbus.TopicJobConfigJoin, func(payload interface{}) {
		joined = append(joined, payload.(*JobConfig))
	})

	require.NoError(t, c.refreshJobConfigsFromDisk(context.Background()))

	require.Len(t, joined, 1)
	assert.Equal(t, "j1", joined[0].Name)

	pair, err := store.Get(context.Background(), jobConfigKey("c1", "j1"))
	require.NoError(t, err)
	require.NotNil(t, pair)
	published, err := decodeJobConfig(pair)
	require.NoError(t, err)
	assert.Equal(t, []string{"12:00"}, published.RunTimePlan)

	// 第二轮没有新事件
	require.NoError(t, c.refreshJobConfigsFromDisk(context.Background()))
	assert.Len(t, joined, 1)
}

// TestRefreshJobConfigsFromDisk_Remove 磁盘文件消失后 KV 子树删除并发事件
func TestRefreshJobConfigsFromDisk_Remove(t *testing.T) {
	c, store := newTestCluster(t, "c1", "10.0.0.1", RoleManager)

	writeDiskConfig(t, c.cfg.JobsDir, &JobConfig{Name: "j1", RunTimePlan: []string{"12:00"}})
	require.NoError(t, c.refreshJobConfigsFromDisk(context.Background()))
	require.Len(t, c.JobConfigs(), 1)

	var removed []*JobConfig
	c.Bus().Subscribe(eventbus.TopicJobConfigRemove, func(payload interface{}) {
		removed = append(removed, payload.(*JobConfig))
	})

	require.NoError(t, os.RemoveAll(filepath.Join(c.cfg.JobsDir, "j1")))
	require.NoError(t, c.refreshJobConfigsFromDisk(context.Background()))

	assert.Empty(t, c.JobConfigs())
	require.Len(t, removed, 1)
	assert.Equal(t, "j1", removed[0].Name)

	pair, err := store.Get(context.Background(), jobConfigKey("c1", "j1"))
	require.NoError(t, err)
	assert.Nil(t, pair)
}

// TestTryAddJobConfig_WorkerRejected Worker 不允许发布配置
func TestTryAddJobConfig_WorkerRejected(t *testing.T) {
	w, _ := newTestCluster(t, "c1", "10.0.0.2", RoleWorker)
	err := w.TryAddJobConfig(context.Background(), &JobConfig{Name: "j1"})
	assert.ErrorIs(t, err, ErrNotManager)
}

// TestRefreshJobConfigsFromKV_RoundTrip Manager 发布的配置被 Worker 原样读回
func TestRefreshJobConfigsFromKV_RoundTrip(t *testing.T) {
	m, store := newTestCluster(t, "c1", "10.0.0.1", RoleManager)

	original := &JobConfig{
		Name:        "j1",
		RunTimePlan: []string{"12:00", "18:30"},
		Settings:    map[string]string{"parallelism": "4"},
	}
	require.NoError(t, m.TryAddJobConfig(context.Background(), original))

	w := New(Config{
		Name:       "c1",
		LocalID:    "10.0.0.2",
		Role:       RoleWorker,
		JobsDir:    t.TempDir(),
		Registerer: newTestRegistry(),
	}, store)

	var joined []*JobConfig
	w.Bus().Subscribe(eventbus.TopicJobConfigJoin, func(payload interface{}) {
		joined = append(joined, payload.(*JobConfig))
	})

	require.NoError(t, w.refreshJobConfigsFromKV(context.Background()))

	require.Len(t, joined, 1)
	got := joined[0]
	assert.Equal(t, original.Name, got.Name)
	assert.Equal(t, original.RunTimePlan, got.RunTimePlan)
	assert.Equal(t, original.Settings, got.Settings)

	// 第二轮没有新事件
	require.NoError(t, w.refreshJobConfigsFromKV(context.Background()))
	assert.Len(t, joined, 1)
}

// TestRefreshJobConfigsFromKV_Remove KV 配置删除后 Worker 同步移除
func TestRefreshJobConfigsFromKV_Remove(t *testing.T) {
	m, store := newTestCluster(t, "c1", "10.0.0.1", RoleManager)
	require.NoError(t, m.TryAddJobConfig(context.Background(), &JobConfig{Name: "j1", RunTimePlan: []string{"12:00"}}))

	w := New(Config{
		Name:       "c1",
		LocalID:    "10.0.0.2",
		Role:       RoleWorker,
		JobsDir:    t.TempDir(),
		Registerer: newTestRegistry(),
	}, store)
	require.NoError(t, w.refreshJobConfigsFromKV(context.Background()))
	require.Len(t, w.JobConfigs(), 1)

	var removed []*JobConfig
	w.Bus().Subscribe(eventbus.TopicJobConfigRemove, func(payload interface{}) {
		removed = append(removed, payload.(*JobConfig))
	})

	require.NoError(t, store.DeleteTree(context.Background(), jobTreeKey("c1", "j1")))
	require.NoError(t, w.refreshJobConfigsFromKV(context.Background()))

	assert.Empty(t, w.JobConfigs())
	require.Len(t, removed, 1)
}

// TestRefreshJobConfigsFromKV_ModifyIndexChange 版本推进时替换条目
func TestRefreshJobConfigsFromKV_ModifyIndexChange(t *testing.T) {
	m, store := newTestCluster(t, "c1", "10.0.0.1", RoleManager)
	cfg := &JobConfig{Name: "j1", RunTimePlan: []string{"12:00"}}
	require.NoError(t, m.TryAddJobConfig(context.Background(), cfg))

	w := New(Config{
		Name:       "c1",
		LocalID:    "10.0.0.2",
		Role:       RoleWorker,
		JobsDir:    t.TempDir(),
		Registerer: newTestRegistry(),
	}, store)
	require.NoError(t, w.refreshJobConfigsFromKV(context.Background()))
	before := w.JobConfigs()[0]

	// Manager 更新时间计划
	cfg.RunTimePlan = []string{"13:00"}
	require.NoError(t, m.TryAddJobConfig(context.Background(), cfg))

	require.NoError(t, w.refreshJobConfigsFromKV(context.Background()))
	after := w.JobConfigs()[0]
	assert.Equal(t, []string{"13:00"}, after.RunTimePlan)
	assert.NotEqual(t, before.ModifyIndex, after.ModifyIndex)

	// 恶意/损坏值只跳过不中断
	badKey := jobConfigKey("c1", "j2")
	p, err := store.Create(context.Background(), badKey)
	require.NoError(t, err)
	p.Value = []byte("{not json")
	ok, err := store.CAS(context.Background(), p)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, w.refreshJobConfigsFromKV(context.Background()))
	assert.Len(t, w.JobConfigs(), 1)
}
