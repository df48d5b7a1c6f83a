// Package cluster 时间计划调度器测试
package cluster

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordIDs 列出某任务在 KV 上的全部记录键
func recordIDs(t *testing.T, c *Cluster, job string) []string {
	t.Helper()
	keys, err := c.store.Keys(context.Background(), jobTreeKey(c.cfg.Name, job)+"/Records/")
	require.NoError(t, err)
	return keys
}

// managerWithConfig 发布配置并写好磁盘副本的 Manager
func managerWithConfig(t *testing.T, plan []string) (*Cluster, *JobConfig) {
	t.Helper()

	c, _ := newTestCluster(t, "c1", "10.0.0.1", RoleManager)
	cfg := &JobConfig{Name: "j1", RunTimePlan: plan}
	writeDiskConfig(t, c.cfg.JobsDir, cfg)
	require.NoError(t, c.refreshJobConfigsFromDisk(context.Background()))
	require.Len(t, c.JobConfigs(), 1)
	return c, c.JobConfigs()[0]
}

// TestRunTimePlans_CreatesOnMatch 到点创建记录并推进 lastRecordId
func TestRunTimePlans_CreatesOnMatch(t *testing.T) {
	c, cfg := managerWithConfig(t, []string{"12:00"})

	c.now = fixedClock(time.Date(2024, 5, 1, 12, 0, 10, 0, time.UTC))
	require.NoError(t, c.runTimePlans(context.Background()))

	require.Len(t, recordIDs(t, c, "j1"), 1)
	assert.NotEmpty(t, cfg.LastRecordID)
	require.NotNil(t, cfg.LastRecordStartTime)

	// KV 上的配置一并前滚
	pair, err := c.store.Get(context.Background(), jobConfigKey("c1", "j1"))
	require.NoError(t, err)
	stored, err := decodeJobConfig(pair)
	require.NoError(t, err)
	assert.Equal(t, cfg.LastRecordID, stored.LastRecordID)

	// 新记录状态为 Pending
	rp, err := c.store.Get(context.Background(), jobRecordKey("c1", "j1", cfg.LastRecordID))
	require.NoError(t, err)
	rec, err := decodeJobRecord(rp)
	require.NoError(t, err)
	assert.Equal(t, RecordPending, rec.Status)

	// 磁盘配置同步回写
	disk, err := loadJobConfigFile(filepath.Join(c.cfg.JobsDir, "j1", "config", jobConfigFileName))
	require.NoError(t, err)
	assert.Equal(t, cfg.LastRecordID, disk.LastRecordID)
}

// TestRunTimePlans_NoMatch 不到点不创建
func TestRunTimePlans_NoMatch(t *testing.T) {
	c, cfg := managerWithConfig(t, []string{"12:00"})

	c.now = fixedClock(time.Date(2024, 5, 1, 11, 59, 0, 0, time.UTC))
	require.NoError(t, c.runTimePlans(context.Background()))
	assert.Empty(t, recordIDs(t, c, "j1"))
	assert.Empty(t, cfg.LastRecordID)
}

// TestRunTimePlans_GateOnPreviousRecord 上一记录未完成时不创建
//
// r0 处于 TaskExecuting，12:00 不触发；r0 到达 TaskMerged 后，
// 次日 12:00 恰好创建一条新记录并推进 lastRecordId。
func TestRunTimePlans_GateOnPreviousRecord(t *testing.T) {
	c, cfg := managerWithConfig(t, []string{"12:00"})

	r0 := &JobRecord{ID: "r0", JobName: "j1", Status: RecordTaskExecuting}
	putRecord(t, c.store, "c1", r0)

	// lastRecordId 指向 r0
	cfg.LastRecordID = "r0"

	c.now = fixedClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, c.runTimePlans(context.Background()))
	assert.Len(t, recordIDs(t, c, "j1"), 1) // 只有 r0
	assert.Equal(t, "r0", cfg.LastRecordID)

	// r0 完成
	pair, err := c.store.Get(context.Background(), jobRecordKey("c1", "j1", "r0"))
	require.NoError(t, err)
	done := &JobRecord{ID: "r0", JobName: "j1", Status: RecordTaskMerged}
	value, err := done.encode()
	require.NoError(t, err)
	pair.Value = value
	ok, err := c.store.CAS(context.Background(), pair)
	require.NoError(t, err)
	require.True(t, ok)

	// 次日 12:00：创建一条新记录
	c.now = fixedClock(time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC))
	require.NoError(t, c.runTimePlans(context.Background()))
	assert.Len(t, recordIDs(t, c, "j1"), 2)
	assert.NotEqual(t, "r0", cfg.LastRecordID)
}

// TestRunTimePlans_MinuteDedup 同一分钟内第二次 tick 不重复创建
func TestRunTimePlans_MinuteDedup(t *testing.T) {
	c, cfg := managerWithConfig(t, []string{"12:00"})

	c.now = fixedClock(time.Date(2024, 5, 1, 12, 0, 5, 0, time.UTC))
	require.NoError(t, c.runTimePlans(context.Background()))
	first := cfg.LastRecordID
	require.NotEmpty(t, first)

	// 把上一记录推到终态，单独验证分钟去重这一道闸
	pair, err := c.store.Get(context.Background(), jobRecordKey("c1", "j1", first))
	require.NoError(t, err)
	done := &JobRecord{ID: first, JobName: "j1", Status: RecordTaskMerged}
	value, err := done.encode()
	require.NoError(t, err)
	pair.Value = value
	ok, err := c.store.CAS(context.Background(), pair)
	require.NoError(t, err)
	require.True(t, ok)

	// 同一分钟的第二次 tick（30 s 周期）
	c.now = fixedClock(time.Date(2024, 5, 1, 12, 0, 35, 0, time.UTC))
	require.NoError(t, c.runTimePlans(context.Background()))
	assert.Equal(t, first, cfg.LastRecordID)
	assert.Len(t, recordIDs(t, c, "j1"), 1)

	// 次日同一时刻可再次创建
	c.now = fixedClock(time.Date(2024, 5, 2, 12, 0, 5, 0, time.UTC))
	require.NoError(t, c.runTimePlans(context.Background()))
	assert.NotEqual(t, first, cfg.LastRecordID)
	assert.Len(t, recordIDs(t, c, "j1"), 2)
}

// TestRunTimePlans_MissingPreviousRecord lastRecordId 过期时允许创建
func TestRunTimePlans_MissingPreviousRecord(t *testing.T) {
	c, cfg := managerWithConfig(t, []string{"12:00"})
	cfg.LastRecordID = "gone"

	c.now = fixedClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, c.runTimePlans(context.Background()))
	assert.NotEqual(t, "gone", cfg.LastRecordID)
	assert.Len(t, recordIDs(t, c, "j1"), 1)
}
