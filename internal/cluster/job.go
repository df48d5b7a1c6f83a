// Package cluster 任务配置 / 任务记录 / 任务实例模型
package cluster

import (
	"encoding/json"
	"fmt"
	"time"

	"swift-cluster/internal/shared/kv"
)

// ============================================================================
// 序列化类型标记
// ============================================================================

// KV 值通过显式的 "kind" 字段做多态解码，
// 不依赖键名或调用方的隐含类型信息。
const (
	KindJobConfig = "JobConfig"
	KindJobRecord = "JobRecord"
)

// ============================================================================
// JobConfig
// ============================================================================

// JobConfig 周期任务的声明式配置
//
// Manager 从本地磁盘 Jobs/<name>/config/job.json 加载并发布到 KV；
// Worker 从 KV 读取。ModifyIndex 随 KV 版本推进，调度器回写磁盘时
// 一并序列化，用于磁盘侧的变更检测。
type JobConfig struct {
	Kind                string            `json:"kind"`
	Name                string            `json:"name"`
	LastRecordID        string            `json:"lastRecordId,omitempty"`
	LastRecordStartTime *time.Time        `json:"lastRecordStartTime,omitempty"`
	RunTimePlan         []string          `json:"runTimePlan"` // 有序的 "HH:MM" 列表
	Settings            map[string]string `json:"settings,omitempty"`
	ModifyIndex         int64             `json:"modifyIndex"`
}

// decodeJobConfig 解码任务配置并校验类型标记
func decodeJobConfig(p *kv.Pair) (*JobConfig, error) {
	var cfg JobConfig
	if err := json.Unmarshal(p.Value, &cfg); err != nil {
		return nil, fmt.Errorf("%w: job config at %s: %v", kv.ErrMalformedValue, p.Key, err)
	}
	if cfg.Kind != "" && cfg.Kind != KindJobConfig {
		return nil, fmt.Errorf("%w: unexpected kind %q at %s", kv.ErrMalformedValue, cfg.Kind, p.Key)
	}
	cfg.Kind = KindJobConfig
	cfg.ModifyIndex = p.ModifyIndex
	return &cfg, nil
}

// encode 序列化任务配置
func (c *JobConfig) encode() ([]byte, error) {
	c.Kind = KindJobConfig
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job config %s: %w", c.Name, err)
	}
	return data, nil
}

// refreshFrom 用另一份配置的字段原地刷新本条目
//
// 持有本对象引用的订阅者会观察到更新后的字段，而不是被替换的新对象。
func (c *JobConfig) refreshFrom(other *JobConfig) {
	c.LastRecordID = other.LastRecordID
	c.LastRecordStartTime = other.LastRecordStartTime
	c.RunTimePlan = other.RunTimePlan
	c.Settings = other.Settings
	c.ModifyIndex = other.ModifyIndex
}

// ============================================================================
// JobRecord
// ============================================================================

// JobRecordStatus 任务记录生命周期状态，序列化为符号名
type JobRecordStatus string

const (
	RecordPending       JobRecordStatus = "Pending"
	RecordPlanMaking    JobRecordStatus = "PlanMaking"
	RecordPlanMade      JobRecordStatus = "PlanMade"
	RecordTaskExecuting JobRecordStatus = "TaskExecuting"
	RecordTaskSyncing   JobRecordStatus = "TaskSyncing"
	RecordTaskMerging   JobRecordStatus = "TaskMerging"
	RecordTaskMerged    JobRecordStatus = "TaskMerged"
	RecordFailed        JobRecordStatus = "Failed"
)

// JobRecord 任务的一次运行
//
// TaskPlan: memberId -> 该成员按序执行的任务列表。
// 状态由任务执行方（范围之外）推进；终态 TaskMerged 解锁下一条记录的创建。
type JobRecord struct {
	Kind        string                `json:"kind"`
	ID          string                `json:"id"`
	JobName     string                `json:"jobName"`
	Status      JobRecordStatus       `json:"status"`
	TaskPlan    map[string][]*JobTask `json:"taskPlan,omitempty"`
	CreateTime  time.Time             `json:"createTime"`
	ModifyIndex int64                 `json:"modifyIndex"`
}

// decodeJobRecord 解码任务记录并校验类型标记
func decodeJobRecord(p *kv.Pair) (*JobRecord, error) {
	var rec JobRecord
	if err := json.Unmarshal(p.Value, &rec); err != nil {
		return nil, fmt.Errorf("%w: job record at %s: %v", kv.ErrMalformedValue, p.Key, err)
	}
	if rec.Kind != "" && rec.Kind != KindJobRecord {
		return nil, fmt.Errorf("%w: unexpected kind %q at %s", kv.ErrMalformedValue, rec.Kind, p.Key)
	}
	rec.Kind = KindJobRecord
	rec.ModifyIndex = p.ModifyIndex
	return &rec, nil
}

// encode 序列化任务记录
func (r *JobRecord) encode() ([]byte, error) {
	r.Kind = KindJobRecord
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job record %s/%s: %w", r.JobName, r.ID, err)
	}
	return data, nil
}

// updateFrom 用 KV 上的新值原地更新本记录
//
// 任务提取器和事件订阅者可能长期持有记录指针，
// 因此只能覆写字段，不能替换对象。
func (r *JobRecord) updateFrom(other *JobRecord) {
	r.Status = other.Status
	r.TaskPlan = other.TaskPlan
	r.CreateTime = other.CreateTime
	r.ModifyIndex = other.ModifyIndex
}

// planReady 任务计划是否已生成
func (r *JobRecord) planReady() bool {
	return r.Status != RecordPending && r.Status != RecordPlanMaking
}

// ============================================================================
// JobTask
// ============================================================================

// JobTask 任务记录中的一个工作单元，分配给单个成员
type JobTask struct {
	ID       string `json:"id"`
	JobID    string `json:"jobId"`   // 所属任务记录 id
	JobName  string `json:"jobName"` // 所属任务名
	MemberID string `json:"memberId"`
	State    string `json:"state,omitempty"` // 执行状态（执行方推进）
}

// taskKey 任务在活动集中的身份：(记录 id, 任务 id)
func (t *JobTask) taskKey() string {
	return t.JobID + "/" + t.ID
}
