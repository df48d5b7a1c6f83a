// Package cluster 时间计划调度器（Manager）
package cluster

import (
	"context"
	"time"

	"github.com/google/uuid"

	"swift-cluster/internal/shared/kv"
)

const (
	clockFormat  = "15:04"
	minuteFormat = "2006-01-02 15:04"
)

// runTimePlans 检查每个配置的时间计划，到点且上一轮已完成时创建新记录
//
// 时钟分辨率是分钟而周期是 30 s，同一目标分钟内最多触发两次；
// lastFired 的分钟去重保证即便上一记录已是 TaskMerged，同一分钟
// 也只创建一条记录。
func (c *Cluster) runTimePlans(ctx context.Context) error {
	c.refreshLock.Lock()
	defer c.refreshLock.Unlock()

	for _, cfg := range c.jobConfigs {
		// 上一记录未到终态 TaskMerged，本配置跳过
		if cfg.LastRecordID != "" {
			pair, err := c.store.Get(ctx, jobRecordKey(c.cfg.Name, cfg.Name, cfg.LastRecordID))
			if err != nil {
				c.logger.Warn("failed to read previous record",
					"job", cfg.Name, "record", cfg.LastRecordID, "error", err)
				continue
			}
			if pair != nil {
				prev, err := decodeJobRecord(pair)
				if err != nil {
					c.logger.Warn("skipping malformed job record", "key", pair.Key, "error", err)
					continue
				}
				if prev.Status != RecordTaskMerged {
					continue
				}
			}
			// 记录缺失视为已过期，允许创建
		}

		now := c.now()
		clock := now.Format(clockFormat)
		minute := now.Format(minuteFormat)

		matched := false
		for _, plan := range cfg.RunTimePlan {
			if plan == clock {
				matched = true
				break
			}
		}
		if !matched || c.lastFired[cfg.Name] == minute {
			continue
		}

		if err := c.createJobRecord(ctx, cfg, now); err != nil {
			c.logger.Error("failed to create job record", "job", cfg.Name, "error", err)
			continue
		}
		c.lastFired[cfg.Name] = minute
	}
	return nil
}

// createJobRecord 创建新记录并把配置的 lastRecordId 滚动到它
//
// 顺序：先写记录键，再 CAS 配置键，最后回写磁盘配置文件。
// 配置 CAS 冲突重读重试；记录键冲突说明别处已创建，本轮放弃。
func (c *Cluster) createJobRecord(ctx context.Context, cfg *JobConfig, now time.Time) error {
	rec := &JobRecord{
		Kind:       KindJobRecord,
		ID:         uuid.NewString(),
		JobName:    cfg.Name,
		Status:     RecordPending,
		CreateTime: now,
	}
	value, err := rec.encode()
	if err != nil {
		return err
	}

	recordKey := jobRecordKey(c.cfg.Name, cfg.Name, rec.ID)
	pair, err := c.store.Create(ctx, recordKey)
	if err != nil {
		return err
	}
	ok, err := c.store.CAS(ctx, &kv.Pair{Key: recordKey, Value: value, ModifyIndex: pair.ModifyIndex})
	if err != nil {
		return err
	}
	if !ok {
		c.mx.CASConflicts.Inc()
		return nil
	}

	// 配置滚动到新记录
	configKey := jobConfigKey(c.cfg.Name, cfg.Name)
	for {
		cp, err := c.store.Get(ctx, configKey)
		if err != nil {
			return err
		}
		if cp == nil {
			// 配置在创建记录期间被下架，记录留给 DeleteTree 清理
			return nil
		}
		stored, err := decodeJobConfig(cp)
		if err != nil {
			return err
		}
		stored.LastRecordID = rec.ID
		t := now
		stored.LastRecordStartTime = &t

		updated, err := stored.encode()
		if err != nil {
			return err
		}
		ok, err := c.store.CAS(ctx, &kv.Pair{Key: configKey, Value: updated, ModifyIndex: cp.ModifyIndex})
		if err != nil {
			return err
		}
		if ok {
			cfg.refreshFrom(stored)
			if published, err := c.store.Get(ctx, configKey); err == nil && published != nil {
				cfg.ModifyIndex = published.ModifyIndex
			}
			break
		}

		c.mx.CASConflicts.Inc()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(casRetryDelay):
		}
	}

	if err := c.writeJobConfigFile(cfg); err != nil {
		c.logger.Warn("failed to rewrite job config on disk", "job", cfg.Name, "error", err)
	}

	c.mx.RecordsCreated.Inc()
	c.logger.Info("job record created", "job", cfg.Name, "record", rec.ID)
	return nil
}
