// Package cluster 任务记录 reconcile
package cluster

import (
	"context"

	"swift-cluster/internal/shared/eventbus"
)

// refreshJobRecords 按每个配置的 lastRecordId 校准内存中的活动记录
//
// 每个活动配置在内存中至多保留一条记录：等于 lastRecordId 的那条。
// Manager 推进 lastRecordId 后，刚完成的旧记录在下个周期被逐出。
// KV 版本变化时原地更新记录对象：任务提取器和事件订阅者可能
// 持有记录引用。
func (c *Cluster) refreshJobRecords(ctx context.Context) error {
	c.refreshLock.Lock()

	var joined, removed []*JobRecord

	for _, cfg := range c.jobConfigs {
		// 逐出同名但 id 不再匹配的记录
		kept := c.jobRecords[:0]
		for _, rec := range c.jobRecords {
			if rec.JobName == cfg.Name && rec.ID != cfg.LastRecordID {
				removed = append(removed, rec)
				continue
			}
			kept = append(kept, rec)
		}
		c.jobRecords = kept

		if cfg.LastRecordID == "" {
			continue
		}

		pair, err := c.store.Get(ctx, jobRecordKey(c.cfg.Name, cfg.Name, cfg.LastRecordID))
		if err != nil {
			c.logger.Warn("failed to read job record",
				"job", cfg.Name, "record", cfg.LastRecordID, "error", err)
			continue
		}
		if pair == nil {
			// lastRecordId 过期：对应记录从活动集清除
			kept := c.jobRecords[:0]
			for _, rec := range c.jobRecords {
				if rec.ID == cfg.LastRecordID {
					removed = append(removed, rec)
					continue
				}
				kept = append(kept, rec)
			}
			c.jobRecords = kept
			continue
		}

		var existing *JobRecord
		for _, rec := range c.jobRecords {
			if rec.ID == cfg.LastRecordID {
				existing = rec
				break
			}
		}

		if existing == nil {
			rec, err := decodeJobRecord(pair)
			if err != nil {
				c.logger.Warn("skipping malformed job record", "key", pair.Key, "error", err)
				continue
			}
			c.jobRecords = append(c.jobRecords, rec)
			joined = append(joined, rec)
			continue
		}

		if existing.ModifyIndex != pair.ModifyIndex {
			fresh, err := decodeJobRecord(pair)
			if err != nil {
				c.logger.Warn("skipping malformed job record", "key", pair.Key, "error", err)
				continue
			}
			existing.updateFrom(fresh)
		}
	}

	c.mx.JobRecordsActive.Set(float64(len(c.jobRecords)))
	c.refreshLock.Unlock()

	for _, rec := range joined {
		c.bus.Publish(eventbus.TopicJobRecordJoin, rec)
	}
	for _, rec := range removed {
		c.bus.Publish(eventbus.TopicJobRecordRemove, rec)
	}
	return nil
}
