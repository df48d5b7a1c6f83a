// Package cluster 任务计划提取
package cluster

import (
	"context"

	"swift-cluster/internal/shared/eventbus"
)

// refreshTasks 从活动记录的任务计划派生任务实例并与内存活动集求差
//
// 记录仍处于 Pending/PlanMaking 时计划尚未生成，整条记录跳过。
// 任务身份是 (记录 id, 任务 id)：同名任务在新记录里是新任务。
func (c *Cluster) refreshTasks(ctx context.Context) error {
	c.refreshLock.Lock()

	latest := make(map[string]*JobTask)
	for _, rec := range c.jobRecords {
		pair, err := c.store.Get(ctx, jobRecordKey(c.cfg.Name, rec.JobName, rec.ID))
		if err != nil {
			c.logger.Warn("failed to read job record for tasks",
				"job", rec.JobName, "record", rec.ID, "error", err)
			continue
		}
		if pair == nil {
			continue
		}
		fresh, err := decodeJobRecord(pair)
		if err != nil {
			c.logger.Warn("skipping malformed job record", "key", pair.Key, "error", err)
			continue
		}
		if !fresh.planReady() {
			continue
		}

		for memberID, list := range fresh.TaskPlan {
			for _, t := range list {
				t.JobID = fresh.ID
				t.JobName = fresh.JobName
				t.MemberID = memberID
				latest[t.taskKey()] = t
			}
		}
	}

	var joined, removed []*JobTask

	active := make(map[string]*JobTask, len(c.tasks))
	for _, t := range c.tasks {
		active[t.taskKey()] = t
	}

	for key, t := range latest {
		if _, ok := active[key]; !ok {
			c.tasks = append(c.tasks, t)
			joined = append(joined, t)
		}
	}

	kept := c.tasks[:0]
	for _, t := range c.tasks {
		if _, ok := latest[t.taskKey()]; ok {
			kept = append(kept, t)
			continue
		}
		removed = append(removed, t)
	}
	c.tasks = kept

	c.mx.TasksActive.Set(float64(len(c.tasks)))
	c.refreshLock.Unlock()

	for _, t := range joined {
		c.bus.Publish(eventbus.TopicTaskJoin, t)
	}
	for _, t := range removed {
		c.bus.Publish(eventbus.TopicTaskRemove, t)
	}
	return nil
}
