// Package cluster 任务配置 reconcile
//
// Manager：磁盘 → KV（发现任务包、发布配置、清理下架任务）；
// Worker： KV → 内存（发现 Manager 发布的配置）。
package cluster

import (
	"context"
	"strings"
	"time"

	"swift-cluster/internal/shared/eventbus"
	"swift-cluster/internal/shared/kv"
)

// ============================================================================
// Manager：磁盘 → KV
// ============================================================================

// refreshJobConfigsFromDisk 用磁盘上的任务包集合校准内存与 KV
func (c *Cluster) refreshJobConfigsFromDisk(ctx context.Context) error {
	c.refreshLock.Lock()

	if err := c.discoverJobPackages(); err != nil {
		// 单个坏包不阻塞其余配置的同步
		c.logger.Error("job package discovery failed", "error", err)
	}

	diskConfigs, err := c.scanJobConfigs()
	if err != nil {
		c.refreshLock.Unlock()
		return err
	}

	diskByName := make(map[string]*JobConfig, len(diskConfigs))
	for _, cfg := range diskConfigs {
		diskByName[cfg.Name] = cfg
	}
	memByName := make(map[string]*JobConfig, len(c.jobConfigs))
	for _, cfg := range c.jobConfigs {
		memByName[cfg.Name] = cfg
	}

	var joined, removed []*JobConfig

	// 新增：发布到 KV，成功后进入内存
	for _, cfg := range diskConfigs {
		existing, ok := memByName[cfg.Name]
		if !ok {
			if err := c.TryAddJobConfig(ctx, cfg); err != nil {
				c.logger.Error("failed to publish job config", "job", cfg.Name, "error", err)
				continue
			}
			c.jobConfigs = append(c.jobConfigs, cfg)
			joined = append(joined, cfg)
			continue
		}
		// 磁盘版本变化：原地刷新存量条目
		if existing.ModifyIndex != cfg.ModifyIndex {
			existing.refreshFrom(cfg)
		}
	}

	// 消失：从内存与 KV 同时移除
	kept := c.jobConfigs[:0]
	for _, cfg := range c.jobConfigs {
		if _, ok := diskByName[cfg.Name]; ok {
			kept = append(kept, cfg)
			continue
		}
		if err := c.store.DeleteTree(ctx, jobTreeKey(c.cfg.Name, cfg.Name)); err != nil {
			c.logger.Error("failed to delete job tree", "job", cfg.Name, "error", err)
			kept = append(kept, cfg)
			continue
		}
		removed = append(removed, cfg)
	}
	c.jobConfigs = kept

	c.mx.JobConfigs.Set(float64(len(c.jobConfigs)))
	c.refreshLock.Unlock()

	for _, cfg := range joined {
		c.bus.Publish(eventbus.TopicJobConfigJoin, cfg)
	}
	for _, cfg := range removed {
		c.bus.Publish(eventbus.TopicJobConfigRemove, cfg)
	}
	return nil
}

// TryAddJobConfig 把配置发布到 Swift/<cluster>/Jobs/<name>/Config
//
// Create 确保键存在，CAS 写入内容；冲突时重读版本重试。
// 成功后 cfg.ModifyIndex 被刷新为 KV 上的新版本。
func (c *Cluster) TryAddJobConfig(ctx context.Context, cfg *JobConfig) error {
	if c.cfg.Role != RoleManager {
		return ErrNotManager
	}
	key := jobConfigKey(c.cfg.Name, cfg.Name)

	value, err := cfg.encode()
	if err != nil {
		return err
	}

	for {
		pair, err := c.store.Create(ctx, key)
		if err != nil {
			return err
		}

		ok, err := c.store.CAS(ctx, &kv.Pair{Key: key, Value: value, ModifyIndex: pair.ModifyIndex})
		if err != nil {
			return err
		}
		if ok {
			published, err := c.store.Get(ctx, key)
			if err == nil && published != nil {
				cfg.ModifyIndex = published.ModifyIndex
			}
			c.logger.Info("job config published", "job", cfg.Name)
			return nil
		}

		c.mx.CASConflicts.Inc()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(casRetryDelay):
		}
	}
}

// ============================================================================
// Worker：KV → 内存
// ============================================================================

// refreshJobConfigsFromKV 把 KV 上发布的配置同步进内存
func (c *Cluster) refreshJobConfigsFromKV(ctx context.Context) error {
	keys, err := c.store.Keys(ctx, jobsPrefix(c.cfg.Name))
	if err != nil {
		return err
	}

	var kvConfigs []*JobConfig
	for _, key := range keys {
		if !strings.HasSuffix(key, "/Config") {
			continue
		}
		pair, err := c.store.Get(ctx, key)
		if err != nil {
			c.logger.Warn("failed to read job config", "key", key, "error", err)
			continue
		}
		if pair == nil {
			continue
		}
		cfg, err := decodeJobConfig(pair)
		if err != nil {
			// 坏值本周期跳过
			c.logger.Warn("skipping malformed job config", "key", key, "error", err)
			continue
		}
		kvConfigs = append(kvConfigs, cfg)
	}

	c.refreshLock.Lock()

	kvByName := make(map[string]*JobConfig, len(kvConfigs))
	for _, cfg := range kvConfigs {
		kvByName[cfg.Name] = cfg
	}
	memByName := make(map[string]*JobConfig, len(c.jobConfigs))
	for _, cfg := range c.jobConfigs {
		memByName[cfg.Name] = cfg
	}

	var joined, removed []*JobConfig

	for _, cfg := range kvConfigs {
		existing, ok := memByName[cfg.Name]
		if !ok {
			c.jobConfigs = append(c.jobConfigs, cfg)
			joined = append(joined, cfg)
			continue
		}
		if existing.ModifyIndex != cfg.ModifyIndex {
			// KV 版本推进：替换条目
			for i, mem := range c.jobConfigs {
				if mem.Name == cfg.Name {
					c.jobConfigs[i] = cfg
					break
				}
			}
		}
	}

	kept := c.jobConfigs[:0]
	for _, cfg := range c.jobConfigs {
		if _, ok := kvByName[cfg.Name]; ok {
			kept = append(kept, cfg)
			continue
		}
		removed = append(removed, cfg)
	}
	c.jobConfigs = kept

	c.mx.JobConfigs.Set(float64(len(c.jobConfigs)))
	c.refreshLock.Unlock()

	for _, cfg := range joined {
		c.bus.Publish(eventbus.TopicJobConfigJoin, cfg)
	}
	for _, cfg := range removed {
		c.bus.Publish(eventbus.TopicJobConfigRemove, cfg)
	}
	return nil
}
