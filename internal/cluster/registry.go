// Package cluster 成员注册与成员 reconcile
package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"swift-cluster/internal/shared/eventbus"
	"swift-cluster/internal/shared/kv"
)

const (
	registerAttempts   = 3
	registerRetryDelay = 2 * time.Second
)

// ============================================================================
// 注册
// ============================================================================

// Register 确保本进程出现在成员列表中且 status=1
//
// role=Manager 时，若已存在另一个在线且 id 不同的 Manager，
// 返回 ErrManagerTaken（Manager 唯一性由"预检 + CAS"保证：并发
// 注册最多一个 CAS 成功，失败方重读后在预检处出局）。
// 内层 CAS 冲突以 1 s 退避无限重试；传输错误整体最多重试 3 次，
// 每次间隔 2 s。
func (c *Cluster) Register(ctx context.Context, memberID string, role MemberRole) (*Member, error) {
	var lastErr error
	for attempt := 0; attempt < registerAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(registerRetryDelay):
			}
		}

		member, err := c.registerOnce(ctx, memberID, role)
		if err == nil {
			return member, nil
		}
		if errors.Is(err, ErrManagerTaken) {
			return nil, err
		}
		lastErr = err
		c.logger.Warn("register attempt failed", "member", memberID, "error", err)
	}
	return nil, fmt.Errorf("register %s failed after %d attempts: %w", memberID, registerAttempts, lastErr)
}

// registerOnce 单次注册尝试：CAS 冲突内部重试，传输错误上抛
func (c *Cluster) registerOnce(ctx context.Context, memberID string, role MemberRole) (*Member, error) {
	key := membersKey(c.cfg.Name)

	for {
		pair, err := c.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if pair == nil {
			pair, err = c.store.Create(ctx, key)
			if err != nil {
				return nil, err
			}
		}

		members, err := decodeMembers(pair.Value)
		if err != nil {
			return nil, err
		}

		if role == RoleManager {
			for _, m := range members {
				if m.Role == RoleManager && m.IsOnline() && m.ID != memberID {
					return nil, fmt.Errorf("%w: held by %s", ErrManagerTaken, m.ID)
				}
			}
		}

		now := c.now()
		var member *Member
		for _, m := range members {
			if m.ID == memberID {
				member = m
				break
			}
		}
		if member != nil {
			member.Status = StatusOnline
			member.Role = role
			member.OnlineTime = now
			member.OfflineTime = nil
		} else {
			member = &Member{
				ID:                memberID,
				Role:              role,
				Status:            StatusOnline,
				FirstRegisterTime: now,
				OnlineTime:        now,
			}
			members = append(members, member)
		}

		value, err := encodeMembers(members)
		if err != nil {
			return nil, err
		}

		ok, err := c.store.CAS(ctx, &kv.Pair{Key: key, Value: value, ModifyIndex: pair.ModifyIndex})
		if err != nil {
			return nil, err
		}
		if ok {
			member.cluster = c
			c.logger.Info("member registered",
				"cluster", c.cfg.Name, "member", memberID, "role", string(role))
			return member, nil
		}

		// CAS 冲突：重读后再试
		c.mx.CASConflicts.Inc()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(casRetryDelay):
		}
	}
}

// ============================================================================
// 成员 reconcile
// ============================================================================

// RefreshMembers 把 KV 上的成员列表同步到内存，并维护在线状态
//
// 不使用 refreshLock：健康探测可能耗时数秒，不能拖慢配置/记录
// 循环。并发触发由 refreshingMembers 重入守卫直接丢弃。
func (c *Cluster) RefreshMembers(ctx context.Context) error {
	if !c.refreshingMembers.CompareAndSwap(false, true) {
		return nil
	}
	defer c.refreshingMembers.Store(false)

	key := membersKey(c.cfg.Name)

	var stored []*Member
	for {
		pair, err := c.store.Get(ctx, key)
		if err != nil {
			return err
		}
		if pair == nil {
			pair, err = c.store.Create(ctx, key)
			if err != nil {
				return err
			}
		}

		members, err := decodeMembers(pair.Value)
		if err != nil {
			return err
		}

		members, dirty := c.probeAndPrune(ctx, members)
		if !dirty {
			stored = members
			break
		}

		value, err := encodeMembers(members)
		if err != nil {
			return err
		}
		ok, err := c.store.CAS(ctx, &kv.Pair{Key: key, Value: value, ModifyIndex: pair.ModifyIndex})
		if err != nil {
			return err
		}
		if ok {
			stored = members
			break
		}

		// CAS 冲突：退避后从头再读
		c.mx.CASConflicts.Inc()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return nil
		case <-time.After(casRetryDelay):
		}
	}

	c.applyMembers(stored)
	return nil
}

// probeAndPrune 对每个成员做健康探测，标记离线时间并清除超期离线成员
func (c *Cluster) probeAndPrune(ctx context.Context, members []*Member) ([]*Member, bool) {
	dirty := false
	now := c.now()

	kept := members[:0]
	for _, m := range members {
		healthy, err := c.healthProbe(ctx, m.ID)
		if err != nil {
			// 探测失败不改变状态，下个周期重试
			c.logger.Warn("health probe failed", "member", m.ID, "error", err)
			kept = append(kept, m)
			continue
		}

		if healthy {
			if m.Status != StatusOnline {
				m.Status = StatusOnline
				m.OnlineTime = now
				m.OfflineTime = nil
				dirty = true
			}
			kept = append(kept, m)
			continue
		}

		if m.Status != StatusOffline {
			m.Status = StatusOffline
			dirty = true
		}
		if m.OfflineTime == nil {
			t := now
			m.OfflineTime = &t
			dirty = true
		} else if now.Sub(*m.OfflineTime) > offlineRetention {
			// 离线超过保留时长，从列表中清除
			c.logger.Info("pruning long-offline member", "member", m.ID, "offlineSince", *m.OfflineTime)
			dirty = true
			continue
		}
		kept = append(kept, m)
	}
	return kept, dirty
}

// applyMembers 把存储侧成员集合应用到内存视图并发出事件
//
// 先更新内存再发事件：MemberJoin 的订阅者随即调用 Snapshot
// 必须能看到新成员。同一轮中 join 事件先于 remove 事件。
func (c *Cluster) applyMembers(stored []*Member) {
	c.membersMu.Lock()

	byID := make(map[string]*Member, len(c.members))
	for _, m := range c.members {
		byID[m.ID] = m
	}
	storedByID := make(map[string]*Member, len(stored))

	var joined, removed []*Member
	next := make([]*Member, 0, len(stored))
	for _, sm := range stored {
		storedByID[sm.ID] = sm
		if existing, ok := byID[sm.ID]; ok {
			// 存量成员：状态与时间字段原地更新
			existing.Role = sm.Role
			existing.Status = sm.Status
			existing.OnlineTime = sm.OnlineTime
			existing.OfflineTime = sm.OfflineTime
			existing.FirstRegisterTime = sm.FirstRegisterTime
			next = append(next, existing)
			continue
		}
		sm.cluster = c
		next = append(next, sm)
		joined = append(joined, sm)
	}
	for _, m := range c.members {
		if _, ok := storedByID[m.ID]; !ok {
			removed = append(removed, m)
		}
	}

	c.members = next
	c.refreshDerivedLocked()
	online := 0
	for _, m := range c.members {
		if m.IsOnline() {
			online++
		}
	}
	c.membersMu.Unlock()

	c.mx.MembersOnline.Set(float64(online))

	for _, m := range joined {
		c.bus.Publish(eventbus.TopicMemberJoin, m)
	}
	for _, m := range removed {
		c.bus.Publish(eventbus.TopicMemberRemove, m)
	}
}

// refreshDerivedLocked 刷新派生字段，调用方必须持有 membersMu 写锁
func (c *Cluster) refreshDerivedLocked() {
	c.currentMember = nil
	c.manager = nil
	c.workers = c.workers[:0]

	for _, m := range c.members {
		if m.ID == c.cfg.LocalID {
			c.currentMember = m
		}
		switch m.Role {
		case RoleManager:
			if c.manager == nil {
				c.manager = m
			}
		case RoleWorker:
			c.workers = append(c.workers, m)
		}
	}
}
