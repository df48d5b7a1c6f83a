// Package cluster TTL 心跳
package cluster

import (
	"context"
	"time"
)

// InitHeartbeat 注册本成员的服务心跳并启动后台续约
//
// 服务以 heartbeatTTL 注册；后台循环每 heartbeatPeriod 续约一次，
// 传输错误时 1 s 后重试。循环随 StopMonitor 终止。
func (c *Cluster) InitHeartbeat(ctx context.Context) error {
	if err := c.store.RegisterService(ctx, c.cfg.LocalID, c.cfg.LocalID, heartbeatTTL); err != nil {
		return err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.heartbeatLoop()
	}()
	return nil
}

func (c *Cluster) heartbeatLoop() {
	for {
		select {
		case <-c.stopCh:
			return
		case <-time.After(heartbeatPeriod):
		}

		for {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := c.store.PassTTL(ctx, c.cfg.LocalID)
			cancel()

			c.mx.HeartbeatTotal.Inc()
			if err == nil {
				break
			}
			c.mx.HeartbeatErrors.Inc()
			c.logger.Warn("heartbeat failed", "member", c.cfg.LocalID, "error", err)

			select {
			case <-c.stopCh:
				return
			case <-time.After(time.Second):
			}
		}
	}
}
