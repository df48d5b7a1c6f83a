// Package main 集群成员入口
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"swift-cluster/internal/cluster"
	"swift-cluster/internal/config"
	"swift-cluster/internal/shared/eventbus/redis"
	"swift-cluster/internal/shared/kv"
	"swift-cluster/internal/shared/kv/etcd"
	"swift-cluster/pkg/logging"
)

func main() {
	configDirFlag := flag.String("config", "", "配置文件目录")
	flag.Parse()

	if *configDirFlag != "" {
		config.SetConfigDir(*configDirFlag)
	}

	cfg := config.Load()
	logger := logging.New(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    "stdout",
		Component: "swift-member",
	})

	memberID := cfg.Cluster.MemberID
	if memberID == "" {
		ip, err := cluster.LocalIP()
		if err != nil {
			logger.Error("failed to select local ip", "error", err)
			os.Exit(1)
		}
		memberID = ip
	}

	store, err := etcd.NewStore(etcd.Config{
		Endpoints: cfg.Etcd.Endpoints,
		Prefix:    cfg.Etcd.Prefix,
	})
	if err != nil {
		logger.Error("failed to connect kv store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	c, member, reg, err := join(cfg, store, memberID, logger)
	if err != nil {
		logger.Error("failed to join cluster", "error", err)
		os.Exit(1)
	}
	logger.Info("joined cluster",
		"cluster", cfg.Cluster.Name, "member", member.ID, "role", string(member.Role))

	// Redis 事件镜像（可选）
	if cfg.Redis.URL != "" {
		mirror, err := redis.NewMirror(cfg.Redis.URL, cfg.Cluster.Name)
		if err != nil {
			logger.Warn("event mirror disabled", "error", err)
		} else {
			defer mirror.Close()
			mirror.Attach(c.Bus())
		}
	}

	hbCtx, hbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = c.InitHeartbeat(hbCtx)
	hbCancel()
	if err != nil {
		logger.Error("failed to start heartbeat", "error", err)
		os.Exit(1)
	}

	c.StartMonitor()

	// Prometheus 指标端点
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		addr := ":" + cfg.Metrics.Port
		log.Printf("[metrics] listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("[metrics] server stopped: %v", err)
		}
	}()

	// 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	c.StopMonitor()
}

// join 以配置的角色注册；Manager 被占用时退级为 Worker 重试
//
// 每次尝试使用独立的指标注册表，避免退级路径上的重复注册。
func join(cfg *config.Config, store kv.Store, memberID string, logger *logging.Logger) (*cluster.Cluster, *cluster.Member, *prometheus.Registry, error) {
	role := cluster.MemberRole(cfg.Cluster.Role)

	for {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		c := cluster.New(cluster.Config{
			Name:       cfg.Cluster.Name,
			LocalID:    memberID,
			Role:       role,
			JobsDir:    cfg.Cluster.JobsDir,
			Logger:     logger,
			Registerer: reg,
		}, store)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		member, err := c.Register(ctx, memberID, role)
		cancel()
		if err == nil {
			return c, member, reg, nil
		}
		if role == cluster.RoleManager && errors.Is(err, cluster.ErrManagerTaken) {
			logger.Warn("manager already taken, falling back to worker", "error", err)
			role = cluster.RoleWorker
			continue
		}
		return nil, nil, nil, err
	}
}
