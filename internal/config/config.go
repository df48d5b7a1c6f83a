// Package config 统一配置管理
//
// 配置加载策略：
//  1. 从 .env 加载敏感信息和 APP_ENV
//  2. 根据 APP_ENV 加载对应的 configs/{env}.yaml 配置文件
//  3. 环境变量可覆盖 YAML 配置
//
// 使用方式：
//   - 开发环境: APP_ENV=dev (默认)
//   - 测试环境: APP_ENV=test
//   - 生产环境: APP_ENV=prod
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
	EnvDevelopment Environment = "dev"
)

// YAMLConfig YAML 配置文件结构
type YAMLConfig struct {
	Cluster ClusterConfig `yaml:"cluster"`
	Etcd    EtcdConfig    `yaml:"etcd"`
	Redis   RedisConfig   `yaml:"redis"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// ClusterConfig 集群配置
type ClusterConfig struct {
	Name     string `yaml:"name"`      // 集群名，决定 KV 命名空间
	MemberID string `yaml:"member_id"` // 成员 id；为空时自动选择本机 IP
	Role     string `yaml:"role"`      // Manager 或 Worker
	JobsDir  string `yaml:"jobs_dir"`  // 任务包目录（Manager）
}

// EtcdConfig etcd 配置
type EtcdConfig struct {
	Endpoints []string `yaml:"endpoints"`
	Prefix    string   `yaml:"prefix"`
}

// RedisConfig Redis 事件镜像配置（可选）
type RedisConfig struct {
	URL string `yaml:"url"` // 为空时不启用镜像
}

// MetricsConfig Prometheus 指标端点配置
type MetricsConfig struct {
	Port string `yaml:"port"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env     Environment
	Cluster ClusterConfig
	Etcd    EtcdConfig
	Redis   RedisConfig
	Metrics MetricsConfig
	Logging LoggingConfig
}

var configPaths = []string{
	"configs",
	"../configs",
	"../../configs",
}

var envPaths = []string{
	".env",
	"../.env",
	"../../.env",
}

// configDir 显式配置目录（--config 或 CONFIG_DIR）
var configDir string

// SetConfigDir 设置显式配置目录
func SetConfigDir(dir string) {
	configDir = dir
}

// Load 加载配置
//  1. 加载 .env（敏感信息 + APP_ENV）
//  2. 根据 APP_ENV 加载 configs/{env}.yaml
//  3. 环境变量覆盖
func Load() *Config {
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	env := parseEnv(getEnv("APP_ENV", "dev"))
	yamlCfg := loadYAMLConfig(env)

	cfg := &Config{
		Env:     env,
		Cluster: yamlCfg.Cluster,
		Etcd:    yamlCfg.Etcd,
		Redis:   yamlCfg.Redis,
		Metrics: yamlCfg.Metrics,
		Logging: yamlCfg.Logging,
	}

	// 环境变量覆盖
	if v := os.Getenv("CLUSTER_NAME"); v != "" {
		cfg.Cluster.Name = v
	}
	if v := os.Getenv("MEMBER_ID"); v != "" {
		cfg.Cluster.MemberID = v
	}
	if v := os.Getenv("CLUSTER_ROLE"); v != "" {
		cfg.Cluster.Role = v
	}
	if v := os.Getenv("JOBS_DIR"); v != "" {
		cfg.Cluster.JobsDir = v
	}
	if v := os.Getenv("ETCD_ENDPOINTS"); v != "" {
		cfg.Etcd.Endpoints = strings.Split(v, ",")
	}
	if v := os.Getenv("ETCD_PREFIX"); v != "" {
		cfg.Etcd.Prefix = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		cfg.Metrics.Port = v
	}

	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Cluster.Name == "" {
		cfg.Cluster.Name = "default"
	}
	if cfg.Cluster.Role == "" {
		cfg.Cluster.Role = "Worker"
	}
	if cfg.Cluster.JobsDir == "" {
		cfg.Cluster.JobsDir = "Jobs"
	}
	if len(cfg.Etcd.Endpoints) == 0 {
		cfg.Etcd.Endpoints = []string{"localhost:2379"}
	}
	if cfg.Etcd.Prefix == "" {
		cfg.Etcd.Prefix = "swift"
	}
	if cfg.Metrics.Port == "" {
		cfg.Metrics.Port = "9180"
	}
}

func parseEnv(s string) Environment {
	switch Environment(s) {
	case EnvProduction, EnvTest, EnvDevelopment:
		return Environment(s)
	default:
		return EnvDevelopment
	}
}

func loadYAMLConfig(env Environment) *YAMLConfig {
	cfg := &YAMLConfig{}

	dirs := configPaths
	if configDir != "" {
		dirs = []string{configDir}
	}
	for _, dir := range dirs {
		path := filepath.Join(dir, fmt.Sprintf("%s.yaml", env))
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "config: failed to parse %s: %v\n", path, err)
			continue
		}
		return cfg
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
