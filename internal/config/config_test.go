// Package config 配置加载测试
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoad_Defaults 无配置文件时使用默认值
func TestLoad_Defaults(t *testing.T) {
	SetConfigDir(t.TempDir())
	t.Cleanup(func() { SetConfigDir("") })

	cfg := Load()
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "default", cfg.Cluster.Name)
	assert.Equal(t, "Worker", cfg.Cluster.Role)
	assert.Equal(t, "Jobs", cfg.Cluster.JobsDir)
	assert.Equal(t, []string{"localhost:2379"}, cfg.Etcd.Endpoints)
	assert.Equal(t, "swift", cfg.Etcd.Prefix)
	assert.Equal(t, "9180", cfg.Metrics.Port)
}

// TestLoad_YAML 从 configs/{env}.yaml 读取
func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	yaml := `
cluster:
  name: c9
  role: Manager
  jobs_dir: /var/lib/swift/jobs
etcd:
  endpoints:
    - etcd1:2379
    - etcd2:2379
  prefix: swift-prod
redis:
  url: redis://localhost:6379/0
metrics:
  port: "9999"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dev.yaml"), []byte(yaml), 0o644))
	SetConfigDir(dir)
	t.Cleanup(func() { SetConfigDir("") })

	cfg := Load()
	assert.Equal(t, "c9", cfg.Cluster.Name)
	assert.Equal(t, "Manager", cfg.Cluster.Role)
	assert.Equal(t, "/var/lib/swift/jobs", cfg.Cluster.JobsDir)
	assert.Equal(t, []string{"etcd1:2379", "etcd2:2379"}, cfg.Etcd.Endpoints)
	assert.Equal(t, "swift-prod", cfg.Etcd.Prefix)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, "9999", cfg.Metrics.Port)
}

// TestLoad_EnvOverride 环境变量覆盖 YAML
func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dev.yaml"),
		[]byte("cluster:\n  name: from-yaml\n"), 0o644))
	SetConfigDir(dir)
	t.Cleanup(func() { SetConfigDir("") })

	t.Setenv("CLUSTER_NAME", "from-env")
	t.Setenv("ETCD_ENDPOINTS", "a:2379,b:2379")
	t.Setenv("MEMBER_ID", "10.0.0.9")

	cfg := Load()
	assert.Equal(t, "from-env", cfg.Cluster.Name)
	assert.Equal(t, []string{"a:2379", "b:2379"}, cfg.Etcd.Endpoints)
	assert.Equal(t, "10.0.0.9", cfg.Cluster.MemberID)
}

// TestParseEnv 未知环境回落到 dev
func TestParseEnv(t *testing.T) {
	assert.Equal(t, EnvProduction, parseEnv("prod"))
	assert.Equal(t, EnvTest, parseEnv("test"))
	assert.Equal(t, EnvDevelopment, parseEnv("dev"))
	assert.Equal(t, EnvDevelopment, parseEnv("bogus"))
}
