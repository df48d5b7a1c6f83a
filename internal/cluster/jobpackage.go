// Package cluster 任务包发现与解压（Manager 侧）
//
// 磁盘布局：
//   <JobsDir>/<pkg>.zip              可选；job.json 位于压缩包根
//   <JobsDir>/<pkg>/config/job.json  磁盘上的权威配置
package cluster

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const jobConfigFileName = "job.json"

// discoverJobPackages 为每个尚未解包的 <pkg>.zip 建立配置目录并解出 job.json
//
// 配置目录先于解压创建：解压失败的包下个周期不会反复重试，
// 留给运维处理。缺少 job.json 的包报 ErrJobPackageConfigExtract。
func (c *Cluster) discoverJobPackages() error {
	archives, err := filepath.Glob(filepath.Join(c.cfg.JobsDir, "*.zip"))
	if err != nil {
		return fmt.Errorf("failed to scan job packages: %w", err)
	}

	var errs []error
	for _, archive := range archives {
		pkgName := strings.TrimSuffix(filepath.Base(archive), ".zip")
		configDir := filepath.Join(c.cfg.JobsDir, pkgName, "config")

		if _, err := os.Stat(configDir); err == nil {
			continue
		}
		if err := os.MkdirAll(configDir, 0o755); err != nil {
			errs = append(errs, fmt.Errorf("failed to create config dir for %s: %w", pkgName, err))
			continue
		}

		if err := extractJobConfig(archive, filepath.Join(configDir, jobConfigFileName)); err != nil {
			errs = append(errs, fmt.Errorf("%w: package %s: %v", ErrJobPackageConfigExtract, pkgName, err))
			continue
		}
		c.logger.Info("job package unpacked", "package", pkgName)
	}
	return errors.Join(errs...)
}

// extractJobConfig 从压缩包根解出 job.json 写入 dest
func extractJobConfig(archivePath, dest string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if filepath.Base(f.Name) != jobConfigFileName || strings.Contains(f.Name, "/") {
			continue
		}
		src, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open %s in archive: %w", f.Name, err)
		}
		defer src.Close()

		out, err := os.Create(dest)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", dest, err)
		}
		defer out.Close()

		if _, err := io.Copy(out, src); err != nil {
			return fmt.Errorf("failed to extract %s: %w", f.Name, err)
		}
		return nil
	}
	return fmt.Errorf("%s not found at archive root", jobConfigFileName)
}

// scanJobConfigs 加载 <JobsDir> 下每个直接子目录的 config/job.json
func (c *Cluster) scanJobConfigs() ([]*JobConfig, error) {
	entries, err := os.ReadDir(c.cfg.JobsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read jobs dir: %w", err)
	}

	var configs []*JobConfig
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(c.cfg.JobsDir, e.Name(), "config", jobConfigFileName)
		cfg, err := loadJobConfigFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			c.logger.Warn("skipping unreadable job config", "path", path, "error", err)
			continue
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// loadJobConfigFile 读取磁盘上的任务配置
func loadJobConfigFile(path string) (*JobConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg JobConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}
	cfg.Kind = KindJobConfig
	return &cfg, nil
}

// writeJobConfigFile 把配置序列化回磁盘（调度器推进 lastRecordId 后使用）
func (c *Cluster) writeJobConfigFile(cfg *JobConfig) error {
	path := filepath.Join(c.cfg.JobsDir, cfg.Name, "config", jobConfigFileName)
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal job config %s: %w", cfg.Name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
