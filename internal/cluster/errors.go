// Package cluster 错误定义
package cluster

import "errors"

var (
	// ErrManagerTaken 已存在另一个在线 Manager
	ErrManagerTaken = errors.New("another manager is already online")
	// ErrJobPackageConfigExtract 任务包缺少 job.json 或解压失败
	ErrJobPackageConfigExtract = errors.New("failed to extract job.json from package")
	// ErrNotManager 仅 Manager 可执行的操作被 Worker 调用
	ErrNotManager = errors.New("operation requires the manager role")
)
