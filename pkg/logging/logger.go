// Package logging 结构化日志
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// ContextKey 上下文键类型
type ContextKey string

const (
	ClusterKey  ContextKey = "cluster"
	MemberIDKey ContextKey = "member_id"
	JobNameKey  ContextKey = "job_name"
	RecordIDKey ContextKey = "record_id"
)

// Logger 结构化日志器
type Logger struct {
	*slog.Logger
	component string
}

// Config 日志配置
type Config struct {
	Level     string `json:"level"`
	Format    string `json:"format"` // json or text
	Output    string `json:"output"` // stdout, stderr, or file path
	Component string `json:"component"`
}

// New 创建新的日志器
func New(cfg Config) *Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var output io.Writer
	switch cfg.Output {
	case "stdout", "":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			output = os.Stdout
		} else {
			output = f
		}
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{
		Logger:    slog.New(handler),
		component: cfg.Component,
	}
}

// Default 创建默认日志器
func Default(component string) *Logger {
	return New(Config{
		Level:     os.Getenv("LOG_LEVEL"),
		Format:    os.Getenv("LOG_FORMAT"),
		Output:    "stdout",
		Component: component,
	})
}

// WithContext 从上下文提取协调域的追踪信息
func (l *Logger) WithContext(ctx context.Context) *Logger {
	attrs := []any{slog.String("component", l.component)}

	if cluster, ok := ctx.Value(ClusterKey).(string); ok && cluster != "" {
		attrs = append(attrs, slog.String("cluster", cluster))
	}
	if memberID, ok := ctx.Value(MemberIDKey).(string); ok && memberID != "" {
		attrs = append(attrs, slog.String("member_id", memberID))
	}
	if jobName, ok := ctx.Value(JobNameKey).(string); ok && jobName != "" {
		attrs = append(attrs, slog.String("job_name", jobName))
	}
	if recordID, ok := ctx.Value(RecordIDKey).(string); ok && recordID != "" {
		attrs = append(attrs, slog.String("record_id", recordID))
	}

	return &Logger{
		Logger:    l.Logger.With(attrs...),
		component: l.component,
	}
}

// WithMemberID 添加成员 id
func (l *Logger) WithMemberID(memberID string) *Logger {
	return &Logger{
		Logger:    l.Logger.With(slog.String("member_id", memberID)),
		component: l.component,
	}
}

// WithJob 添加任务名
func (l *Logger) WithJob(jobName string) *Logger {
	return &Logger{
		Logger:    l.Logger.With(slog.String("job_name", jobName)),
		component: l.component,
	}
}

// WithError 添加错误信息
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{
		Logger:    l.Logger.With(slog.String("error", err.Error())),
		component: l.component,
	}
}

// WithDuration 添加持续时间
func (l *Logger) WithDuration(d time.Duration) *Logger {
	return &Logger{
		Logger:    l.Logger.With(slog.Float64("duration_ms", float64(d.Milliseconds()))),
		component: l.component,
	}
}
