package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"clientportal/pkg/trace"
)

// Config 日志配置
type Config struct {
	Level       string `yaml:"level" env:"LEVEL"`
	Development bool   `yaml:"development" env:"DEVELOPMENT"`
}

// NewLogger 生产环境 logger，level 为空时默认 info
func NewLogger(cfg Config) *zap.Logger {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err == nil {
			zc.Level = zap.NewAtomicLevelAt(lvl)
		}
	}
	l, err := zc.Build()
	if err != nil {
		panic(err)
	}
	return l
}

// Named 子组件 logger
func Named(l *zap.Logger, component string) *zap.Logger {
	return l.Named(component)
}

// WithTrace 从 context 中提取 trace_id 并添加到 logger
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	traceID := trace.FromContext(ctx)
	if traceID != "" {
		return logger.With(zap.String("trace_id", traceID))
	}
	return logger
}
