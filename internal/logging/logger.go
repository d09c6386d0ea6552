package logging

import (
	"log/slog"
	"os"
)

// New 创建结构化 JSON 日志器，服务组件通过依赖注入获得。
func New() *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(handler).With("service", "classdesk")
}
