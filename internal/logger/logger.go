package logger // 日志记录器组件

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// Logger 默认的全局日志实例，进程启动时由入口程序替换
	Logger = log.Logger
)

// SetLevel 按配置的级别名调整全局日志级别，无法解析时保持不变
func SetLevel(levelName string) {
	if levelName == "" {
		return
	}
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		Warn().Str("level", levelName).Msg("unknown log level, keeping current level")
		return
	}
	zerolog.SetGlobalLevel(level)
}

// Named 返回一个带组件名字段的子日志记录器
func Named(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// Debug 开始一条调试级别的日志事件
func Debug() *zerolog.Event {
	return Logger.Debug()
}

// Info 开始一条信息级别的日志事件
func Info() *zerolog.Event {
	return Logger.Info()
}

// Warn 开始一条警告级别的日志事件
func Warn() *zerolog.Event {
	return Logger.Warn()
}

// Error 开始一条错误级别的日志事件
func Error() *zerolog.Event {
	return Logger.Error()
}

// Fatal 开始一条致命错误级别的日志事件，记录后程序将退出
func Fatal() *zerolog.Event {
	return Logger.Fatal()
}

// Ctx 从上下文中获取日志记录器（如果存在）
func Ctx(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// WithContext 将全局日志记录器添加到上下文中，并返回一个新的上下文
func WithContext(ctx context.Context) context.Context {
	return Logger.WithContext(ctx)
}
