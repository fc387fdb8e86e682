// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var base zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	base = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// Init 重新初始化全局 Logger，并附加 service 字段。
// 应在每个服务的启动入口调用一次。
func Init(serviceName string) {
	base = zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// Ctx 返回绑定了追踪上下文的 Logger。若 ctx 中存在有效的 Span，
// 自动附加 trace_id 字段，便于在日志系统里和 Jaeger 链路互查。
func Ctx(ctx context.Context) *zerolog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l := base.With().Str("trace_id", sc.TraceID().String()).Logger()
		return &l
	}
	return &base
}
