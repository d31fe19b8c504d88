package xzap

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ProjectsTask/EasyAuction/logger"
)

type ctxKey struct{}

var global atomic.Pointer[zap.Logger]

func init() {
	global.Store(zap.NewNop())
}

// SetUp 根据配置初始化全局日志实例
// 只在启动阶段调用一次, 必须早于任何请求处理
func SetUp(c logger.LogConf) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if c.Level != "" {
		if err := level.UnmarshalText([]byte(c.Level)); err != nil {
			return nil, errors.Wrap(err, "failed on parse log level")
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	if c.Encoding == logger.EncodingConsole {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer
	switch c.Mode {
	case logger.ModeFile:
		if c.Path == "" {
			return nil, errors.New("log path is required in file mode")
		}
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename: filepath.Join(c.Path, "service.log"),
			MaxSize:  c.MaxSize,
			MaxAge:   c.KeepDays,
			Compress: c.Compress,
		})
	default:
		sink = zapcore.AddSync(os.Stdout)
	}

	l := zap.New(zapcore.NewCore(encoder, sink, level), zap.AddCaller())
	if c.ServiceName != "" {
		l = l.With(zap.String("service", c.ServiceName))
	}
	global.Store(l)
	zap.ReplaceGlobals(l)
	return l, nil
}

// NewContext 返回携带附加字段日志实例的子 Context
func NewContext(ctx context.Context, fields ...zap.Field) context.Context {
	return context.WithValue(ctx, ctxKey{}, fromContext(ctx).With(fields...))
}

// WithContext 获取 Context 中的日志实例, 没有则返回全局实例
// Context 带有 span 时附加 trace_id 与 span_id
func WithContext(ctx context.Context) *zap.Logger {
	l := fromContext(ctx)
	if ctx == nil {
		return l
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return l.With(
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()))
	}
	return l
}

func fromContext(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
			return l
		}
	}
	return global.Load()
}
