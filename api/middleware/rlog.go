package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ProjectsTask/EasyAuction/logger/xzap"
)

const (
	HeaderRequestID   = "X-Request-Id"
	HeaderTraceParent = "traceparent"
)

// RLog 为每个请求生成 request id 与 span 并写入日志上下文, 请求结束后记录访问日志
func RLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		sc := requestSpan(c.GetHeader(HeaderTraceParent))
		c.Header(HeaderRequestID, requestID)
		c.Header(HeaderTraceParent, formatTraceParent(sc))

		ctx := trace.ContextWithSpanContext(c.Request.Context(), sc)
		ctx = xzap.NewContext(ctx, zap.String("request_id", requestID))
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		xzap.WithContext(ctx).Info("api access",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("uri", c.Request.RequestURI),
			zap.Int("status", c.Writer.Status()),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)))
	}
}

// requestSpan 沿用 W3C traceparent 中的 trace id, 为本次请求分配新的 span id
// header 缺失或非法时开启新的 trace
func requestSpan(traceParent string) trace.SpanContext {
	cfg := trace.SpanContextConfig{
		TraceID:    trace.TraceID(uuid.New()),
		SpanID:     newSpanID(),
		TraceFlags: trace.FlagsSampled,
	}
	parts := strings.Split(strings.TrimSpace(traceParent), "-")
	if len(parts) == 4 && parts[0] == "00" {
		tid, err := trace.TraceIDFromHex(parts[1])
		_, spanErr := trace.SpanIDFromHex(parts[2])
		flags, flagsErr := strconv.ParseUint(parts[3], 16, 8)
		if err == nil && spanErr == nil && flagsErr == nil {
			cfg.TraceID = tid
			cfg.TraceFlags = trace.TraceFlags(flags)
		}
	}
	return trace.NewSpanContext(cfg)
}

func newSpanID() trace.SpanID {
	var sid trace.SpanID
	u := uuid.New()
	copy(sid[:], u[:8])
	return sid
}

func formatTraceParent(sc trace.SpanContext) string {
	return "00-" + sc.TraceID().String() + "-" + sc.SpanID().String() + "-" + sc.TraceFlags().String()
}
