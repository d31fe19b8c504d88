package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func newEngine(handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RecoverMiddleware(), RLog())
	r.GET("/x", handler)
	return r
}

func TestRLog_TraceContext(t *testing.T) {
	var seen trace.SpanContext
	r := newEngine(func(c *gin.Context) {
		seen = trace.SpanContextFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	tests := []struct {
		name        string
		traceParent string
		wantTraceID string
	}{
		{
			name:        "propagated",
			traceParent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
			wantTraceID: "4bf92f3577b34da6a3ce929d0e0e4736",
		},
		{name: "missing"},
		{name: "malformed", traceParent: "00-zz-00f067aa0ba902b7-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tt.traceParent != "" {
				req.Header.Set(HeaderTraceParent, tt.traceParent)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			require.Equal(t, http.StatusNoContent, w.Code)
			require.True(t, seen.IsValid())
			if tt.wantTraceID != "" {
				assert.Equal(t, tt.wantTraceID, seen.TraceID().String())
				assert.NotEqual(t, "00f067aa0ba902b7", seen.SpanID().String())
			}
			assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
			parts := strings.Split(w.Header().Get(HeaderTraceParent), "-")
			require.Len(t, parts, 4)
			assert.Equal(t, seen.TraceID().String(), parts[1])
			assert.Equal(t, seen.SpanID().String(), parts[2])
		})
	}
}

func TestRecoverMiddleware(t *testing.T) {
	r := newEngine(func(c *gin.Context) {
		panic("boom")
	})
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "unexpected error")
}
