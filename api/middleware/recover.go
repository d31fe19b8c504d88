package middleware

import (
	"fmt"
	"net/http/httputil"

	"github.com/gin-gonic/gin"
	"github.com/go-stack/stack"
	"go.uber.org/zap"

	"github.com/ProjectsTask/EasyAuction/errcode"
	"github.com/ProjectsTask/EasyAuction/logger/xzap"
	"github.com/ProjectsTask/EasyAuction/xhttp"
)

// RecoverMiddleware 捕获 handler 中的 panic, 返回 500 并记录请求与堆栈
func RecoverMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				dump, _ := httputil.DumpRequest(c.Request, false)
				xzap.WithContext(c.Request.Context()).Error("http handler panicked",
					zap.Any("panic", r),
					zap.String("request", string(dump)),
					zap.String("stack", fmt.Sprintf("%+v", stack.Trace().TrimRuntime())))
				xhttp.Error(c, errcode.ErrUnexpected)
			}
		}()
		c.Next()
	}
}
