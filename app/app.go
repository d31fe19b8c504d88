package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ProjectsTask/EasyAuction/config"
	"github.com/ProjectsTask/EasyAuction/logger/xzap"
	"github.com/ProjectsTask/EasyAuction/service/svc"
)

const shutdownTimeout = 10 * time.Second

// Platform HTTP 服务容器
type Platform struct {
	config    *config.Config
	server    *http.Server
	serverCtx *svc.ServerCtx
}

func NewPlatform(config *config.Config, router *gin.Engine, serverCtx *svc.ServerCtx) (*Platform, error) {
	return &Platform{
		config: config,
		server: &http.Server{
			Addr:    config.Api.Port,
			Handler: router,
		},
		serverCtx: serverCtx,
	}, nil
}

// Start 阻塞运行 HTTP 服务, 正常关闭时返回 nil
func (p *Platform) Start() error {
	xzap.WithContext(context.Background()).Info("EasyAuction api run", zap.String("port", p.config.Api.Port))
	if err := p.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "failed on serve http")
	}
	return nil
}

// Stop 停止接收新请求并等待进行中的请求结束
func (p *Platform) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return p.server.Shutdown(ctx)
}
