package service

import (
	"context"

	"github.com/pkg/errors"
	"github.com/zeromicro/go-zero/core/threading"
	"go.uber.org/zap"

	"github.com/ProjectsTask/EasyAuction/api/router"
	"github.com/ProjectsTask/EasyAuction/app"
	"github.com/ProjectsTask/EasyAuction/config"
	"github.com/ProjectsTask/EasyAuction/logger/xzap"
	"github.com/ProjectsTask/EasyAuction/service/settlement"
	"github.com/ProjectsTask/EasyAuction/service/svc"
)

// Service 进程内所有长期运行组件
type Service struct {
	ctx      context.Context
	config   *config.Config
	svcCtx   *svc.ServerCtx
	platform *app.Platform
	watchdog *settlement.Watchdog
	scanner  *settlement.Scanner
}

// New 依次构造服务上下文 路由 后台任务, 任何一步失败都不会启动服务
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	svcCtx, err := svc.NewServiceContext(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed on create service context")
	}

	r, err := router.NewRouter(svcCtx)
	if err != nil {
		svcCtx.Close()
		return nil, errors.Wrap(err, "failed on create router")
	}
	platform, err := app.NewPlatform(cfg, r, svcCtx)
	if err != nil {
		svcCtx.Close()
		return nil, err
	}

	s := &Service{
		ctx:      ctx,
		config:   cfg,
		svcCtx:   svcCtx,
		platform: platform,
		watchdog: settlement.NewWatchdog(svcCtx.Store, cfg.Auction.StuckTimeout(), cfg.Auction.WatchdogEvery()),
	}
	if cfg.Auction.ScanEnable {
		s.scanner = settlement.NewScanner(svcCtx.Store, svcCtx.Manager.Orchestrator(),
			cfg.Auction.ScanEvery(), cfg.Auction.ScanBatch, cfg.Auction.RetryFailed)
	}
	return s, nil
}

// Start 启动后台任务与 HTTP 服务, HTTP 服务异常退出时写入 onExit
func (s *Service) Start(onExit chan<- error) error {
	// 先回收上次进程遗留的卡死结算, 再对外提供服务
	if _, err := s.watchdog.Sweep(s.ctx); err != nil {
		return errors.Wrap(err, "failed on sweep stuck settlements")
	}
	s.watchdog.Start(s.ctx)
	if s.scanner != nil {
		s.scanner.Start(s.ctx)
	}

	threading.GoSafe(func() {
		if err := s.platform.Start(); err != nil {
			onExit <- err
		}
	})
	return nil
}

// Stop 关闭 HTTP 服务并释放外部连接, 后台任务随 ctx 取消退出
func (s *Service) Stop() {
	if err := s.platform.Stop(); err != nil {
		xzap.WithContext(s.ctx).Error("failed on stop http server", zap.Error(err))
	}
	s.svcCtx.Close()
}
