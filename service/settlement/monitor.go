package settlement

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/threading"
	"go.uber.org/zap"

	"github.com/ProjectsTask/EasyAuction/dao"
	"github.com/ProjectsTask/EasyAuction/errcode"
	"github.com/ProjectsTask/EasyAuction/logger/xzap"
)

const (
	DefaultStuckTimeout  = 10 * time.Minute
	DefaultSweepInterval = time.Minute
	DefaultScanBatch     = 50

	stuckReason = "settlement stuck in processing, reset for retry"
)

// Watchdog 把卡在 processing 超过阈值的结算重置为 failed, 使其可以被重试
type Watchdog struct {
	store    dao.Store
	timeout  time.Duration
	interval time.Duration
	now      func() time.Time
}

func NewWatchdog(store dao.Store, timeout, interval time.Duration) *Watchdog {
	if timeout <= 0 {
		timeout = DefaultStuckTimeout
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Watchdog{store: store, timeout: timeout, interval: interval, now: time.Now}
}

// Sweep 执行一次重置, 返回被重置的拍卖数量
func (w *Watchdog) Sweep(ctx context.Context) (int64, error) {
	before := w.now().Add(-w.timeout).Unix()
	n, err := w.store.ResetStuckSettlements(ctx, before, stuckReason)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		xzap.WithContext(ctx).Warn("reset stuck settlements", zap.Int64("count", n), zap.Int64("attempted_before", before))
	}
	return n, nil
}

// Start 后台周期执行 Sweep, ctx 取消后退出
func (w *Watchdog) Start(ctx context.Context) {
	threading.GoSafe(func() {
		runEvery(ctx, w.interval, "SettlementWatchdogLoop", func() {
			if _, err := w.Sweep(ctx); err != nil {
				xzap.WithContext(ctx).Error("failed on sweep stuck settlements", zap.Error(err))
			}
		})
	})
}

// Scanner 周期扫描已到期但尚未结算的拍卖并触发结算
type Scanner struct {
	store        dao.Store
	orchestrator *Orchestrator
	interval     time.Duration
	batch        int
	retryFailed  bool
	now          func() time.Time
}

func NewScanner(store dao.Store, orchestrator *Orchestrator, interval time.Duration, batch int, retryFailed bool) *Scanner {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if batch <= 0 {
		batch = DefaultScanBatch
	}
	return &Scanner{
		store:        store,
		orchestrator: orchestrator,
		interval:     interval,
		batch:        batch,
		retryFailed:  retryFailed,
		now:          time.Now,
	}
}

// Scan 执行一轮扫描, 返回本轮成功结算的数量
// 单个拍卖失败只记录日志, 不影响其他拍卖
func (s *Scanner) Scan(ctx context.Context) (int, error) {
	auctions, err := s.store.ListAuctionsToSettle(ctx, s.now().Unix(), s.retryFailed, s.batch)
	if err != nil {
		return 0, err
	}
	settled := 0
	for _, a := range auctions {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		if _, err := s.orchestrator.Settle(ctx, a.ID); err != nil {
			xzap.WithContext(ctx).Warn("scheduled settlement failed",
				zap.String("auction_id", a.ID),
				zap.Bool("retryable", errcode.IsRetryable(err)),
				zap.Error(err))
			continue
		}
		settled++
	}
	return settled, nil
}

func (s *Scanner) Start(ctx context.Context) {
	threading.GoSafe(func() {
		runEvery(ctx, s.interval, "SettlementScanLoop", func() {
			if _, err := s.Scan(ctx); err != nil {
				xzap.WithContext(ctx).Error("failed on scan auctions to settle", zap.Error(err))
			}
		})
	})
}

func runEvery(ctx context.Context, interval time.Duration, name string, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			xzap.WithContext(ctx).Info(name + " stopped due to context cancellation")
			return
		case <-ticker.C:
			fn()
		}
	}
}
