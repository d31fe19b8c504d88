package settlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/syncx"
	"go.uber.org/zap"

	"github.com/ProjectsTask/EasyAuction/dao"
	"github.com/ProjectsTask/EasyAuction/errcode"
	"github.com/ProjectsTask/EasyAuction/logger/xzap"
	"github.com/ProjectsTask/EasyAuction/metrics"
	"github.com/ProjectsTask/EasyAuction/service/notify"
	"github.com/ProjectsTask/EasyAuction/service/signer"
	"github.com/ProjectsTask/EasyAuction/service/transfer"
	"github.com/ProjectsTask/EasyAuction/stores/gdb/auctionmodel"
)

const noWinnerKeySuffix = "no-winner"

// Result 结算结果, 同时作为完成通知的载荷
type Result struct {
	AuctionID        string          `json:"auction_id"`
	Winner           string          `json:"winner,omitempty"`
	WinningAmount    decimal.Decimal `json:"winning_amount"`
	SellerProceeds   decimal.Decimal `json:"seller_proceeds"`
	PlatformFee      decimal.Decimal `json:"platform_fee"`
	TxHash           string          `json:"tx_hash,omitempty"`
	SettlementStatus string          `json:"settlement_status"`
	CompletedAt      int64           `json:"completed_at"`
}

// HasWinner 流拍时为 false
func (r *Result) HasWinner() bool {
	return r.Winner != "" && r.Winner != auctionmodel.ZeroAddress
}

type failurePayload struct {
	AuctionID string `json:"auction_id"`
	Error     string `json:"error"`
}

// Orchestrator 结算状态机
// 所有步骤都由持久化状态驱动, 重复调用 Settle 是安全的
type Orchestrator struct {
	store      dao.Store
	verifier   *signer.Verifier
	transferor transfer.Transferor
	dispatcher *notify.Dispatcher

	feeBps    int64
	now       func() time.Time
	onSettled func(auctionID string)
	flight    syncx.SingleFlight
}

type Option func(o *Orchestrator)

// WithFeeBps 平台费率 (万分比)
func WithFeeBps(bps int64) Option {
	return func(o *Orchestrator) {
		o.feeBps = bps
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithSettledHook 结算完成后回调, 用于释放内存中的通道
func WithSettledHook(fn func(auctionID string)) Option {
	return func(o *Orchestrator) {
		o.onSettled = fn
	}
}

func NewOrchestrator(store dao.Store, verifier *signer.Verifier, transferor transfer.Transferor, dispatcher *notify.Dispatcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:      store,
		verifier:   verifier,
		transferor: transferor,
		dispatcher: dispatcher,
		now:        time.Now,
		flight:     syncx.NewSingleFlight(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Settle 结算一个已结束的拍卖
// 同一进程内对同一拍卖的并发调用合并为一次执行, 跨进程依靠 BeginSettlement 的条件更新互斥
func (o *Orchestrator) Settle(ctx context.Context, auctionID string) (*Result, error) {
	v, err := o.flight.Do(auctionID, func() (interface{}, error) {
		return o.settle(ctx, auctionID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (o *Orchestrator) settle(ctx context.Context, auctionID string) (*Result, error) {
	a, err := o.store.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if a.SettlementStatus == auctionmodel.SettlementStatusCompleted {
		return o.completedResult(ctx, a)
	}
	if !a.IsActive() {
		return nil, errcode.ErrAuctionNotActive
	}

	now := o.now().Unix()
	if !a.HasEnded(now) {
		return nil, errcode.ErrAuctionNotEnded.WithMsg(fmt.Sprintf("auction ends at %d", a.EndTime))
	}
	if err := o.store.BeginSettlement(ctx, auctionID, now); err != nil {
		return nil, err
	}

	res, err := o.execute(ctx, a, now)
	if err != nil {
		o.fail(ctx, auctionID, err)
		return nil, err
	}

	xzap.WithContext(ctx).Info("auction settled",
		zap.String("auction_id", auctionID),
		zap.String("winner", res.Winner),
		zap.String("amount", res.WinningAmount.String()),
		zap.String("tx_hash", res.TxHash))
	metrics.SettlementFinished("success")
	if o.dispatcher != nil {
		o.dispatcher.Broadcast(auctionID, notify.EventSettlementCompleted, res)
	}
	if o.onSettled != nil {
		o.onSettled(auctionID)
	}
	return res, nil
}

// fail 把结算标记为失败并记录原因, 使用独立的 context 以免请求取消导致状态停留在 processing
func (o *Orchestrator) fail(ctx context.Context, auctionID string, cause error) {
	reason := cause.Error()
	if err := o.store.FailSettlement(context.WithoutCancel(ctx), auctionID, reason); err != nil {
		xzap.WithContext(ctx).Error("failed on mark settlement failed",
			zap.String("auction_id", auctionID), zap.Error(err))
	}
	xzap.WithContext(ctx).Warn("settlement failed",
		zap.String("auction_id", auctionID),
		zap.String("kind", errcode.KindOf(cause).String()),
		zap.Error(cause))
	metrics.SettlementFinished("failed")
	if o.dispatcher != nil {
		o.dispatcher.Broadcast(auctionID, notify.EventSettlementFailed, failurePayload{AuctionID: auctionID, Error: reason})
	}
}

func (o *Orchestrator) execute(ctx context.Context, a *auctionmodel.Auction, now int64) (*Result, error) {
	top, err := o.store.TopBid(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	if top == nil {
		return o.settleNoWinner(ctx, a, now)
	}
	return o.settleWinner(ctx, a, top, now)
}

func (o *Orchestrator) settleNoWinner(ctx context.Context, a *auctionmodel.Auction, now int64) (*Result, error) {
	params := transfer.ReturnParams{
		AuctionID:         a.ID,
		OnchainAuctionID:  a.OnchainAuctionID,
		Seller:            a.Seller,
		CollectionAddress: a.CollectionAddress,
		TokenId:           a.TokenId,
	}
	template := auctionmodel.SettlementAttempt{
		AuctionID:      a.ID,
		IdempotencyKey: a.ID + ":" + noWinnerKeySuffix,
		Winner:         auctionmodel.ZeroAddress,
		Amount:         decimal.Zero,
		SellerProceeds: decimal.Zero,
		PlatformFee:    decimal.Zero,
	}
	attempt, err := o.runAttempt(ctx, template, now, func(ctx context.Context) (string, error) {
		return o.transferor.ReturnAsset(ctx, params)
	})
	if err != nil {
		return nil, err
	}

	outcome := dao.SettlementOutcome{
		Winner:        "",
		WinningAmount: decimal.Zero,
		TxHash:        attempt.TxHash,
		CompletedAt:   now,
	}
	if err := o.store.CompleteSettlement(ctx, a.ID, outcome); err != nil {
		return nil, err
	}
	return &Result{
		AuctionID:        a.ID,
		WinningAmount:    decimal.Zero,
		SellerProceeds:   decimal.Zero,
		PlatformFee:      decimal.Zero,
		TxHash:           attempt.TxHash,
		SettlementStatus: auctionmodel.SettlementStatusCompleted,
		CompletedAt:      now,
	}, nil
}

func (o *Orchestrator) settleWinner(ctx context.Context, a *auctionmodel.Auction, top *auctionmodel.Bid, now int64) (*Result, error) {
	if err := o.reverify(ctx, a, top); err != nil {
		o.recordRejected(ctx, a, top, now, err)
		return nil, err
	}

	proceeds, fee := SplitProceeds(top.Amount, o.feeBps)
	params := transfer.Params{
		AuctionID:         a.ID,
		OnchainAuctionID:  a.OnchainAuctionID,
		Seller:            a.Seller,
		CollectionAddress: a.CollectionAddress,
		TokenId:           a.TokenId,
		Winner:            top.Bidder,
		Amount:            top.Amount,
		SellerProceeds:    proceeds,
		PlatformFee:       fee,
		Signature:         top.Signature,
		Nonce:             top.Nonce,
		Timestamp:         top.Timestamp,
	}
	template := auctionmodel.SettlementAttempt{
		AuctionID:      a.ID,
		IdempotencyKey: a.ID + ":" + strings.ToLower(top.BidHash),
		Winner:         top.Bidder,
		Amount:         top.Amount,
		SellerProceeds: proceeds,
		PlatformFee:    fee,
	}
	attempt, err := o.runAttempt(ctx, template, now, func(ctx context.Context) (string, error) {
		return o.transferor.Submit(ctx, params)
	})
	if err != nil {
		return nil, err
	}

	outcome := dao.SettlementOutcome{
		Winner:        top.Bidder,
		WinningAmount: top.Amount,
		TxHash:        attempt.TxHash,
		CompletedAt:   now,
	}
	if err := o.store.CompleteSettlement(ctx, a.ID, outcome); err != nil {
		return nil, err
	}
	return &Result{
		AuctionID:        a.ID,
		Winner:           top.Bidder,
		WinningAmount:    top.Amount,
		SellerProceeds:   proceeds,
		PlatformFee:      fee,
		TxHash:           attempt.TxHash,
		SettlementStatus: auctionmodel.SettlementStatusCompleted,
		CompletedAt:      now,
	}, nil
}

// reverify 结算前对获胜出价做最后一次校验: 签名, 哈希与存储一致, nonce 未被其他出价复用
func (o *Orchestrator) reverify(ctx context.Context, a *auctionmodel.Auction, top *auctionmodel.Bid) error {
	if top.AuctionID != a.ID {
		return errcode.ErrInvariant.WithMsg("winning bid belongs to another auction")
	}
	msg := signer.MessageFromBid(top)
	if !o.verifier.Verify(msg, top.Signature) {
		return errcode.ErrInvariant.WithMsg("winning bid signature no longer verifies")
	}
	hash, err := signer.BidHash(msg)
	if err != nil {
		return errcode.ErrInvariant.Wrap(err)
	}
	if !strings.EqualFold(hash, top.BidHash) {
		return errcode.ErrInvariant.WithMsg("winning bid hash does not match its signed fields")
	}
	conflicts, err := o.store.CountNonceConflicts(ctx, top.Bidder, top.Nonce, top.BidHash)
	if err != nil {
		return err
	}
	if conflicts > 0 {
		return errcode.ErrInvariant.WithMsg(fmt.Sprintf("winning bid nonce %d reused by %d other bids", top.Nonce, conflicts))
	}
	return nil
}

// recordRejected 复核失败时留下一条审计记录, 不发生任何转账
func (o *Orchestrator) recordRejected(ctx context.Context, a *auctionmodel.Auction, top *auctionmodel.Bid, now int64, cause error) {
	attempt := &auctionmodel.SettlementAttempt{
		ID:             uuid.NewString(),
		AuctionID:      a.ID,
		IdempotencyKey: a.ID + ":" + strings.ToLower(top.BidHash),
		Winner:         top.Bidder,
		Amount:         top.Amount,
		SellerProceeds: decimal.Zero,
		PlatformFee:    decimal.Zero,
		FeeUsed:        decimal.Zero,
		Status:         auctionmodel.AttemptStatusFailed,
		Error:          cause.Error(),
		AttemptedAt:    now,
		CompletedAt:    now,
	}
	if err := o.store.CreateAttempt(ctx, attempt); err != nil {
		xzap.WithContext(ctx).Error("failed on record rejected settlement attempt",
			zap.String("auction_id", a.ID), zap.Error(err))
	}
}

// priorAttempt 查找同一幂等键下已成功或仍在进行的尝试
func (o *Orchestrator) priorAttempt(ctx context.Context, auctionID, key string) (*auctionmodel.SettlementAttempt, error) {
	attempts, err := o.store.ListAttempts(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	for i := range attempts {
		if attempts[i].IdempotencyKey == key && attempts[i].Status == auctionmodel.AttemptStatusSuccess {
			return &attempts[i], nil
		}
	}
	return o.store.OpenAttempt(ctx, auctionID, key)
}

// runAttempt 先落库一条 submitting 尝试再调用外部转账, 拿到交易引用后转为 pending,
// 只有拿到明确的终局确认才标记成功
// 已有成功记录时直接复用; 已有 pending 记录时只等待终局, 不重复提交;
// 遗留的 submitting 记录说明上次提交结果未知, 需要人工对账, 不再自动提交
func (o *Orchestrator) runAttempt(ctx context.Context, template auctionmodel.SettlementAttempt, now int64,
	submit func(ctx context.Context) (string, error)) (*auctionmodel.SettlementAttempt, error) {
	logger := xzap.WithContext(ctx).With(
		zap.String("auction_id", template.AuctionID),
		zap.String("idempotency_key", template.IdempotencyKey))

	attempt, err := o.priorAttempt(ctx, template.AuctionID, template.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	switch {
	case attempt != nil && attempt.Status == auctionmodel.AttemptStatusSuccess:
		logger.Info("settlement transfer already confirmed", zap.String("attempt_id", attempt.ID))
		return attempt, nil
	case attempt != nil && attempt.Status == auctionmodel.AttemptStatusSubmitting:
		logger.Error("settlement submission outcome unknown, reconcile before retrying",
			zap.String("attempt_id", attempt.ID),
			zap.Int64("attempted_at", attempt.AttemptedAt))
		return nil, errcode.ErrSubmissionUnknown.WithMsg("attempt " + attempt.ID + " was interrupted during submission")
	case attempt != nil:
		logger.Info("resuming settlement attempt", zap.String("attempt_id", attempt.ID), zap.String("tx_hash", attempt.TxHash))
	default:
		attempt = &template
		attempt.ID = uuid.NewString()
		attempt.FeeUsed = decimal.Zero
		attempt.Status = auctionmodel.AttemptStatusSubmitting
		attempt.AttemptedAt = now
		if err := o.store.CreateAttempt(ctx, attempt); err != nil {
			return nil, err
		}

		ref, err := submit(ctx)
		if err != nil {
			o.closeAttempt(ctx, attempt, auctionmodel.AttemptStatusFailed, err.Error())
			return nil, wrapTransfer(err)
		}
		attempt.TxHash = ref
		attempt.Status = auctionmodel.AttemptStatusPending
		if err := o.store.UpdateAttempt(ctx, attempt); err != nil {
			// 交易已发出但记录仍是 submitting, 对账需要这里的引用
			logger.Error("failed on record settlement tx reference",
				zap.String("attempt_id", attempt.ID), zap.String("tx_hash", ref), zap.Error(err))
			return nil, err
		}
	}

	fin, err := o.transferor.AwaitFinality(ctx, attempt.TxHash)
	if err != nil {
		// 结果未知, 保持 pending 与交易引用, 下次重试时继续等待
		logger.Warn("settlement transfer not confirmed", zap.String("tx_hash", attempt.TxHash), zap.Error(err))
		return nil, wrapTransfer(err)
	}
	attempt.FeeUsed = fin.FeeUsed
	attempt.CompletedAt = o.now().Unix()
	if !fin.Success {
		o.closeAttempt(ctx, attempt, auctionmodel.AttemptStatusFailed, fin.Reason)
		return nil, errcode.ErrTransfer.WithMsg("settlement transfer failed: " + fin.Reason)
	}
	attempt.Status = auctionmodel.AttemptStatusSuccess
	attempt.Error = ""
	if err := o.store.UpdateAttempt(ctx, attempt); err != nil {
		return nil, err
	}
	return attempt, nil
}

func (o *Orchestrator) closeAttempt(ctx context.Context, attempt *auctionmodel.SettlementAttempt, status, reason string) {
	attempt.Status = status
	attempt.Error = reason
	if attempt.CompletedAt == 0 {
		attempt.CompletedAt = o.now().Unix()
	}
	if err := o.store.UpdateAttempt(context.WithoutCancel(ctx), attempt); err != nil {
		xzap.WithContext(ctx).Error("failed on update settlement attempt",
			zap.String("attempt_id", attempt.ID), zap.Error(err))
	}
}

func wrapTransfer(err error) error {
	var e *errcode.Err
	if errors.As(err, &e) {
		return err
	}
	return errcode.ErrTransfer.Wrap(err)
}

// completedResult 已完成的结算直接返回持久化的结果
func (o *Orchestrator) completedResult(ctx context.Context, a *auctionmodel.Auction) (*Result, error) {
	res := &Result{
		AuctionID:        a.ID,
		Winner:           a.Winner,
		WinningAmount:    a.WinningAmount,
		SellerProceeds:   decimal.Zero,
		PlatformFee:      decimal.Zero,
		TxHash:           a.SettlementTxHash,
		SettlementStatus: a.SettlementStatus,
		CompletedAt:      a.SettlementCompletedAt,
	}
	attempts, err := o.store.ListAttempts(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	for _, at := range attempts {
		if at.Status == auctionmodel.AttemptStatusSuccess {
			res.SellerProceeds = at.SellerProceeds
			res.PlatformFee = at.PlatformFee
		}
	}
	return res, nil
}
