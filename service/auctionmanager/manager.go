package auctionmanager

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ProjectsTask/EasyAuction/common/utils"
	"github.com/ProjectsTask/EasyAuction/dao"
	"github.com/ProjectsTask/EasyAuction/errcode"
	"github.com/ProjectsTask/EasyAuction/logger/xzap"
	"github.com/ProjectsTask/EasyAuction/metrics"
	"github.com/ProjectsTask/EasyAuction/service/ledger"
	"github.com/ProjectsTask/EasyAuction/service/notify"
	"github.com/ProjectsTask/EasyAuction/service/settlement"
	"github.com/ProjectsTask/EasyAuction/service/signer"
	"github.com/ProjectsTask/EasyAuction/service/transfer"
	"github.com/ProjectsTask/EasyAuction/service/validation"
	"github.com/ProjectsTask/EasyAuction/stores/gdb/auctionmodel"
)

// 出价处理结果的指标标签
const (
	resultAccepted  = "accepted"
	resultDuplicate = "duplicate"
	resultRejected  = "rejected"
	resultError     = "error"
)

// CreateParams 卖家挂拍参数, 资产归属证明在上游完成
type CreateParams struct {
	ID                string
	OnchainAuctionID  *int64
	Seller            string
	CollectionAddress string
	TokenId           string
	StartTime         int64
	EndTime           int64
	StartingPrice     decimal.Decimal
	MinIncrement      decimal.Decimal
}

// BidResult 出价处理结果: 拒绝是返回值而不是错误
type BidResult struct {
	Decision validation.Decision `json:"decision"`
	State    *ledger.ChannelState `json:"state"`
}

// BidEvent bid_accepted 通知载荷
type BidEvent struct {
	AuctionID     string          `json:"auction_id"`
	ChannelID     string          `json:"channel_id"`
	BidHash       string          `json:"bid_hash"`
	Bidder        string          `json:"bidder"`
	Amount        decimal.Decimal `json:"amount"`
	Nonce         uint64          `json:"nonce"`
	Timestamp     int64           `json:"timestamp"`
	HighestBid    decimal.Decimal `json:"highest_bid"`
	HighestBidder string          `json:"highest_bidder"`
	Turn          uint64          `json:"turn"`
}

// Manager 对外的拍卖核心入口: 通道管理, 出价提交, 查询与结算
// 所有协作方在构造时注入, 请求路径上不做惰性初始化
type Manager struct {
	store        dao.Store
	ledger       *ledger.Ledger
	nonces       *ledger.NonceTracker
	engine       *validation.Engine
	orchestrator *settlement.Orchestrator
	dispatcher   *notify.Dispatcher

	// auctionID -> channelID
	channels *xsync.MapOf[string, string]
}

type config struct {
	now    func() time.Time
	feeBps int64
}

type Option func(c *config)

func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

func WithFeeBps(bps int64) Option {
	return func(c *config) {
		c.feeBps = bps
	}
}

func New(store dao.Store, verifier *signer.Verifier, transferor transfer.Transferor, dispatcher *notify.Dispatcher, opts ...Option) *Manager {
	c := &config{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	m := &Manager{
		store:      store,
		ledger:     ledger.New(),
		nonces:     ledger.NewNonceTracker(),
		engine:     validation.NewEngine(verifier, validation.WithClock(c.now)),
		dispatcher: dispatcher,
		channels:   xsync.NewMapOf[string, string](),
	}
	m.orchestrator = settlement.NewOrchestrator(store, verifier, transferor, dispatcher,
		settlement.WithClock(c.now),
		settlement.WithFeeBps(c.feeBps),
		settlement.WithSettledHook(m.ReleaseChannel),
	)
	return m
}

// Orchestrator 供后台扫描任务使用
func (m *Manager) Orchestrator() *settlement.Orchestrator {
	return m.orchestrator
}

// CreateAuction 校验并保存拍卖, 同时创建其通道
func (m *Manager) CreateAuction(ctx context.Context, p CreateParams) (*auctionmodel.Auction, string, error) {
	id := strings.TrimSpace(p.ID)
	if id == "" {
		id = uuid.NewString()
	}
	a := &auctionmodel.Auction{
		ID:                id,
		OnchainAuctionID:  p.OnchainAuctionID,
		Seller:            utils.NormalizeAddress(p.Seller),
		CollectionAddress: utils.NormalizeAddress(p.CollectionAddress),
		TokenId:           p.TokenId,
		StartTime:         p.StartTime,
		EndTime:           p.EndTime,
		StartingPrice:     p.StartingPrice,
		MinIncrement:      p.MinIncrement,
		Status:            auctionmodel.AuctionStatusActive,
		HighestBid:        decimal.Zero,
		HighestBidder:     auctionmodel.ZeroAddress,
		SettlementStatus:  auctionmodel.SettlementStatusNone,
		WinningAmount:     decimal.Zero,
	}
	if err := a.Validate(); err != nil {
		return nil, "", err
	}
	if err := m.store.CreateAuction(ctx, a); err != nil {
		return nil, "", err
	}
	channelID, err := m.CreateChannel(ctx, a.ID)
	if err != nil {
		return nil, "", err
	}
	xzap.WithContext(ctx).Info("auction created",
		zap.String("auction_id", a.ID),
		zap.String("seller", a.Seller),
		zap.Int64("end_time", a.EndTime))
	return a, channelID, nil
}

func (m *Manager) GetAuction(ctx context.Context, auctionID string) (*auctionmodel.Auction, error) {
	return m.store.GetAuction(ctx, auctionID)
}

// CancelAuction 只有卖家可以取消, 且必须还没有任何出价
// 有通道时在通道临界区内取消, 保证不会与正在处理的出价交错
func (m *Manager) CancelAuction(ctx context.Context, auctionID, caller string) error {
	a, err := m.store.GetAuction(ctx, auctionID)
	if err != nil {
		return err
	}
	if !strings.EqualFold(a.Seller, caller) {
		return errcode.ErrNotSeller
	}

	cancel := func() error {
		return m.store.CancelAuction(ctx, auctionID)
	}
	if channelID, ok := m.channels.Load(auctionID); ok {
		err = m.ledger.Update(channelID, func(c *ledger.Channel) error {
			if s := c.State(); s.HasBids() {
				return errcode.ErrAuctionHasBids
			}
			return cancel()
		})
		if errors.Is(err, errcode.ErrChannelNotFound) {
			err = cancel()
		}
	} else {
		err = cancel()
	}
	if err != nil {
		return err
	}

	m.ReleaseChannel(auctionID)
	xzap.WithContext(ctx).Info("auction cancelled", zap.String("auction_id", auctionID))
	m.dispatcher.Broadcast(auctionID, notify.EventAuctionCancelled, map[string]string{"auction_id": auctionID})
	return nil
}

// CreateChannel 返回拍卖的通道 ID, 同一拍卖只会有一个存活的通道
// 进程重启后首次调用会用已持久化的出价重建通道
func (m *Manager) CreateChannel(ctx context.Context, auctionID string) (string, error) {
	if _, err := m.store.GetAuction(ctx, auctionID); err != nil {
		return "", err
	}
	if channelID, ok := m.liveChannel(auctionID); ok {
		return channelID, nil
	}

	bids, err := m.store.GetBidsByArrival(ctx, auctionID)
	if err != nil {
		return "", err
	}
	channelID, _ := m.channels.Compute(auctionID, func(old string, loaded bool) (string, bool) {
		if loaded {
			if _, err := m.ledger.GetState(old); err == nil {
				return old, false
			}
		}
		return m.ledger.Restore(auctionID, bids), false
	})
	metrics.ChannelsOpen(m.ledger.Size())
	return channelID, nil
}

func (m *Manager) liveChannel(auctionID string) (string, bool) {
	channelID, ok := m.channels.Load(auctionID)
	if !ok {
		return "", false
	}
	if _, err := m.ledger.GetState(channelID); err != nil {
		return "", false
	}
	return channelID, true
}

// ChannelFor 查询拍卖当前的通道 ID
func (m *Manager) ChannelFor(auctionID string) (string, bool) {
	return m.liveChannel(auctionID)
}

// ReleaseChannel 释放拍卖的内存通道, 之后可从存储重建
func (m *Manager) ReleaseChannel(auctionID string) {
	if channelID, ok := m.channels.LoadAndDelete(auctionID); ok {
		m.ledger.Evict(channelID)
		metrics.ChannelsOpen(m.ledger.Size())
	}
}

func (m *Manager) GetChannelState(channelID string) (*ledger.ChannelState, error) {
	return m.ledger.GetState(channelID)
}

// seedNonce 首次见到出价人时用存储中的最大 nonce 初始化
func (m *Manager) seedNonce(ctx context.Context, bidder string) error {
	if _, ok := m.nonces.Last(bidder); ok {
		return nil
	}
	n, err := m.store.MaxBidderNonce(ctx, bidder)
	if err != nil {
		return err
	}
	m.nonces.Seed(bidder, n)
	return nil
}

// SubmitBid 在通道临界区内完成 校验 -> 推进 nonce -> 持久化 -> 更新账本, 之后再广播
// 持久化失败时回滚 nonce 且账本不变
func (m *Manager) SubmitBid(ctx context.Context, channelID string, bid *auctionmodel.Bid) (*BidResult, error) {
	if bid == nil {
		return nil, errcode.ErrInvalidParams.WithMsg("bid is empty")
	}
	bid.Bidder = utils.NormalizeAddress(bid.Bidder)
	bid.Signature = strings.ToLower(bid.Signature)
	if err := m.seedNonce(ctx, bid.Bidder); err != nil {
		metrics.BidProcessed(resultError)
		return nil, err
	}

	res := &BidResult{}
	accepted := false
	err := m.ledger.Update(channelID, func(c *ledger.Channel) error {
		a, err := m.store.GetAuction(ctx, c.AuctionID())
		if err != nil {
			return err
		}
		last, _ := m.nonces.Last(bid.Bidder)
		state := c.State()
		res.State = &state

		d := m.engine.Validate(validation.Input{
			Auction:   a,
			State:     &state,
			Processed: c.Processed,
			LastNonce: last,
			Bid:       bid,
		})
		res.Decision = d
		if !d.Accepted || d.Duplicate {
			return nil
		}

		// 同一出价人可能同时在其他拍卖出价, nonce 的比较并交换失败时按过期处理
		if !m.nonces.Advance(bid.Bidder, last, bid.Nonce) {
			current, _ := m.nonces.Last(bid.Bidder)
			res.Decision = validation.Decision{
				Reason:          validation.ReasonStaleNonce,
				Detail:          fmt.Sprintf("nonce %d must exceed last used nonce %d", bid.Nonce, current),
				RequiredMinimum: d.RequiredMinimum,
				BidHash:         d.BidHash,
			}
			return nil
		}

		inserted, err := m.store.RecordBid(ctx, bid)
		if err != nil {
			m.nonces.Rollback(bid.Bidder, bid.Nonce, last)
			if errors.Is(err, errcode.ErrAuctionNotActive) {
				// 写入期间结算已经开始, 按拒绝处理且不进入账本
				res.Decision = validation.Decision{
					Reason:          validation.ReasonAuctionNotActive,
					Detail:          "auction closed before the bid was recorded",
					RequiredMinimum: d.RequiredMinimum,
					BidHash:         d.BidHash,
				}
				return nil
			}
			return err
		}
		if !inserted {
			// 存储中已有而账本中没有 (例如其他实例写入), 补齐账本但不重复通知
			res.Decision.Duplicate = true
		}
		next := c.ApplyBid(*bid)
		res.State = &next
		accepted = inserted
		return nil
	})
	if err != nil {
		metrics.BidProcessed(resultError)
		xzap.WithContext(ctx).Error("failed on process bid",
			zap.String("channel_id", channelID),
			zap.String("auction_id", bid.AuctionID),
			zap.String("bidder", bid.Bidder),
			zap.String("amount", bid.Amount.String()),
			zap.Error(err))
		return nil, err
	}

	switch {
	case accepted:
		metrics.BidProcessed(resultAccepted)
		m.dispatcher.Broadcast(res.State.AuctionID, notify.EventBidAccepted, BidEvent{
			AuctionID:     res.State.AuctionID,
			ChannelID:     channelID,
			BidHash:       bid.BidHash,
			Bidder:        bid.Bidder,
			Amount:        bid.Amount,
			Nonce:         bid.Nonce,
			Timestamp:     bid.Timestamp,
			HighestBid:    res.State.HighestBid,
			HighestBidder: res.State.HighestBidder,
			Turn:          res.State.Turn,
		})
	case res.Decision.Accepted:
		metrics.BidProcessed(resultDuplicate)
	default:
		metrics.BidProcessed(resultRejected)
		xzap.WithContext(ctx).Info("bid rejected",
			zap.String("auction_id", bid.AuctionID),
			zap.String("bidder", bid.Bidder),
			zap.String("amount", bid.Amount.String()),
			zap.String("reason", string(res.Decision.Reason)))
	}
	return res, nil
}

// GetBids 按金额降序, 时间升序返回持久化的出价
func (m *Manager) GetBids(ctx context.Context, auctionID string) ([]auctionmodel.Bid, error) {
	if _, err := m.store.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	return m.store.GetBids(ctx, auctionID)
}

func (m *Manager) Settle(ctx context.Context, auctionID string) (*settlement.Result, error) {
	return m.orchestrator.Settle(ctx, auctionID)
}

func (m *Manager) ListAttempts(ctx context.Context, auctionID string) ([]auctionmodel.SettlementAttempt, error) {
	if _, err := m.store.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	return m.store.ListAttempts(ctx, auctionID)
}
