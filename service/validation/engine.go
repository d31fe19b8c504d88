package validation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ProjectsTask/EasyAuction/service/ledger"
	"github.com/ProjectsTask/EasyAuction/service/signer"
	"github.com/ProjectsTask/EasyAuction/stores/gdb/auctionmodel"
)

// Reason 出价被拒绝的原因
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonAuctionNotFound  Reason = "auction_not_found"
	ReasonAuctionNotActive Reason = "auction_not_active"
	ReasonNotStarted       Reason = "auction_not_started"
	ReasonEnded            Reason = "auction_ended"
	ReasonTimestamp        Reason = "timestamp_out_of_window"
	ReasonMalformed        Reason = "malformed_bid"
	ReasonInvalidSignature Reason = "invalid_signature"
	ReasonBelowMinimum     Reason = "below_minimum"
	ReasonStaleNonce       Reason = "stale_nonce"
)

// Decision 校验结果
// Duplicate 为 true 表示与已接受出价完全相同, 调用方应当按成功处理且不修改状态
type Decision struct {
	Accepted        bool            `json:"accepted"`
	Duplicate       bool            `json:"duplicate"`
	Reason          Reason          `json:"reason,omitempty"`
	Detail          string          `json:"detail,omitempty"`
	RequiredMinimum decimal.Decimal `json:"required_minimum"`
	BidHash         string          `json:"bid_hash,omitempty"`
}

func reject(reason Reason, detail string) Decision {
	return Decision{Reason: reason, Detail: detail}
}

// Input 一次校验所需的全部上下文, 必须在拍卖的临界区内采集
type Input struct {
	Auction   *auctionmodel.Auction
	State     *ledger.ChannelState
	Processed func(bidHash string) bool
	LastNonce uint64
	Bid       *auctionmodel.Bid
}

// Engine 出价规则校验
type Engine struct {
	verifier *signer.Verifier
	now      func() time.Time
}

type Option func(e *Engine)

// WithClock 替换时钟, 测试使用
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(verifier *signer.Verifier, opts ...Option) *Engine {
	e := &Engine{verifier: verifier, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RequiredMinimum 没有出价时为起拍价, 否则为当前最高价加最小加价幅度
func RequiredMinimum(auction *auctionmodel.Auction, state *ledger.ChannelState) decimal.Decimal {
	if state == nil || !state.HasBids() {
		return auction.StartingPrice
	}
	return state.HighestBid.Add(auction.MinIncrement)
}

// Validate 按顺序执行规则, 第一条失败的规则决定拒绝原因
// 规则: 拍卖有效 -> 时间窗口 -> 签名 -> 重复提交 -> 最低出价 -> nonce 单调
// 完全相同的重复提交在签名通过后立即识别, 否则会被 nonce 规则误判为重放
func (e *Engine) Validate(in Input) Decision {
	a, b := in.Auction, in.Bid
	if a == nil {
		return reject(ReasonAuctionNotFound, "auction does not exist")
	}
	if b == nil {
		return reject(ReasonMalformed, "bid is empty")
	}
	if !a.AcceptsBids() {
		return reject(ReasonAuctionNotActive, fmt.Sprintf("auction status is %s, settlement status is %q", a.Status, a.SettlementStatus))
	}

	now := e.now().Unix()
	if now < a.StartTime {
		return reject(ReasonNotStarted, fmt.Sprintf("auction starts at %d", a.StartTime))
	}
	if now > a.EndTime {
		return reject(ReasonEnded, fmt.Sprintf("auction ended at %d", a.EndTime))
	}
	if !a.InWindow(b.Timestamp) {
		return reject(ReasonTimestamp, fmt.Sprintf("bid timestamp %d outside [%d, %d]", b.Timestamp, a.StartTime, a.EndTime))
	}
	if b.AuctionID != a.ID {
		return reject(ReasonMalformed, "bid auction id does not match")
	}
	if !b.Amount.IsInteger() || !b.Amount.IsPositive() {
		return reject(ReasonMalformed, "amount must be a positive integer")
	}

	msg := signer.MessageFromBid(b)
	if !e.verifier.Verify(msg, b.Signature) {
		return reject(ReasonInvalidSignature, "signature does not match bidder")
	}

	hash, err := signer.BidHash(msg)
	if err != nil {
		return reject(ReasonMalformed, err.Error())
	}
	b.BidHash = hash

	minimum := RequiredMinimum(a, in.State)
	if in.Processed != nil && in.Processed(hash) {
		return Decision{Accepted: true, Duplicate: true, BidHash: hash, RequiredMinimum: minimum}
	}

	if b.Amount.LessThan(minimum) {
		d := reject(ReasonBelowMinimum, fmt.Sprintf("amount %s below required minimum %s", b.Amount, minimum))
		d.RequiredMinimum = minimum
		d.BidHash = hash
		return d
	}
	if b.Nonce <= in.LastNonce {
		d := reject(ReasonStaleNonce, fmt.Sprintf("nonce %d must exceed last used nonce %d", b.Nonce, in.LastNonce))
		d.RequiredMinimum = minimum
		d.BidHash = hash
		return d
	}

	return Decision{Accepted: true, BidHash: hash, RequiredMinimum: minimum}
}
