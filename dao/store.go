package dao

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/ProjectsTask/EasyAuction/stores/gdb/auctionmodel"
)

// SettlementOutcome 结算完成时写回拍卖记录的字段
type SettlementOutcome struct {
	Winner        string
	WinningAmount decimal.Decimal
	TxHash        string
	CompletedAt   int64
}

// Store 持久化协作方
// 单行操作是原子的, 跨行不保证原子性, 调用方依靠幂等重入处理部分完成
type Store interface {
	CreateAuction(ctx context.Context, auction *auctionmodel.Auction) error
	GetAuction(ctx context.Context, auctionID string) (*auctionmodel.Auction, error)
	CancelAuction(ctx context.Context, auctionID string) error
	ListAuctionsToSettle(ctx context.Context, now int64, includeFailed bool, limit int) ([]auctionmodel.Auction, error)

	// RecordBid 以出价哈希幂等写入, 并在同一事务中投影最高价; 重复写入返回 inserted=false 且不报错
	RecordBid(ctx context.Context, bid *auctionmodel.Bid) (inserted bool, err error)
	// GetBids 按金额降序, 时间升序排列
	GetBids(ctx context.Context, auctionID string) ([]auctionmodel.Bid, error)
	// GetBidsByArrival 按接受顺序排列, 用于重建内存账本
	GetBidsByArrival(ctx context.Context, auctionID string) ([]auctionmodel.Bid, error)
	// TopBid 返回获胜出价, 没有出价时返回 nil
	TopBid(ctx context.Context, auctionID string) (*auctionmodel.Bid, error)
	CountBids(ctx context.Context, auctionID string) (int64, error)
	MaxBidderNonce(ctx context.Context, bidder string) (uint64, error)
	// CountNonceConflicts 统计同一出价人使用相同 nonce 但哈希不同的出价
	CountNonceConflicts(ctx context.Context, bidder string, nonce uint64, bidHash string) (int64, error)

	// BeginSettlement 把结算状态从 空/failed 置为 processing 并记录尝试时间
	BeginSettlement(ctx context.Context, auctionID string, now int64) error
	CompleteSettlement(ctx context.Context, auctionID string, outcome SettlementOutcome) error
	FailSettlement(ctx context.Context, auctionID string, reason string) error
	// ResetStuckSettlements 把 processing 且尝试时间早于 before 的结算重置为 failed
	ResetStuckSettlements(ctx context.Context, before int64, reason string) (int64, error)

	CreateAttempt(ctx context.Context, attempt *auctionmodel.SettlementAttempt) error
	UpdateAttempt(ctx context.Context, attempt *auctionmodel.SettlementAttempt) error
	// OpenAttempt 返回同一幂等键下尚未终结的尝试, 没有时返回 nil
	OpenAttempt(ctx context.Context, auctionID, idempotencyKey string) (*auctionmodel.SettlementAttempt, error)
	ListAttempts(ctx context.Context, auctionID string) ([]auctionmodel.SettlementAttempt, error)
}
