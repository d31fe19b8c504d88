package dao

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ProjectsTask/EasyAuction/errcode"
	"github.com/ProjectsTask/EasyAuction/stores/gdb/auctionmodel"
)

// Dao 基于 GORM 的持久化实现
// 所有数据库交互都在这一层完成, Service 层只依赖 Store 接口
type Dao struct {
	ctx context.Context
	DB  *gorm.DB
}

var _ Store = (*Dao)(nil)

func New(ctx context.Context, db *gorm.DB) *Dao {
	return &Dao{ctx: ctx, DB: db}
}

func storageErr(err error, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return errcode.ErrStorage.Wrap(errors.Wrap(err, "failed on "+action))
}

func (d *Dao) CreateAuction(ctx context.Context, auction *auctionmodel.Auction) error {
	res := d.DB.WithContext(ctx).Table(auctionmodel.AuctionTableName()).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(auction)
	if res.Error != nil {
		return storageErr(res.Error, "create auction")
	}
	if res.RowsAffected == 0 {
		return errcode.ErrDuplicateKey.WithMsg("auction already exists")
	}
	return nil
}

func (d *Dao) GetAuction(ctx context.Context, auctionID string) (*auctionmodel.Auction, error) {
	var auction auctionmodel.Auction
	if err := d.DB.WithContext(ctx).Table(auctionmodel.AuctionTableName()).
		Where("id = ?", auctionID).
		First(&auction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errcode.ErrAuctionNotFound
		}
		return nil, storageErr(err, "get auction")
	}
	return &auction, nil
}

func (d *Dao) CancelAuction(ctx context.Context, auctionID string) error {
	res := d.DB.WithContext(ctx).Table(auctionmodel.AuctionTableName()).
		Where("id = ? and status = ? and highest_bidder in ?", auctionID, auctionmodel.AuctionStatusActive, []string{"", auctionmodel.ZeroAddress}).
		Update("status", auctionmodel.AuctionStatusCancelled)
	if res.Error != nil {
		return storageErr(res.Error, "cancel auction")
	}
	if res.RowsAffected == 0 {
		auction, err := d.GetAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if !auction.IsActive() {
			return errcode.ErrAuctionNotActive
		}
		return errcode.ErrAuctionHasBids
	}
	return nil
}

func (d *Dao) ListAuctionsToSettle(ctx context.Context, now int64, includeFailed bool, limit int) ([]auctionmodel.Auction, error) {
	statuses := []string{auctionmodel.SettlementStatusNone}
	if includeFailed {
		statuses = append(statuses, auctionmodel.SettlementStatusFailed)
	}
	var auctions []auctionmodel.Auction
	if err := d.DB.WithContext(ctx).Table(auctionmodel.AuctionTableName()).
		Where("status = ? and end_time < ? and settlement_status in ?", auctionmodel.AuctionStatusActive, now, statuses).
		Order("end_time asc").
		Limit(limit).
		Find(&auctions).Error; err != nil {
		return nil, storageErr(err, "list auctions to settle")
	}
	return auctions, nil
}

// RecordBid 幂等写入出价并在同一事务中更新拍卖的最高价投影
func (d *Dao) RecordBid(ctx context.Context, bid *auctionmodel.Bid) (bool, error) {
	inserted := false
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 锁住拍卖行, 与 BeginSettlement 的条件更新互斥
		var auction auctionmodel.Auction
		if err := tx.Table(auctionmodel.AuctionTableName()).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "status", "settlement_status").
			Where("id = ?", bid.AuctionID).
			Take(&auction).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errcode.ErrAuctionNotFound
			}
			return err
		}
		if !auction.AcceptsBids() {
			return errcode.ErrAuctionNotActive
		}

		res := tx.Table(auctionmodel.BidTableName()).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(bid)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		inserted = true

		// 同额出价保留先到者
		return tx.Table(auctionmodel.AuctionTableName()).
			Where("id = ? and (highest_bid < ? or highest_bidder in ?)", bid.AuctionID, bid.Amount, []string{"", auctionmodel.ZeroAddress}).
			Updates(map[string]interface{}{
				"highest_bid":    bid.Amount,
				"highest_bidder": bid.Bidder,
			}).Error
	})
	if err != nil {
		if errors.Is(err, errcode.ErrAuctionNotFound) || errors.Is(err, errcode.ErrAuctionNotActive) {
			return false, err
		}
		return false, storageErr(err, "record bid")
	}
	return inserted, nil
}

func (d *Dao) GetBids(ctx context.Context, auctionID string) ([]auctionmodel.Bid, error) {
	var bids []auctionmodel.Bid
	if err := d.DB.WithContext(ctx).Table(auctionmodel.BidTableName()).
		Where("auction_id = ?", auctionID).
		Order("amount desc, timestamp asc, id asc").
		Find(&bids).Error; err != nil {
		return nil, storageErr(err, "get bids")
	}
	return bids, nil
}

func (d *Dao) GetBidsByArrival(ctx context.Context, auctionID string) ([]auctionmodel.Bid, error) {
	var bids []auctionmodel.Bid
	if err := d.DB.WithContext(ctx).Table(auctionmodel.BidTableName()).
		Where("auction_id = ?", auctionID).
		Order("id asc").
		Find(&bids).Error; err != nil {
		return nil, storageErr(err, "get bids by arrival")
	}
	return bids, nil
}

func (d *Dao) TopBid(ctx context.Context, auctionID string) (*auctionmodel.Bid, error) {
	var bid auctionmodel.Bid
	if err := d.DB.WithContext(ctx).Table(auctionmodel.BidTableName()).
		Where("auction_id = ?", auctionID).
		Order("amount desc, timestamp asc, id asc").
		First(&bid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storageErr(err, "get top bid")
	}
	return &bid, nil
}

func (d *Dao) CountBids(ctx context.Context, auctionID string) (int64, error) {
	var count int64
	if err := d.DB.WithContext(ctx).Table(auctionmodel.BidTableName()).
		Where("auction_id = ?", auctionID).
		Count(&count).Error; err != nil {
		return 0, storageErr(err, "count bids")
	}
	return count, nil
}

func (d *Dao) MaxBidderNonce(ctx context.Context, bidder string) (uint64, error) {
	var nonce uint64
	if err := d.DB.WithContext(ctx).Table(auctionmodel.BidTableName()).
		Select("COALESCE(MAX(nonce), 0)").
		Where("bidder = ?", strings.ToLower(bidder)).
		Scan(&nonce).Error; err != nil {
		return 0, storageErr(err, "get max bidder nonce")
	}
	return nonce, nil
}

func (d *Dao) CountNonceConflicts(ctx context.Context, bidder string, nonce uint64, bidHash string) (int64, error) {
	var count int64
	if err := d.DB.WithContext(ctx).Table(auctionmodel.BidTableName()).
		Where("bidder = ? and nonce = ? and bid_hash <> ?", strings.ToLower(bidder), nonce, bidHash).
		Count(&count).Error; err != nil {
		return 0, storageErr(err, "count nonce conflicts")
	}
	return count, nil
}

func (d *Dao) BeginSettlement(ctx context.Context, auctionID string, now int64) error {
	res := d.DB.WithContext(ctx).Table(auctionmodel.AuctionTableName()).
		Where("id = ? and status = ? and settlement_status in ?", auctionID, auctionmodel.AuctionStatusActive,
			[]string{auctionmodel.SettlementStatusNone, auctionmodel.SettlementStatusFailed}).
		Updates(map[string]interface{}{
			"settlement_status":       auctionmodel.SettlementStatusProcessing,
			"settlement_attempted_at": now,
			"settlement_error":        "",
		})
	if res.Error != nil {
		return storageErr(res.Error, "begin settlement")
	}
	if res.RowsAffected == 1 {
		return nil
	}
	auction, err := d.GetAuction(ctx, auctionID)
	if err != nil {
		return err
	}
	return settlementConflict(auction)
}

func settlementConflict(auction *auctionmodel.Auction) error {
	switch auction.SettlementStatus {
	case auctionmodel.SettlementStatusProcessing:
		return errcode.ErrSettlementInProgress
	case auctionmodel.SettlementStatusCompleted:
		return errcode.ErrSettlementDone
	}
	return errcode.ErrAuctionNotActive.WithMsg("auction is " + auction.Status)
}

func (d *Dao) CompleteSettlement(ctx context.Context, auctionID string, outcome SettlementOutcome) error {
	res := d.DB.WithContext(ctx).Table(auctionmodel.AuctionTableName()).
		Where("id = ? and settlement_status = ?", auctionID, auctionmodel.SettlementStatusProcessing).
		Updates(map[string]interface{}{
			"status":                  auctionmodel.AuctionStatusCompleted,
			"settlement_status":       auctionmodel.SettlementStatusCompleted,
			"settlement_completed_at": outcome.CompletedAt,
			"settlement_tx_hash":      outcome.TxHash,
			"settlement_error":        "",
			"winner":                  outcome.Winner,
			"winning_amount":          outcome.WinningAmount,
		})
	if res.Error != nil {
		return storageErr(res.Error, "complete settlement")
	}
	if res.RowsAffected == 0 {
		return errcode.ErrStaleState.WithMsg("settlement is no longer processing")
	}
	return nil
}

func (d *Dao) FailSettlement(ctx context.Context, auctionID string, reason string) error {
	if err := d.DB.WithContext(ctx).Table(auctionmodel.AuctionTableName()).
		Where("id = ? and settlement_status = ?", auctionID, auctionmodel.SettlementStatusProcessing).
		Updates(map[string]interface{}{
			"settlement_status": auctionmodel.SettlementStatusFailed,
			"settlement_error":  truncate(reason, 1024),
		}).Error; err != nil {
		return storageErr(err, "fail settlement")
	}
	return nil
}

func (d *Dao) ResetStuckSettlements(ctx context.Context, before int64, reason string) (int64, error) {
	res := d.DB.WithContext(ctx).Table(auctionmodel.AuctionTableName()).
		Where("settlement_status = ? and settlement_attempted_at < ?", auctionmodel.SettlementStatusProcessing, before).
		Updates(map[string]interface{}{
			"settlement_status": auctionmodel.SettlementStatusFailed,
			"settlement_error":  truncate(reason, 1024),
		})
	if res.Error != nil {
		return 0, storageErr(res.Error, "reset stuck settlements")
	}
	return res.RowsAffected, nil
}

func (d *Dao) CreateAttempt(ctx context.Context, attempt *auctionmodel.SettlementAttempt) error {
	if err := d.DB.WithContext(ctx).Table(auctionmodel.SettlementAttemptTableName()).
		Create(attempt).Error; err != nil {
		return storageErr(err, "create settlement attempt")
	}
	return nil
}

func (d *Dao) UpdateAttempt(ctx context.Context, attempt *auctionmodel.SettlementAttempt) error {
	attempt.Error = truncate(attempt.Error, 1024)
	if err := d.DB.WithContext(ctx).Table(auctionmodel.SettlementAttemptTableName()).
		Where("id = ?", attempt.ID).
		Updates(map[string]interface{}{
			"tx_hash":         attempt.TxHash,
			"status":          attempt.Status,
			"error":           attempt.Error,
			"fee_used":        attempt.FeeUsed,
			"seller_proceeds": attempt.SellerProceeds,
			"platform_fee":    attempt.PlatformFee,
			"completed_at":    attempt.CompletedAt,
		}).Error; err != nil {
		return storageErr(err, "update settlement attempt")
	}
	return nil
}

func (d *Dao) OpenAttempt(ctx context.Context, auctionID, idempotencyKey string) (*auctionmodel.SettlementAttempt, error) {
	var attempt auctionmodel.SettlementAttempt
	if err := d.DB.WithContext(ctx).Table(auctionmodel.SettlementAttemptTableName()).
		Where("auction_id = ? and idempotency_key = ? and status in ?", auctionID, idempotencyKey, auctionmodel.OpenAttemptStatuses).
		Order("attempted_at desc").
		First(&attempt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storageErr(err, "get open settlement attempt")
	}
	return &attempt, nil
}

func (d *Dao) ListAttempts(ctx context.Context, auctionID string) ([]auctionmodel.SettlementAttempt, error) {
	var attempts []auctionmodel.SettlementAttempt
	if err := d.DB.WithContext(ctx).Table(auctionmodel.SettlementAttemptTableName()).
		Where("auction_id = ?", auctionID).
		Order("attempted_at asc").
		Find(&attempts).Error; err != nil {
		return nil, storageErr(err, "list settlement attempts")
	}
	return attempts, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
