package auctionmodel

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/ProjectsTask/EasyAuction/errcode"
)

// 拍卖状态
const (
	AuctionStatusActive    = "active"
	AuctionStatusCompleted = "completed"
	AuctionStatusCancelled = "cancelled"
)

// 结算状态, 空字符串表示尚未开始结算
const (
	SettlementStatusNone       = ""
	SettlementStatusProcessing = "processing"
	SettlementStatusCompleted  = "completed"
	SettlementStatusFailed     = "failed"
)

const ZeroAddress = "0x0000000000000000000000000000000000000000"

// Auction 拍卖记录
// 只做状态迁移, 从不删除
type Auction struct {
	ID                string          `gorm:"column:id;primaryKey;size:64" json:"id"`
	OnchainAuctionID  *int64          `gorm:"column:onchain_auction_id" json:"onchain_auction_id,omitempty"`
	Seller            string          `gorm:"column:seller;size:42;index" json:"seller"`
	CollectionAddress string          `gorm:"column:collection_address;size:42" json:"collection_address"`
	TokenId           string          `gorm:"column:token_id;size:128" json:"token_id"`
	StartTime         int64           `gorm:"column:start_time" json:"start_time"`
	EndTime           int64           `gorm:"column:end_time;index" json:"end_time"`
	StartingPrice     decimal.Decimal `gorm:"column:starting_price;type:decimal(65,0)" json:"starting_price"`
	MinIncrement      decimal.Decimal `gorm:"column:min_increment;type:decimal(65,0)" json:"min_increment"`
	Status            string          `gorm:"column:status;size:16;index" json:"status"`

	// 由已接受的出价投影而来
	HighestBid    decimal.Decimal `gorm:"column:highest_bid;type:decimal(65,0)" json:"highest_bid"`
	HighestBidder string          `gorm:"column:highest_bidder;size:42" json:"highest_bidder"`

	SettlementStatus      string          `gorm:"column:settlement_status;size:16;index" json:"settlement_status"`
	SettlementAttemptedAt int64           `gorm:"column:settlement_attempted_at" json:"settlement_attempted_at"`
	SettlementCompletedAt int64           `gorm:"column:settlement_completed_at" json:"settlement_completed_at"`
	SettlementTxHash      string          `gorm:"column:settlement_tx_hash;size:66" json:"settlement_tx_hash"`
	SettlementError       string          `gorm:"column:settlement_error;size:1024" json:"settlement_error"`
	Winner                string          `gorm:"column:winner;size:42" json:"winner"`
	WinningAmount         decimal.Decimal `gorm:"column:winning_amount;type:decimal(65,0)" json:"winning_amount"`

	CreateTime int64 `gorm:"column:create_time;autoCreateTime" json:"create_time"`
	UpdateTime int64 `gorm:"column:update_time;autoUpdateTime" json:"update_time"`
}

func AuctionTableName() string {
	return "ob_auction"
}

func (Auction) TableName() string {
	return AuctionTableName()
}

// Validate 校验拍卖参数的不变量
func (a *Auction) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return errcode.ErrInvalidAuction.WithMsg("auction id is empty")
	}
	if !common.IsHexAddress(a.Seller) {
		return errcode.ErrInvalidAuction.WithMsg("invalid seller address")
	}
	if !common.IsHexAddress(a.CollectionAddress) {
		return errcode.ErrInvalidAuction.WithMsg("invalid collection address")
	}
	if a.EndTime <= a.StartTime {
		return errcode.ErrInvalidAuction.WithMsg("end time must be after start time")
	}
	if !a.StartingPrice.IsPositive() || !a.StartingPrice.IsInteger() {
		return errcode.ErrInvalidAuction.WithMsg("starting price must be a positive integer")
	}
	if !a.MinIncrement.IsPositive() || !a.MinIncrement.IsInteger() {
		return errcode.ErrInvalidAuction.WithMsg("min increment must be a positive integer")
	}
	return nil
}

func (a *Auction) IsActive() bool {
	return a.Status == AuctionStatusActive
}

// AcceptsBids 拍卖进行中且结算尚未开始
func (a *Auction) AcceptsBids() bool {
	return a.IsActive() && a.SettlementStatus == SettlementStatusNone
}

// HasEnded 严格晚于结束时间才允许结算, 结束时间所在的那一秒仍属于出价窗口
func (a *Auction) HasEnded(now int64) bool {
	return now > a.EndTime
}

// InWindow 判断时间戳是否落在 [start, end] 内
func (a *Auction) InWindow(ts int64) bool {
	return ts >= a.StartTime && ts <= a.EndTime
}
