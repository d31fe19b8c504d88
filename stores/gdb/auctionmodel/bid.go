package auctionmodel

import (
	"github.com/shopspring/decimal"
)

// Bid 已接受的链下签名出价, 接受后不可变
type Bid struct {
	ID         int64           `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	BidHash    string          `gorm:"column:bid_hash;size:66;uniqueIndex" json:"bid_hash"`
	AuctionID  string          `gorm:"column:auction_id;size:64;index:idx_auction_amount,priority:1" json:"auction_id"`
	Bidder     string          `gorm:"column:bidder;size:42;index:idx_bidder_nonce,priority:1" json:"bidder"`
	Amount     decimal.Decimal `gorm:"column:amount;type:decimal(65,0);index:idx_auction_amount,priority:2" json:"amount"`
	Nonce      uint64          `gorm:"column:nonce;index:idx_bidder_nonce,priority:2" json:"nonce"`
	Timestamp  int64           `gorm:"column:timestamp" json:"timestamp"`
	Signature  string          `gorm:"column:signature;size:132" json:"signature"`
	CreateTime int64           `gorm:"column:create_time;autoCreateTime" json:"create_time"`
}

func BidTableName() string {
	return "ob_auction_bid"
}

func (Bid) TableName() string {
	return BidTableName()
}

// Outranks 判断 b 是否优于 other: 金额更高, 金额相同时时间更早者优先
func (b *Bid) Outranks(other *Bid) bool {
	if other == nil {
		return true
	}
	if c := b.Amount.Cmp(other.Amount); c != 0 {
		return c > 0
	}
	return b.Timestamp < other.Timestamp
}
