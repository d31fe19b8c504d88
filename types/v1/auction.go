package types

import (
	"github.com/shopspring/decimal"

	"github.com/ProjectsTask/EasyAuction/service/ledger"
	"github.com/ProjectsTask/EasyAuction/stores/gdb/auctionmodel"
)

// CreateAuctionParam 挂拍请求, 金额为最小单位的十进制字符串
type CreateAuctionParam struct {
	ID                string `json:"id" binding:"omitempty,max=64"`
	OnchainAuctionID  *int64 `json:"onchain_auction_id"`
	Seller            string `json:"seller" binding:"required,address"`
	CollectionAddress string `json:"collection_address" binding:"required,address"`
	TokenId           string `json:"token_id" binding:"required,uintstr"`
	StartTime         int64  `json:"start_time" binding:"required,gt=0"`
	EndTime           int64  `json:"end_time" binding:"required,gtfield=StartTime"`
	StartingPrice     string `json:"starting_price" binding:"required,uintstr"`
	MinIncrement      string `json:"min_increment" binding:"required,uintstr"`
}

type CreateAuctionResp struct {
	Auction   *auctionmodel.Auction `json:"auction"`
	ChannelID string                `json:"channel_id"`
}

// CancelAuctionParam 取消请求, 调用方身份由上游鉴权保证
type CancelAuctionParam struct {
	Seller string `json:"seller" binding:"required,address"`
}

type ChannelResp struct {
	ChannelID string               `json:"channel_id"`
	State     *ledger.ChannelState `json:"state"`
}

// AuctionBidsResp 按金额降序, 时间升序
type AuctionBidsResp struct {
	AuctionID     string             `json:"auction_id"`
	HighestBid    decimal.Decimal    `json:"highest_bid"`
	HighestBidder string             `json:"highest_bidder"`
	Result        []auctionmodel.Bid `json:"result"`
	Count         int                `json:"count"`
}

type AttemptsResp struct {
	Result []auctionmodel.SettlementAttempt `json:"result"`
	Count  int                              `json:"count"`
}
