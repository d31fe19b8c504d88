package types

// SubmitBidParam 链下签名出价
type SubmitBidParam struct {
	AuctionID string `json:"auction_id" binding:"required,max=64"`
	Bidder    string `json:"bidder" binding:"required,address"`
	Amount    string `json:"amount" binding:"required,uintstr"`
	Nonce     uint64 `json:"nonce" binding:"required,gt=0"`
	Timestamp int64  `json:"timestamp" binding:"required,gt=0"`
	Signature string `json:"signature" binding:"required,startswith=0x,len=132"`
}
