package transfer

import (
	"context"

	"github.com/shopspring/decimal"
)

// Params 结算转账参数: NFT 给赢家, 扣除平台费后的款项给卖家, 平台费给平台
type Params struct {
	AuctionID         string
	OnchainAuctionID  *int64
	Seller            string
	CollectionAddress string
	TokenId           string
	Winner            string
	Amount            decimal.Decimal
	SellerProceeds    decimal.Decimal
	PlatformFee       decimal.Decimal
	Signature         string
	Nonce             uint64
	Timestamp         int64
}

// ReturnParams 流拍时把资产退还卖家
type ReturnParams struct {
	AuctionID         string
	OnchainAuctionID  *int64
	Seller            string
	CollectionAddress string
	TokenId           string
}

// Finality 终局确认结果
type Finality struct {
	Success     bool
	FeeUsed     decimal.Decimal
	BlockNumber uint64
	Reason      string
}

// Transferor 结算转账协作方
// Submit 只返回引用, 是否成功必须以 AwaitFinality 的明确确认为准
type Transferor interface {
	Submit(ctx context.Context, params Params) (reference string, err error)
	AwaitFinality(ctx context.Context, reference string) (*Finality, error)
	ReturnAsset(ctx context.Context, params ReturnParams) (reference string, err error)
}

// OffChain 纯链下结算: 状态已在账本中最终确定, 不产生外部转账
type OffChain struct{}

var _ Transferor = OffChain{}

func (OffChain) Submit(context.Context, Params) (string, error) {
	return "", nil
}

func (OffChain) AwaitFinality(context.Context, string) (*Finality, error) {
	return &Finality{Success: true, FeeUsed: decimal.Zero}, nil
}

func (OffChain) ReturnAsset(context.Context, ReturnParams) (string, error) {
	return "", nil
}
