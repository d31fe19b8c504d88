package transfer

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/ProjectsTask/EasyAuction/chain/chainclient"
	"github.com/ProjectsTask/EasyAuction/common/utils"
	"github.com/ProjectsTask/EasyAuction/errcode"
	"github.com/ProjectsTask/EasyAuction/service/signer"
)

const (
	// 拍卖合约中结算与退还资产的方法
	contractAbi = `[{"inputs":[{"internalType":"uint256","name":"auctionId","type":"uint256"},{"internalType":"address","name":"bidder","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"uint256","name":"nonce","type":"uint256"},{"internalType":"uint256","name":"timestamp","type":"uint256"},{"internalType":"bytes","name":"signature","type":"bytes"}],"name":"settleWithSignedBid","outputs":[],"stateMutability":"nonpayable","type":"function"},{"inputs":[{"internalType":"uint256","name":"auctionId","type":"uint256"}],"name":"returnAsset","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

	MethodSettle      = "settleWithSignedBid"
	MethodReturnAsset = "returnAsset"
)

// OnChain 通过拍卖合约执行结算
type OnChain struct {
	client       chainclient.ChainClient
	contract     common.Address
	parsedAbi    abi.ABI
	pollInterval time.Duration
	pollAttempts int
}

var _ Transferor = (*OnChain)(nil)

func NewOnChain(client chainclient.ChainClient, contract string, pollInterval time.Duration, pollAttempts int) (*OnChain, error) {
	if !common.IsHexAddress(contract) {
		return nil, errors.Errorf("invalid auction contract address %q", contract)
	}
	parsedAbi, err := abi.JSON(strings.NewReader(contractAbi))
	if err != nil {
		return nil, errors.Wrap(err, "failed on parse auction abi")
	}
	if pollAttempts <= 0 {
		pollAttempts = 1
	}
	return &OnChain{
		client:       client,
		contract:     common.HexToAddress(contract),
		parsedAbi:    parsedAbi,
		pollInterval: pollInterval,
		pollAttempts: pollAttempts,
	}, nil
}

func onchainID(id *int64) (*big.Int, error) {
	if id == nil {
		return nil, errcode.ErrInvariant.WithMsg("auction has no on-chain id")
	}
	return big.NewInt(*id), nil
}

func (o *OnChain) Submit(ctx context.Context, params Params) (string, error) {
	auctionID, err := onchainID(params.OnchainAuctionID)
	if err != nil {
		return "", err
	}
	sig, err := signer.DecodeSignature(params.Signature)
	if err != nil {
		return "", errcode.ErrInvariant.Wrap(err)
	}
	data, err := o.parsedAbi.Pack(MethodSettle,
		auctionID,
		common.HexToAddress(params.Winner),
		params.Amount.BigInt(),
		new(big.Int).SetUint64(params.Nonce),
		big.NewInt(params.Timestamp),
		sig,
	)
	if err != nil {
		return "", errcode.ErrInvariant.Wrap(errors.Wrap(err, "failed on pack settle call"))
	}
	hash, err := o.client.SendContractCall(ctx, o.contract, data, nil)
	if err != nil {
		return "", errcode.ErrTransfer.Wrap(err)
	}
	return hash.Hex(), nil
}

func (o *OnChain) ReturnAsset(ctx context.Context, params ReturnParams) (string, error) {
	auctionID, err := onchainID(params.OnchainAuctionID)
	if err != nil {
		return "", err
	}
	data, err := o.parsedAbi.Pack(MethodReturnAsset, auctionID)
	if err != nil {
		return "", errcode.ErrInvariant.Wrap(errors.Wrap(err, "failed on pack return call"))
	}
	hash, err := o.client.SendContractCall(ctx, o.contract, data, nil)
	if err != nil {
		return "", errcode.ErrTransfer.Wrap(err)
	}
	return hash.Hex(), nil
}

// AwaitFinality 轮询交易回执直到上链
// 超过轮询次数仍未上链时返回 errcode.ErrNotFinal, 交易引用保留以便下次继续等待
func (o *OnChain) AwaitFinality(ctx context.Context, reference string) (*Finality, error) {
	if reference == "" {
		return nil, errcode.ErrInvariant.WithMsg("empty transaction reference")
	}
	hash := common.HexToHash(reference)

	var receipt *types.Receipt
	err := utils.Retry(ctx, "await receipt", o.pollAttempts, o.pollInterval, func() error {
		r, err := o.client.TransactionReceipt(ctx, hash)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, errcode.ErrNotFinal.Wrap(err)
		}
		return nil, errcode.ErrTransfer.Wrap(err)
	}

	fee := decimal.Zero
	if receipt.EffectiveGasPrice != nil {
		fee = decimal.NewFromBigInt(new(big.Int).Mul(receipt.EffectiveGasPrice, new(big.Int).SetUint64(receipt.GasUsed)), 0)
	}
	f := &Finality{
		Success: receipt.Status == types.ReceiptStatusSuccessful,
		FeeUsed: fee,
	}
	if receipt.BlockNumber != nil {
		f.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if !f.Success {
		f.Reason = "transaction reverted"
	}
	return f, nil
}
