package chainclient

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

// ChainClient 结算所需的最小链上能力
type ChainClient interface {
	// SendContractCall 以运营账户签名并广播一笔合约调用, 返回交易哈希
	SendContractCall(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error)
	// TransactionReceipt 交易未上链时返回 ethereum.NotFound
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Client 基于 ethclient 的 EVM 客户端
type Client struct {
	eth     *ethclient.Client
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
}

var _ ChainClient = (*Client)(nil)

// New 连接 RPC 节点, operatorKey 为十六进制私钥 (可带 0x 前缀)
func New(ctx context.Context, endpoint string, chainID int64, operatorKey string) (*Client, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(operatorKey, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "failed on parse operator key")
	}
	eth, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "failed on dial evm rpc")
	}
	return &Client{
		eth:     eth,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(chainID),
	}, nil
}

func (c *Client) From() common.Address {
	return c.from
}

func (c *Client) SendContractCall(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	if value == nil {
		value = big.NewInt(0)
	}
	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed on get pending nonce")
	}
	tip, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed on suggest gas tip")
	}
	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed on get latest header")
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &to, Value: value, Data: data})
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed on estimate gas")
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed on sign tx")
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, errors.Wrap(err, "failed on send tx")
	}
	return signed.Hash(), nil
}

func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return c.eth.TransactionReceipt(ctx, txHash)
}

func (c *Client) Close() {
	c.eth.Close()
}
