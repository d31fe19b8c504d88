package signer

import (
	"crypto/ecdsa"
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"

	"github.com/ProjectsTask/EasyAuction/stores/gdb/auctionmodel"
)

const (
	PrimaryType   = "Bid"
	signatureSize = 65
)

// bidTypes 出价消息的 EIP-712 类型定义, 签名端与验签端必须一致
var bidTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	PrimaryType: {
		{Name: "auctionId", Type: "string"},
		{Name: "bidder", Type: "address"},
		{Name: "amount", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "timestamp", Type: "uint256"},
	},
}

// Domain EIP-712 域分隔参数
type Domain struct {
	Name              string `toml:"name" mapstructure:"name" json:"name"`
	Version           string `toml:"version" mapstructure:"version" json:"version"`
	ChainID           int64  `toml:"chain_id" mapstructure:"chain_id" json:"chain_id"`
	VerifyingContract string `toml:"verifying_contract" mapstructure:"verifying_contract" json:"verifying_contract"`
}

// Message 被签名的出价字段
type Message struct {
	AuctionID string
	Bidder    string
	Amount    *big.Int
	Nonce     uint64
	Timestamp int64
}

// MessageFromBid 从出价记录还原签名消息
func MessageFromBid(b *auctionmodel.Bid) Message {
	return Message{
		AuctionID: b.AuctionID,
		Bidder:    b.Bidder,
		Amount:    b.Amount.BigInt(),
		Nonce:     b.Nonce,
		Timestamp: b.Timestamp,
	}
}

func (m Message) typedMessage() apitypes.TypedDataMessage {
	amount := "0"
	if m.Amount != nil {
		amount = m.Amount.String()
	}
	return apitypes.TypedDataMessage{
		"auctionId": m.AuctionID,
		"bidder":    m.Bidder,
		"amount":    amount,
		"nonce":     strconv.FormatUint(m.Nonce, 10),
		"timestamp": strconv.FormatInt(m.Timestamp, 10),
	}
}

// TypedData 组装完整的 EIP-712 结构化数据
func (d Domain) TypedData(m Message) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       bidTypes,
		PrimaryType: PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              d.Name,
			Version:           d.Version,
			ChainId:           math.NewHexOrDecimal256(d.ChainID),
			VerifyingContract: d.VerifyingContract,
		},
		Message: m.typedMessage(),
	}
}

// Digest 计算待签名摘要 keccak256("\x19\x01" || domainSeparator || hashStruct(message))
func (d Domain) Digest(m Message) ([]byte, error) {
	if m.Amount == nil || m.Amount.Sign() < 0 {
		return nil, errors.New("amount must be a non-negative integer")
	}
	if m.Timestamp < 0 {
		return nil, errors.New("timestamp must be non-negative")
	}
	hash, _, err := apitypes.TypedDataAndHash(d.TypedData(m))
	if err != nil {
		return nil, errors.Wrap(err, "failed on hash typed data")
	}
	return hash, nil
}

// BidHash 出价的幂等键: 五个签名字段的结构体哈希, 与域参数和签名本身无关
func BidHash(m Message) (string, error) {
	typed := Domain{}.TypedData(m)
	hash, err := typed.HashStruct(PrimaryType, typed.Message)
	if err != nil {
		return "", errors.Wrap(err, "failed on hash bid struct")
	}
	return hexutil.Encode(hash), nil
}

// Sign 用私钥对出价消息签名, 返回 v 为 27/28 的 65 字节签名 (与钱包输出一致)
func (d Domain) Sign(m Message, key *ecdsa.PrivateKey) ([]byte, error) {
	digest, err := d.Digest(m)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return nil, errors.Wrap(err, "failed on sign digest")
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Verifier 出价签名校验器, 域参数在构造时固定
type Verifier struct {
	domain Domain
}

func NewVerifier(domain Domain) *Verifier {
	return &Verifier{domain: domain}
}

func (v *Verifier) Domain() Domain {
	return v.domain
}

// Recover 从签名中恢复签名者地址
func (v *Verifier) Recover(m Message, sig []byte) (common.Address, error) {
	if len(sig) != signatureSize {
		return common.Address{}, errors.Errorf("invalid signature length %d", len(sig))
	}
	digest, err := v.domain.Digest(m)
	if err != nil {
		return common.Address{}, err
	}
	s := make([]byte, signatureSize)
	copy(s, sig)
	if s[crypto.RecoveryIDOffset] >= 27 {
		s[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(digest, s)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "failed on recover public key")
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify 当且仅当恢复出的地址与声明的出价人一致 (忽略大小写) 时返回 true
// 任何解析或恢复失败都视为校验失败
func (v *Verifier) Verify(m Message, signature string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	if !common.IsHexAddress(m.Bidder) {
		return false
	}
	sig, err := DecodeSignature(signature)
	if err != nil {
		return false
	}
	addr, err := v.Recover(m, sig)
	if err != nil {
		return false
	}
	return strings.EqualFold(addr.Hex(), m.Bidder)
}

// DecodeSignature 解析带或不带 0x 前缀的十六进制签名
func DecodeSignature(signature string) ([]byte, error) {
	raw := strings.TrimPrefix(strings.TrimPrefix(signature, "0x"), "0X")
	sig, err := hex.DecodeString(raw)
	if err != nil {
		return nil, errors.Wrap(err, "failed on decode signature")
	}
	if len(sig) != signatureSize {
		return nil, errors.Errorf("invalid signature length %d", len(sig))
	}
	return sig, nil
}
