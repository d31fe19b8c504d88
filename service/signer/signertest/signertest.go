// Package signertest provides bidder keys and signed bids for tests.
package signertest

import (
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ProjectsTask/EasyAuction/service/signer"
	"github.com/ProjectsTask/EasyAuction/stores/gdb/auctionmodel"
)

var Domain = signer.Domain{
	Name:              "EasyAuction",
	Version:           "1",
	ChainID:           11155111,
	VerifyingContract: "0x00000000000000000000000000000000000a0c71",
}

type Bidder struct {
	Key     *ecdsa.PrivateKey
	Address string
}

func NewBidder(t testing.TB) *Bidder {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &Bidder{Key: key, Address: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

// Bid builds a bid signed under Domain.
func (b *Bidder) Bid(t testing.TB, auctionID string, amount int64, nonce uint64, ts int64) *auctionmodel.Bid {
	t.Helper()
	return b.BidWithDomain(t, Domain, auctionID, amount, nonce, ts)
}

func (b *Bidder) BidWithDomain(t testing.TB, d signer.Domain, auctionID string, amount int64, nonce uint64, ts int64) *auctionmodel.Bid {
	t.Helper()
	bid := &auctionmodel.Bid{
		AuctionID: auctionID,
		Bidder:    b.Address,
		Amount:    decimal.NewFromInt(amount),
		Nonce:     nonce,
		Timestamp: ts,
	}
	sig, err := d.Sign(signer.MessageFromBid(bid), b.Key)
	require.NoError(t, err)
	bid.Signature = hexutil.Encode(sig)
	return bid
}
