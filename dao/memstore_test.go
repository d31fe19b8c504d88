package dao

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ProjectsTask/EasyAuction/errcode"
	"github.com/ProjectsTask/EasyAuction/stores/gdb/auctionmodel"
)

func seedAuction(t *testing.T, s *MemStore) {
	t.Helper()
	require.NoError(t, s.CreateAuction(context.Background(), &auctionmodel.Auction{
		ID:            "a1",
		Seller:        "0x00000000000000000000000000000000000000aa",
		StartTime:     100,
		EndTime:       200,
		StartingPrice: decimal.NewFromInt(100),
		MinIncrement:  decimal.NewFromInt(10),
		Status:        auctionmodel.AuctionStatusActive,
	}))
}

func TestMemStore_RecordBidIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	seedAuction(t, s)

	b := &auctionmodel.Bid{BidHash: "0xAA", AuctionID: "a1", Bidder: "0x01", Amount: decimal.NewFromInt(100), Nonce: 1, Timestamp: 110}
	inserted, err := s.RecordBid(ctx, b)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.RecordBid(ctx, &auctionmodel.Bid{BidHash: "0xaa", AuctionID: "a1", Bidder: "0x01", Amount: decimal.NewFromInt(100), Nonce: 1, Timestamp: 110})
	require.NoError(t, err)
	assert.False(t, inserted, "duplicate hash is a no-op success")

	n, err := s.CountBids(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	a, err := s.GetAuction(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "0x01", a.HighestBidder)

	_, err = s.RecordBid(ctx, &auctionmodel.Bid{BidHash: "0xbb", AuctionID: "missing"})
	assert.ErrorIs(t, err, errcode.ErrAuctionNotFound)
}

func TestMemStore_BidOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	seedAuction(t, s)

	for _, b := range []auctionmodel.Bid{
		{BidHash: "h1", AuctionID: "a1", Bidder: "0x01", Amount: decimal.NewFromInt(100), Nonce: 1, Timestamp: 110},
		{BidHash: "h2", AuctionID: "a1", Bidder: "0x02", Amount: decimal.NewFromInt(130), Nonce: 1, Timestamp: 150},
		{BidHash: "h3", AuctionID: "a1", Bidder: "0x03", Amount: decimal.NewFromInt(130), Nonce: 4, Timestamp: 140},
	} {
		b := b
		_, err := s.RecordBid(ctx, &b)
		require.NoError(t, err)
	}

	top, err := s.TopBid(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "h3", top.BidHash)

	bids, err := s.GetBids(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, bids, 3)
	assert.Equal(t, []string{"h3", "h2", "h1"}, []string{bids[0].BidHash, bids[1].BidHash, bids[2].BidHash})

	arrival, err := s.GetBidsByArrival(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "h1", arrival[0].BidHash)

	a, err := s.GetAuction(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "0x02", a.HighestBidder, "equal amount keeps the earlier accepted leader")

	nonce, err := s.MaxBidderNonce(ctx, "0x03")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), nonce)

	conflicts, err := s.CountNonceConflicts(ctx, "0x01", 1, "h9")
	require.NoError(t, err)
	assert.Equal(t, int64(1), conflicts)

	none, err := s.TopBid(ctx, "other")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMemStore_SettlementTransitions(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	seedAuction(t, s)

	require.NoError(t, s.BeginSettlement(ctx, "a1", 300))
	assert.ErrorIs(t, s.BeginSettlement(ctx, "a1", 301), errcode.ErrSettlementInProgress)

	n, err := s.ResetStuckSettlements(ctx, 250, "settlement timed out")
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = s.ResetStuckSettlements(ctx, 1000, "settlement timed out")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	a, _ := s.GetAuction(ctx, "a1")
	assert.Equal(t, auctionmodel.SettlementStatusFailed, a.SettlementStatus)
	assert.Equal(t, "settlement timed out", a.SettlementError)

	require.NoError(t, s.BeginSettlement(ctx, "a1", 1001))
	require.NoError(t, s.CompleteSettlement(ctx, "a1", SettlementOutcome{CompletedAt: 1002}))
	assert.ErrorIs(t, s.BeginSettlement(ctx, "a1", 1003), errcode.ErrSettlementDone)
	assert.ErrorIs(t, s.CompleteSettlement(ctx, "a1", SettlementOutcome{}), errcode.ErrStaleState)

	a, _ = s.GetAuction(ctx, "a1")
	assert.Equal(t, auctionmodel.AuctionStatusCompleted, a.Status)
	assert.ErrorIs(t, s.BeginSettlement(ctx, "missing", 1), errcode.ErrAuctionNotFound)
}

func TestMemStore_CancelAuction(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	seedAuction(t, s)

	_, err := s.RecordBid(ctx, &auctionmodel.Bid{BidHash: "h1", AuctionID: "a1", Bidder: "0x01", Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	assert.ErrorIs(t, s.CancelAuction(ctx, "a1"), errcode.ErrAuctionHasBids)

	seedOther := &auctionmodel.Auction{ID: "a2", Status: auctionmodel.AuctionStatusActive}
	s.PutAuction(seedOther)
	require.NoError(t, s.CancelAuction(ctx, "a2"))
	assert.ErrorIs(t, s.CancelAuction(ctx, "a2"), errcode.ErrAuctionNotActive)
}

func TestMemStore_ListAuctionsToSettle(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	seedAuction(t, s)
	s.PutAuction(&auctionmodel.Auction{ID: "a2", Status: auctionmodel.AuctionStatusActive, EndTime: 150, SettlementStatus: auctionmodel.SettlementStatusFailed})
	s.PutAuction(&auctionmodel.Auction{ID: "a3", Status: auctionmodel.AuctionStatusActive, EndTime: 500})

	list, err := s.ListAuctionsToSettle(ctx, 300, false, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a1", list[0].ID)

	list, err = s.ListAuctionsToSettle(ctx, 300, true, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a2", list[0].ID)
}

func TestMemStore_RecordBidRequiresOpenAuction(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		close func(s *MemStore)
	}{
		{
			name: "settlement started",
			close: func(s *MemStore) {
				require.NoError(t, s.BeginSettlement(ctx, "a1", 201))
			},
		},
		{
			name: "cancelled",
			close: func(s *MemStore) {
				require.NoError(t, s.CancelAuction(ctx, "a1"))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemStore()
			seedAuction(t, s)
			tt.close(s)

			inserted, err := s.RecordBid(ctx, &auctionmodel.Bid{BidHash: "h1", AuctionID: "a1", Bidder: "0x01", Amount: decimal.NewFromInt(100)})
			assert.ErrorIs(t, err, errcode.ErrAuctionNotActive)
			assert.False(t, inserted)

			bids, err := s.GetBids(ctx, "a1")
			require.NoError(t, err)
			assert.Empty(t, bids)
			a, err := s.GetAuction(ctx, "a1")
			require.NoError(t, err)
			assert.True(t, a.HighestBid.IsZero())
		})
	}
}

func TestMemStore_ListAuctionsToSettleExcludesEndSecond(t *testing.T) {
	s := NewMemStore()
	seedAuction(t, s)

	list, err := s.ListAuctionsToSettle(context.Background(), 200, true, 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = s.ListAuctionsToSettle(context.Background(), 201, true, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
