package ledger

import (
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ProjectsTask/EasyAuction/errcode"
	"github.com/ProjectsTask/EasyAuction/stores/gdb/auctionmodel"
)

func bid(hash, bidder string, amount, ts int64) auctionmodel.Bid {
	return auctionmodel.Bid{
		BidHash:   hash,
		AuctionID: "a1",
		Bidder:    bidder,
		Amount:    decimal.NewFromInt(amount),
		Timestamp: ts,
	}
}

func TestLedger_CreateChannel(t *testing.T) {
	l := New()
	id1 := l.CreateChannel("a1")
	id2 := l.CreateChannel("a1")
	assert.NotEqual(t, id1, id2, "each call creates an independent channel")

	s, err := l.GetState(id1)
	require.NoError(t, err)
	assert.Equal(t, "a1", s.AuctionID)
	assert.True(t, s.HighestBid.IsZero())
	assert.Equal(t, auctionmodel.ZeroAddress, s.HighestBidder)
	assert.Zero(t, s.Turn)
	assert.False(t, s.HasBids())

	_, err = l.GetState("missing")
	assert.ErrorIs(t, err, errcode.ErrChannelNotFound)
}

func TestLedger_HighestTracksMaxAmountEarliestTimestamp(t *testing.T) {
	l := New()
	id := l.CreateChannel("a1")

	steps := []struct {
		bid        auctionmodel.Bid
		wantAmount int64
		wantBidder string
	}{
		{bid: bid("h1", "alice", 100, 10), wantAmount: 100, wantBidder: "alice"},
		{bid: bid("h2", "bob", 120, 20), wantAmount: 120, wantBidder: "bob"},
		{bid: bid("h3", "carol", 120, 15), wantAmount: 120, wantBidder: "carol"},
		{bid: bid("h4", "dave", 120, 30), wantAmount: 120, wantBidder: "carol"},
		{bid: bid("h5", "erin", 110, 40), wantAmount: 120, wantBidder: "carol"},
		{bid: bid("h6", "alice", 150, 50), wantAmount: 150, wantBidder: "alice"},
	}
	for i, step := range steps {
		s, err := l.ApplyBid(id, step.bid)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(step.wantAmount).Equal(s.HighestBid), "step %d", i)
		assert.Equal(t, step.wantBidder, s.HighestBidder, "step %d", i)
		assert.Equal(t, uint64(i+1), s.Turn)
		assert.Len(t, s.Bids, i+1)
	}
}

func TestLedger_Restore(t *testing.T) {
	l := New()
	id := l.Restore("a1", []auctionmodel.Bid{bid("h1", "alice", 100, 10), bid("h2", "bob", 130, 20)})

	s, err := l.GetState(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), s.Turn)
	assert.Equal(t, "bob", s.HighestBidder)

	err = l.Update(id, func(c *Channel) error {
		assert.True(t, c.Processed("H1"))
		assert.False(t, c.Processed("h3"))
		return nil
	})
	require.NoError(t, err)

	l.Evict(id)
	_, err = l.GetState(id)
	assert.ErrorIs(t, err, errcode.ErrChannelNotFound)
}

func TestLedger_SnapshotIsolation(t *testing.T) {
	l := New()
	id := l.CreateChannel("a1")
	_, err := l.ApplyBid(id, bid("h1", "alice", 100, 10))
	require.NoError(t, err)

	s, err := l.GetState(id)
	require.NoError(t, err)
	s.Bids[0].Bidder = "mallory"

	again, err := l.GetState(id)
	require.NoError(t, err)
	assert.Equal(t, "alice", again.Bids[0].Bidder)
}

func TestLedger_ConcurrentApply(t *testing.T) {
	l := New()
	id := l.CreateChannel("a1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.ApplyBid(id, bid(fmt.Sprintf("h%d", i), fmt.Sprintf("b%d", i), int64(100+i), int64(i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	s, err := l.GetState(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), s.Turn)
	assert.Len(t, s.Bids, 50)
	assert.True(t, decimal.NewFromInt(149).Equal(s.HighestBid))
	assert.Equal(t, "b49", s.HighestBidder)
}

func TestNonceTracker(t *testing.T) {
	n := NewNonceTracker()

	_, ok := n.Last("0xAbC")
	assert.False(t, ok)

	assert.True(t, n.Advance("0xAbC", 0, 1))
	last, ok := n.Last("0xabc")
	require.True(t, ok)
	assert.Equal(t, uint64(1), last)

	assert.False(t, n.Advance("0xabc", 0, 2), "stale prev must not swap")
	assert.False(t, n.Advance("0xabc", 1, 1), "next must exceed prev")
	assert.True(t, n.Advance("0xabc", 1, 5))

	n.Rollback("0xabc", 5, 1)
	last, _ = n.Last("0xabc")
	assert.Equal(t, uint64(1), last)

	n.Rollback("0xabc", 9, 0)
	last, _ = n.Last("0xabc")
	assert.Equal(t, uint64(1), last, "rollback of a value that is not current is ignored")

	assert.Equal(t, uint64(7), n.Seed("0xdef", 7))
	assert.Equal(t, uint64(7), n.Seed("0xdef", 3), "seed never lowers")
}
