package dao

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ProjectsTask/EasyAuction/errcode"
	"github.com/ProjectsTask/EasyAuction/stores/gdb/auctionmodel"
)

// MemStore 进程内实现, 用于 db.driver = "memory" 的单机部署与测试
type MemStore struct {
	mu       sync.RWMutex
	auctions map[string]*auctionmodel.Auction
	bids     []auctionmodel.Bid
	byHash   map[string]int
	attempts []auctionmodel.SettlementAttempt
	nextID   int64
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		auctions: make(map[string]*auctionmodel.Auction),
		byHash:   make(map[string]int),
	}
}

func (m *MemStore) CreateAuction(_ context.Context, auction *auctionmodel.Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.auctions[auction.ID]; ok {
		return errcode.ErrDuplicateKey.WithMsg("auction already exists")
	}
	cp := *auction
	m.auctions[auction.ID] = &cp
	return nil
}

func (m *MemStore) GetAuction(_ context.Context, auctionID string) (*auctionmodel.Auction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.auctions[auctionID]
	if !ok {
		return nil, errcode.ErrAuctionNotFound
	}
	cp := *a
	return &cp, nil
}

// PutAuction 覆盖写入拍卖记录, 用于测试构造异常数据
func (m *MemStore) PutAuction(auction *auctionmodel.Auction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *auction
	m.auctions[auction.ID] = &cp
}

// TamperBid 修改已写入的出价, 用于模拟账本与存储不一致
func (m *MemStore) TamperBid(bidHash string, fn func(b *auctionmodel.Bid)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.byHash[strings.ToLower(bidHash)]
	if !ok {
		return false
	}
	fn(&m.bids[idx])
	return true
}

func noBidder(addr string) bool {
	return addr == "" || addr == auctionmodel.ZeroAddress
}

func (m *MemStore) CancelAuction(_ context.Context, auctionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[auctionID]
	if !ok {
		return errcode.ErrAuctionNotFound
	}
	if !a.IsActive() {
		return errcode.ErrAuctionNotActive
	}
	if !noBidder(a.HighestBidder) {
		return errcode.ErrAuctionHasBids
	}
	a.Status = auctionmodel.AuctionStatusCancelled
	return nil
}

func (m *MemStore) ListAuctionsToSettle(_ context.Context, now int64, includeFailed bool, limit int) ([]auctionmodel.Auction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []auctionmodel.Auction
	for _, a := range m.auctions {
		if !a.IsActive() || a.EndTime >= now {
			continue
		}
		if a.SettlementStatus == auctionmodel.SettlementStatusNone ||
			(includeFailed && a.SettlementStatus == auctionmodel.SettlementStatusFailed) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime < out[j].EndTime })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) RecordBid(_ context.Context, bid *auctionmodel.Bid) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[bid.AuctionID]
	if !ok {
		return false, errcode.ErrAuctionNotFound
	}
	if !a.AcceptsBids() {
		return false, errcode.ErrAuctionNotActive
	}
	key := strings.ToLower(bid.BidHash)
	if _, dup := m.byHash[key]; dup {
		return false, nil
	}
	m.nextID++
	cp := *bid
	cp.ID = m.nextID
	m.bids = append(m.bids, cp)
	m.byHash[key] = len(m.bids) - 1
	bid.ID = cp.ID

	if noBidder(a.HighestBidder) || a.HighestBid.LessThan(bid.Amount) {
		a.HighestBid = bid.Amount
		a.HighestBidder = bid.Bidder
	}
	return true, nil
}

func (m *MemStore) auctionBids(auctionID string) []auctionmodel.Bid {
	var out []auctionmodel.Bid
	for _, b := range m.bids {
		if b.AuctionID == auctionID {
			out = append(out, b)
		}
	}
	return out
}

func (m *MemStore) GetBids(_ context.Context, auctionID string) ([]auctionmodel.Bid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.auctionBids(auctionID)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Outranks(&out[j]) })
	return out, nil
}

func (m *MemStore) GetBidsByArrival(_ context.Context, auctionID string) ([]auctionmodel.Bid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.auctionBids(auctionID), nil
}

func (m *MemStore) TopBid(ctx context.Context, auctionID string) (*auctionmodel.Bid, error) {
	bids, err := m.GetBids(ctx, auctionID)
	if err != nil || len(bids) == 0 {
		return nil, err
	}
	return &bids[0], nil
}

func (m *MemStore) CountBids(_ context.Context, auctionID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.auctionBids(auctionID))), nil
}

func (m *MemStore) MaxBidderNonce(_ context.Context, bidder string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var highest uint64
	for _, b := range m.bids {
		if strings.EqualFold(b.Bidder, bidder) && b.Nonce > highest {
			highest = b.Nonce
		}
	}
	return highest, nil
}

func (m *MemStore) CountNonceConflicts(_ context.Context, bidder string, nonce uint64, bidHash string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var count int64
	for _, b := range m.bids {
		if strings.EqualFold(b.Bidder, bidder) && b.Nonce == nonce && !strings.EqualFold(b.BidHash, bidHash) {
			count++
		}
	}
	return count, nil
}

func (m *MemStore) BeginSettlement(_ context.Context, auctionID string, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[auctionID]
	if !ok {
		return errcode.ErrAuctionNotFound
	}
	if !a.IsActive() || (a.SettlementStatus != auctionmodel.SettlementStatusNone && a.SettlementStatus != auctionmodel.SettlementStatusFailed) {
		return settlementConflict(a)
	}
	a.SettlementStatus = auctionmodel.SettlementStatusProcessing
	a.SettlementAttemptedAt = now
	a.SettlementError = ""
	return nil
}

func (m *MemStore) CompleteSettlement(_ context.Context, auctionID string, outcome SettlementOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[auctionID]
	if !ok {
		return errcode.ErrAuctionNotFound
	}
	if a.SettlementStatus != auctionmodel.SettlementStatusProcessing {
		return errcode.ErrStaleState.WithMsg("settlement is no longer processing")
	}
	a.Status = auctionmodel.AuctionStatusCompleted
	a.SettlementStatus = auctionmodel.SettlementStatusCompleted
	a.SettlementCompletedAt = outcome.CompletedAt
	a.SettlementTxHash = outcome.TxHash
	a.SettlementError = ""
	a.Winner = outcome.Winner
	a.WinningAmount = outcome.WinningAmount
	return nil
}

func (m *MemStore) FailSettlement(_ context.Context, auctionID string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[auctionID]
	if !ok {
		return errcode.ErrAuctionNotFound
	}
	if a.SettlementStatus == auctionmodel.SettlementStatusProcessing {
		a.SettlementStatus = auctionmodel.SettlementStatusFailed
		a.SettlementError = reason
	}
	return nil
}

func (m *MemStore) ResetStuckSettlements(_ context.Context, before int64, reason string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, a := range m.auctions {
		if a.SettlementStatus == auctionmodel.SettlementStatusProcessing && a.SettlementAttemptedAt < before {
			a.SettlementStatus = auctionmodel.SettlementStatusFailed
			a.SettlementError = reason
			n++
		}
	}
	return n, nil
}

func (m *MemStore) CreateAttempt(_ context.Context, attempt *auctionmodel.SettlementAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.ID == attempt.ID {
			return errcode.ErrDuplicateKey.WithMsg("settlement attempt already exists")
		}
	}
	m.attempts = append(m.attempts, *attempt)
	return nil
}

func (m *MemStore) UpdateAttempt(_ context.Context, attempt *auctionmodel.SettlementAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.attempts {
		if m.attempts[i].ID == attempt.ID {
			m.attempts[i] = *attempt
			return nil
		}
	}
	return errcode.ErrInvariant.WithMsg("settlement attempt not found")
}

func (m *MemStore) OpenAttempt(_ context.Context, auctionID, idempotencyKey string) (*auctionmodel.SettlementAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.attempts) - 1; i >= 0; i-- {
		a := m.attempts[i]
		if a.AuctionID == auctionID && a.IdempotencyKey == idempotencyKey && !a.IsTerminal() {
			return &a, nil
		}
	}
	return nil, nil
}

func (m *MemStore) ListAttempts(_ context.Context, auctionID string) ([]auctionmodel.SettlementAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []auctionmodel.SettlementAttempt
	for _, a := range m.attempts {
		if a.AuctionID == auctionID {
			out = append(out, a)
		}
	}
	return out, nil
}
