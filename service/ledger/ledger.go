package ledger

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/shopspring/decimal"

	"github.com/ProjectsTask/EasyAuction/errcode"
	"github.com/ProjectsTask/EasyAuction/stores/gdb/auctionmodel"
)

// ChannelState 某个拍卖在内存中的出价投影
type ChannelState struct {
	ChannelID     string             `json:"channel_id"`
	AuctionID     string             `json:"auction_id"`
	Bids          []auctionmodel.Bid `json:"bids"`
	HighestBid    decimal.Decimal    `json:"highest_bid"`
	HighestBidder string             `json:"highest_bidder"`
	Turn          uint64             `json:"turn"`
}

// HasBids 是否已经有被接受的出价
func (s *ChannelState) HasBids() bool {
	return s.Turn > 0
}

// Channel 单个拍卖的工作状态, 所有读写都在 mu 保护下进行
type Channel struct {
	mu        sync.Mutex
	state     ChannelState
	leader    int // 当前最高出价在 Bids 中的下标, -1 表示没有出价
	processed map[string]struct{}
}

func newChannel(channelID, auctionID string) *Channel {
	return &Channel{
		state: ChannelState{
			ChannelID:     channelID,
			AuctionID:     auctionID,
			HighestBid:    decimal.Zero,
			HighestBidder: auctionmodel.ZeroAddress,
		},
		leader:    -1,
		processed: make(map[string]struct{}),
	}
}

// AuctionID 创建后不变, 无需持锁
func (c *Channel) AuctionID() string {
	return c.state.AuctionID
}

// State 返回状态快照, 调用方必须持有锁
func (c *Channel) State() ChannelState {
	snapshot := c.state
	snapshot.Bids = append([]auctionmodel.Bid(nil), c.state.Bids...)
	return snapshot
}

// Processed 判断出价哈希是否已经被接受, 调用方必须持有锁
func (c *Channel) Processed(bidHash string) bool {
	_, ok := c.processed[strings.ToLower(bidHash)]
	return ok
}

// ApplyBid 追加出价并更新最高价与轮次, 调用方必须持有锁且已完成校验
func (c *Channel) ApplyBid(bid auctionmodel.Bid) ChannelState {
	c.state.Bids = append(c.state.Bids, bid)
	idx := len(c.state.Bids) - 1
	if c.leader < 0 || bid.Outranks(&c.state.Bids[c.leader]) {
		c.leader = idx
		c.state.HighestBid = bid.Amount
		c.state.HighestBidder = bid.Bidder
	}
	c.state.Turn++
	c.processed[strings.ToLower(bid.BidHash)] = struct{}{}
	return c.State()
}

// Ledger 以通道 ID 为键的内存出价账本
// 只是加速缓存, 持久化由 dao 负责, 可以随时丢弃并从存储重建
type Ledger struct {
	channels *xsync.MapOf[string, *Channel]
}

func New() *Ledger {
	return &Ledger{channels: xsync.NewMapOf[string, *Channel]()}
}

// CreateChannel 为拍卖创建一个空通道
// 同一拍卖重复调用会得到相互独立的通道, 去重由调用方负责
func (l *Ledger) CreateChannel(auctionID string) string {
	id := uuid.NewString()
	l.channels.Store(id, newChannel(id, auctionID))
	return id
}

// Restore 用持久化的出价重建通道, bids 按接受顺序排列
func (l *Ledger) Restore(auctionID string, bids []auctionmodel.Bid) string {
	id := uuid.NewString()
	c := newChannel(id, auctionID)
	for _, b := range bids {
		c.ApplyBid(b)
	}
	l.channels.Store(id, c)
	return id
}

// GetState 读取通道状态快照
func (l *Ledger) GetState(channelID string) (*ChannelState, error) {
	c, ok := l.channels.Load(channelID)
	if !ok {
		return nil, errcode.ErrChannelNotFound
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.State()
	return &s, nil
}

// ApplyBid 在通道临界区内原子地应用一笔已通过校验的出价
func (l *Ledger) ApplyBid(channelID string, bid auctionmodel.Bid) (*ChannelState, error) {
	var out ChannelState
	err := l.Update(channelID, func(c *Channel) error {
		out = c.ApplyBid(bid)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Update 在通道的临界区内执行 fn, 校验-持久化-应用 必须整体在这里完成
func (l *Ledger) Update(channelID string, fn func(c *Channel) error) error {
	c, ok := l.channels.Load(channelID)
	if !ok {
		return errcode.ErrChannelNotFound
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(c)
}

// Evict 丢弃通道 (结算完成或拍卖取消后)
func (l *Ledger) Evict(channelID string) {
	l.channels.Delete(channelID)
}

func (l *Ledger) Size() int {
	return l.channels.Size()
}
