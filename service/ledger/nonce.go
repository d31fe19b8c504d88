package ledger

import (
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
)

// NonceTracker 记录每个出价人最后使用的 nonce, 跨拍卖共享
type NonceTracker struct {
	last *xsync.MapOf[string, uint64]
}

func NewNonceTracker() *NonceTracker {
	return &NonceTracker{last: xsync.NewMapOf[string, uint64]()}
}

func nonceKey(bidder string) string {
	return strings.ToLower(bidder)
}

// Last 返回出价人最后使用的 nonce, 未加载时 ok 为 false
func (n *NonceTracker) Last(bidder string) (nonce uint64, ok bool) {
	return n.last.Load(nonceKey(bidder))
}

// Seed 用存储中的值初始化, 只会把 nonce 往大调
func (n *NonceTracker) Seed(bidder string, nonce uint64) uint64 {
	actual, _ := n.last.Compute(nonceKey(bidder), func(old uint64, loaded bool) (uint64, bool) {
		if loaded && old >= nonce {
			return old, false
		}
		return nonce, false
	})
	return actual
}

// Advance 比较并交换: 仅当当前值等于 prev 且 next > prev 时更新为 next
func (n *NonceTracker) Advance(bidder string, prev, next uint64) bool {
	if next <= prev {
		return false
	}
	swapped := false
	n.last.Compute(nonceKey(bidder), func(old uint64, loaded bool) (uint64, bool) {
		if old != prev {
			return old, !loaded
		}
		swapped = true
		return next, false
	})
	return swapped
}

// Rollback 持久化失败时撤销 Advance, 期间已被其他出价推进则不动
func (n *NonceTracker) Rollback(bidder string, next, prev uint64) {
	n.last.Compute(nonceKey(bidder), func(old uint64, loaded bool) (uint64, bool) {
		if loaded && old == next {
			return prev, false
		}
		return old, !loaded
	})
}
