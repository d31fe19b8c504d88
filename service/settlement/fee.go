package settlement

import (
	"github.com/shopspring/decimal"
)

// MaxFeeBps 平台费率上限 (100%)
const MaxFeeBps = 10000

var bpsBase = decimal.NewFromInt(MaxFeeBps)

// SplitProceeds 按万分比拆分成交额, 平台费向下取整, 余数归卖家
// 两部分之和恒等于 amount
func SplitProceeds(amount decimal.Decimal, feeBps int64) (sellerProceeds, platformFee decimal.Decimal) {
	if feeBps <= 0 || !amount.IsPositive() {
		return amount, decimal.Zero
	}
	if feeBps > MaxFeeBps {
		feeBps = MaxFeeBps
	}
	platformFee = amount.Mul(decimal.NewFromInt(feeBps)).Div(bpsBase).Floor()
	return amount.Sub(platformFee), platformFee
}
