package auctionmodel

import (
	"github.com/shopspring/decimal"
)

// 结算尝试状态
// submitting 表示外部提交已发出但还没拿到交易引用, 进程中断后结果未知
const (
	AttemptStatusSubmitting = "submitting"
	AttemptStatusPending    = "pending"
	AttemptStatusSuccess    = "success"
	AttemptStatusFailed     = "failed"
)

// OpenAttemptStatuses 尚未终结的尝试状态
var OpenAttemptStatuses = []string{AttemptStatusSubmitting, AttemptStatusPending}

// SettlementAttempt 一次结算转账的审计记录, 永不删除
type SettlementAttempt struct {
	ID             string          `gorm:"column:id;primaryKey;size:36" json:"id"`
	AuctionID      string          `gorm:"column:auction_id;size:64;index" json:"auction_id"`
	IdempotencyKey string          `gorm:"column:idempotency_key;size:160;index" json:"idempotency_key"`
	Winner         string          `gorm:"column:winner;size:42" json:"winner"`
	Amount         decimal.Decimal `gorm:"column:amount;type:decimal(65,0)" json:"amount"`
	SellerProceeds decimal.Decimal `gorm:"column:seller_proceeds;type:decimal(65,0)" json:"seller_proceeds"`
	PlatformFee    decimal.Decimal `gorm:"column:platform_fee;type:decimal(65,0)" json:"platform_fee"`
	FeeUsed        decimal.Decimal `gorm:"column:fee_used;type:decimal(65,0)" json:"fee_used"`
	TxHash         string          `gorm:"column:tx_hash;size:66" json:"tx_hash"`
	Status         string          `gorm:"column:status;size:16" json:"status"`
	Error          string          `gorm:"column:error;size:1024" json:"error"`
	AttemptedAt    int64           `gorm:"column:attempted_at" json:"attempted_at"`
	CompletedAt    int64           `gorm:"column:completed_at" json:"completed_at"`
}

func SettlementAttemptTableName() string {
	return "ob_settlement_attempt"
}

func (SettlementAttempt) TableName() string {
	return SettlementAttemptTableName()
}

// IsTerminal 成功或失败后记录不再变化
func (a *SettlementAttempt) IsTerminal() bool {
	return a.Status == AttemptStatusSuccess || a.Status == AttemptStatusFailed
}
