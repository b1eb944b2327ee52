package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TopUpRecord is the ledger entry of one completed admin -> user transfer.
// Rows are only ever inserted.
type TopUpRecord struct {
	ID                 string          `gorm:"primaryKey;size:36" json:"id"`
	AdminID            string          `gorm:"size:64;not null;index;uniqueIndex:idx_top_ups_admin_idem,priority:1" json:"admin_id"`
	AdminName          string          `gorm:"size:128" json:"admin_name"`
	UserID             string          `gorm:"size:64;not null;index" json:"user_id"`
	UserName           string          `gorm:"size:128" json:"user_name"`
	Amount             decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"amount"`
	AdminBalanceBefore decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"admin_balance_before"`
	AdminBalanceAfter  decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"admin_balance_after"`
	Remark             string          `gorm:"type:text" json:"remark,omitempty"`
	IdempotencyKey     *string         `gorm:"size:64;uniqueIndex:idx_top_ups_admin_idem,priority:2" json:"idempotency_key,omitempty"`
	CreatedAt          time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (TopUpRecord) TableName() string { return "top_ups" }
