package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AdminWallet is the recharge pool an operator draws top-ups from.
type AdminWallet struct {
	ID              string          `gorm:"primaryKey;size:64" json:"id"`
	Name            string          `gorm:"size:128" json:"name"`
	Email           string          `gorm:"size:255" json:"email"`
	RechargeBalance decimal.Decimal `gorm:"column:recharge;type:numeric(20,8);not null;default:0" json:"recharge_balance"`
	// TotalBalance is informational only, transfers never check it.
	TotalBalance decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"total_balance"`
	Version      uint64          `gorm:"not null;default:0" json:"-"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AdminWallet) TableName() string { return "admins" }

// UserWallet is a customer's spendable balance plus the lifetime credited total.
type UserWallet struct {
	ID           string          `gorm:"primaryKey;size:64" json:"id"`
	CustomerID   string          `gorm:"size:64;index" json:"customer_id"`
	Name         string          `gorm:"size:128" json:"name"`
	Email        string          `gorm:"size:255" json:"email"`
	Phone        string          `gorm:"size:32" json:"phone"`
	Balance      decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"balance"`
	TotalBalance decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"total_balance"`
	Version      uint64          `gorm:"not null;default:0" json:"-"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UserWallet) TableName() string { return "users" }
