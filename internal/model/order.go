package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending  OrderStatus = "pending"
	OrderApproved OrderStatus = "approved"
	OrderFailed   OrderStatus = "failed"
	OrderRefunded OrderStatus = "refunded"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderApproved, OrderFailed, OrderRefunded:
		return true
	}
	return false
}

type Order struct {
	ID              string          `gorm:"primaryKey;size:64" json:"id"`
	UserID          string          `gorm:"size:64;not null;index" json:"user_id"`
	InternalOrderID string          `gorm:"size:64" json:"internal_order_id"`
	SupplierOrderID string          `gorm:"size:64" json:"supplier_order_id"`
	GameID          string          `gorm:"size:64" json:"game_id"`
	ServerID        string          `gorm:"size:64" json:"server_id"`
	Amount          decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"amount"`
	Status          OrderStatus     `gorm:"size:16;not null;index" json:"status"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }
