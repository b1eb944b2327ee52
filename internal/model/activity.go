package model

import "time"

type ActivityType string

const (
	ActivityTopUp             ActivityType = "top-up"
	ActivityRefund            ActivityType = "refund"
	ActivityOrderStatusChange ActivityType = "order-status-change"
	ActivityLogin             ActivityType = "login"
)

// Valid reports whether t is one of the known activity types.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityTopUp, ActivityRefund, ActivityOrderStatusChange, ActivityLogin:
		return true
	}
	return false
}

// ActivityLog is an append-only audit entry of an admin action.
type ActivityLog struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	AdminID      string         `gorm:"size:64;not null;index" json:"admin_id"`
	AdminName    string         `gorm:"size:128" json:"admin_name"`
	ActivityType ActivityType   `gorm:"size:32;not null;index" json:"activity_type"`
	Description  string         `gorm:"type:text;not null" json:"description"`
	Metadata     map[string]any `gorm:"type:jsonb;serializer:json" json:"metadata"`
	CreatedAt    time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}

func (ActivityLog) TableName() string { return "activity_logs" }
