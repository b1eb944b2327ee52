package service

import (
	"context"
	"errors"
	"time"

	"github.com/potanshop/topup-admin/internal/model"
	"github.com/potanshop/topup-admin/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	recentActivity   = 10
)

type WalletKind string

const (
	AdminWalletKind WalletKind = "admin"
	UserWalletKind  WalletKind = "user"
)

// TopUpFilter narrows TopUps. Zero fields do not filter.
type TopUpFilter struct {
	AdminID string
	UserID  string
	Since   time.Time
	Limit   int
}

// ActivityFilter narrows ActivityLogs. Zero fields do not filter.
type ActivityFilter struct {
	AdminID string
	Type    model.ActivityType
	Since   time.Time
	Limit   int
}

// UserFilter narrows Users.
type UserFilter struct {
	Since time.Time
	Limit int
}

// OrderFilter narrows Orders. Zero fields do not filter.
type OrderFilter struct {
	UserID string
	Status model.OrderStatus
	Since  time.Time
	Limit  int
}

// Summary is the dashboard headline numbers.
type Summary struct {
	TotalUsers     int64               `json:"total_users"`
	TotalOrders    int64               `json:"total_orders"`
	TotalSales     decimal.Decimal     `json:"total_sales"`
	FailedOrders   int64               `json:"failed_orders"`
	PendingOrders  int64               `json:"pending_orders"`
	TopUpCount     int64               `json:"top_up_count"`
	TotalTopUps    decimal.Decimal     `json:"total_top_ups"`
	RecentActivity []model.ActivityLog `json:"recent_activity"`
}

// QueryService serves the read side of the dashboard.
type QueryService struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
}

func NewQueryService(r repo.RepositoryInterface, logger *zap.SugaredLogger) *QueryService {
	return &QueryService{repo: r, log: logger}
}

func (s *QueryService) AdminWallet(ctx context.Context, id string) (*model.AdminWallet, error) {
	a, err := s.repo.GetAdmin(ctx, s.repo.DB(ctx), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAdminNotFound
		}
		return nil, persistErr("load admin", err)
	}
	return a, nil
}

func (s *QueryService) UserWallet(ctx context.Context, id string) (*model.UserWallet, error) {
	u, err := s.repo.GetUser(ctx, s.repo.DB(ctx), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, persistErr("load user", err)
	}
	return u, nil
}

// Balance returns the spendable balance of a wallet, from cache when possible.
func (s *QueryService) Balance(ctx context.Context, kind WalletKind, id string) (decimal.Decimal, error) {
	var key string
	switch kind {
	case AdminWalletKind:
		key = repo.AdminBalanceKey(id)
	case UserWalletKind:
		key = repo.UserBalanceKey(id)
	default:
		return decimal.Zero, errors.New("unknown wallet kind")
	}
	if bal, err := s.repo.GetCachedBalance(ctx, key); err == nil {
		return bal, nil
	}

	var bal decimal.Decimal
	if kind == AdminWalletKind {
		a, err := s.AdminWallet(ctx, id)
		if err != nil {
			return decimal.Zero, err
		}
		bal = a.RechargeBalance
	} else {
		u, err := s.UserWallet(ctx, id)
		if err != nil {
			return decimal.Zero, err
		}
		bal = u.Balance
	}
	if err := s.repo.CacheBalance(ctx, key, bal); err != nil {
		s.log.Warnw("cache balance", "key", key, "error", err)
	}
	return bal, nil
}

// TopUps lists ledger entries, newest first.
func (s *QueryService) TopUps(ctx context.Context, f TopUpFilter) ([]model.TopUpRecord, error) {
	q := s.repo.DB(ctx).Model(&model.TopUpRecord{})
	if f.AdminID != "" {
		q = q.Where("admin_id = ?", f.AdminID)
	}
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}
	var out []model.TopUpRecord
	if err := q.Order("created_at desc").Limit(clampLimit(f.Limit)).Find(&out).Error; err != nil {
		return nil, persistErr("list top-ups", err)
	}
	return out, nil
}

// ActivityLogs lists audit entries, newest first.
func (s *QueryService) ActivityLogs(ctx context.Context, f ActivityFilter) ([]model.ActivityLog, error) {
	q := s.repo.DB(ctx).Model(&model.ActivityLog{})
	if f.AdminID != "" {
		q = q.Where("admin_id = ?", f.AdminID)
	}
	if f.Type != "" {
		q = q.Where("activity_type = ?", f.Type)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}
	var out []model.ActivityLog
	if err := q.Order("created_at desc").Limit(clampLimit(f.Limit)).Find(&out).Error; err != nil {
		return nil, persistErr("list activity logs", err)
	}
	return out, nil
}

// Users lists customer wallets, newest first.
func (s *QueryService) Users(ctx context.Context, f UserFilter) ([]model.UserWallet, error) {
	q := s.repo.DB(ctx).Model(&model.UserWallet{})
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}
	var out []model.UserWallet
	if err := q.Order("created_at desc").Limit(clampLimit(f.Limit)).Find(&out).Error; err != nil {
		return nil, persistErr("list users", err)
	}
	return out, nil
}

// Orders lists orders, newest first.
func (s *QueryService) Orders(ctx context.Context, f OrderFilter) ([]model.Order, error) {
	q := s.repo.DB(ctx).Model(&model.Order{})
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}
	var out []model.Order
	if err := q.Order("created_at desc").Limit(clampLimit(f.Limit)).Find(&out).Error; err != nil {
		return nil, persistErr("list orders", err)
	}
	return out, nil
}

func (s *QueryService) Order(ctx context.Context, id string) (*model.Order, error) {
	var o model.Order
	if err := s.repo.DB(ctx).Where("id = ?", id).First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, persistErr("load order", err)
	}
	return &o, nil
}

// Summary aggregates users, orders, top-ups and the latest activity.
func (s *QueryService) Summary(ctx context.Context) (*Summary, error) {
	db := s.repo.DB(ctx)
	var sum Summary

	if err := db.Model(&model.UserWallet{}).Count(&sum.TotalUsers).Error; err != nil {
		return nil, persistErr("count users", err)
	}

	var byStatus []struct {
		Status model.OrderStatus
		N      int64
		Total  decimal.Decimal
	}
	if err := db.Model(&model.Order{}).
		Select("status, count(*) AS n, coalesce(sum(amount), 0) AS total").
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return nil, persistErr("aggregate orders", err)
	}
	sum.TotalSales = decimal.Zero
	for _, row := range byStatus {
		sum.TotalOrders += row.N
		switch row.Status {
		case model.OrderApproved:
			sum.TotalSales = row.Total
		case model.OrderFailed:
			sum.FailedOrders = row.N
		case model.OrderPending:
			sum.PendingOrders = row.N
		}
	}

	var topUps struct {
		N     int64
		Total decimal.Decimal
	}
	if err := db.Model(&model.TopUpRecord{}).
		Select("count(*) AS n, coalesce(sum(amount), 0) AS total").
		Scan(&topUps).Error; err != nil {
		return nil, persistErr("aggregate top-ups", err)
	}
	sum.TopUpCount, sum.TotalTopUps = topUps.N, topUps.Total

	if err := db.Order("created_at desc").Limit(recentActivity).Find(&sum.RecentActivity).Error; err != nil {
		return nil, persistErr("recent activity", err)
	}
	return &sum, nil
}

func clampLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}
