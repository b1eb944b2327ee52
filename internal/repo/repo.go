package repo

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/potanshop/topup-admin/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrVersionConflict is returned by conditional updates when the row moved
// since it was read.
var ErrVersionConflict = errors.New("optimistic lock conflict")

// RepositoryInterface restricts Repo methods so services can be tested
// against wrappers that inject failures.
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error

	GetAdmin(ctx context.Context, tx *gorm.DB, id string) (*model.AdminWallet, error)
	GetAdminForUpdate(ctx context.Context, tx *gorm.DB, id string) (*model.AdminWallet, error)
	GetUser(ctx context.Context, tx *gorm.DB, id string) (*model.UserWallet, error)
	GetUserForUpdate(ctx context.Context, tx *gorm.DB, id string) (*model.UserWallet, error)
	UpdateAdminRecharge(ctx context.Context, tx *gorm.DB, id string, newRecharge decimal.Decimal, oldVersion uint64) error
	UpdateUserBalance(ctx context.Context, tx *gorm.DB, id string, newBalance, newTotal decimal.Decimal, oldVersion uint64) error

	CreateTopUp(ctx context.Context, tx *gorm.DB, rec *model.TopUpRecord) error
	GetTopUp(ctx context.Context, tx *gorm.DB, id string) (*model.TopUpRecord, error)
	TopUpExists(ctx context.Context, tx *gorm.DB, adminID, idemKey string) (bool, *model.TopUpRecord, error)
	CreateActivityLog(ctx context.Context, tx *gorm.DB, entry *model.ActivityLog) error

	GetOrderForUpdate(ctx context.Context, tx *gorm.DB, id string) (*model.Order, error)
	UpdateOrderStatus(ctx context.Context, tx *gorm.DB, id string, status model.OrderStatus) error

	CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error

	CacheBalance(ctx context.Context, key string, bal decimal.Decimal) error
	GetCachedBalance(ctx context.Context, key string) (decimal.Decimal, error)
	InvalidateBalance(ctx context.Context, keys ...string) error
	FlagReconciliation(ctx context.Context, payload string) error
}

// Repository implements RepositoryInterface. rdb and writer may be nil, in
// which case caching and publishing are disabled.
type Repository struct {
	db       *gorm.DB
	rdb      *redis.Client
	writer   *kafka.Writer
	cacheTTL time.Duration
	log      *zap.SugaredLogger
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, cacheTTL time.Duration, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, writer: w, cacheTTL: cacheTTL, log: logger}
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(model.All()...)
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// Transaction runs fn inside a database transaction. An error from fn rolls
// back; otherwise the error, if any, comes from COMMIT.
func (r *Repository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func (r *Repository) GetAdmin(ctx context.Context, tx *gorm.DB, id string) (*model.AdminWallet, error) {
	var a model.AdminWallet
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAdminForUpdate locks the admin row.
func (r *Repository) GetAdminForUpdate(ctx context.Context, tx *gorm.DB, id string) (*model.AdminWallet, error) {
	var a model.AdminWallet
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repository) GetUser(ctx context.Context, tx *gorm.DB, id string) (*model.UserWallet, error) {
	var u model.UserWallet
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserForUpdate locks the user row.
func (r *Repository) GetUserForUpdate(ctx context.Context, tx *gorm.DB, id string) (*model.UserWallet, error) {
	var u model.UserWallet
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateAdminRecharge with optimistic lock.
func (r *Repository) UpdateAdminRecharge(ctx context.Context, tx *gorm.DB, id string, newRecharge decimal.Decimal, oldVersion uint64) error {
	res := tx.WithContext(ctx).
		Model(&model.AdminWallet{}).
		Where("id = ? AND version = ?", id, oldVersion).
		Updates(map[string]interface{}{
			"recharge":   newRecharge,
			"version":    oldVersion + 1,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// UpdateUserBalance with optimistic lock.
func (r *Repository) UpdateUserBalance(ctx context.Context, tx *gorm.DB, id string, newBalance, newTotal decimal.Decimal, oldVersion uint64) error {
	res := tx.WithContext(ctx).
		Model(&model.UserWallet{}).
		Where("id = ? AND version = ?", id, oldVersion).
		Updates(map[string]interface{}{
			"balance":       newBalance,
			"total_balance": newTotal,
			"version":       oldVersion + 1,
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// CreateTopUp inserts a ledger entry.
func (r *Repository) CreateTopUp(ctx context.Context, tx *gorm.DB, rec *model.TopUpRecord) error {
	return tx.WithContext(ctx).Create(rec).Error
}

func (r *Repository) GetTopUp(ctx context.Context, tx *gorm.DB, id string) (*model.TopUpRecord, error) {
	var rec model.TopUpRecord
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// TopUpExists checks duplicate by idem key.
func (r *Repository) TopUpExists(ctx context.Context, tx *gorm.DB, adminID, idemKey string) (bool, *model.TopUpRecord, error) {
	if idemKey == "" {
		return false, nil, nil
	}
	var rec model.TopUpRecord
	err := tx.WithContext(ctx).Where("admin_id = ? AND idempotency_key = ?", adminID, idemKey).First(&rec).Error
	if err == nil {
		return true, &rec, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil, nil
	}
	return false, nil, err
}

// CreateActivityLog appends an audit entry.
func (r *Repository) CreateActivityLog(ctx context.Context, tx *gorm.DB, entry *model.ActivityLog) error {
	return tx.WithContext(ctx).Create(entry).Error
}

func (r *Repository) GetOrderForUpdate(ctx context.Context, tx *gorm.DB, id string) (*model.Order, error) {
	var o model.Order
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *Repository) UpdateOrderStatus(ctx context.Context, tx *gorm.DB, id string, status model.OrderStatus) error {
	res := tx.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
