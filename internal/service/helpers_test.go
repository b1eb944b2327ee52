package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/potanshop/topup-admin/internal/config"
	"github.com/potanshop/topup-admin/internal/model"
	"github.com/potanshop/topup-admin/internal/repo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testTransferCfg = config.TransferConfig{
	MaxRetries:   3,
	RetryBackoff: time.Millisecond,
	ProbeTimeout: time.Second,
}

func newTestRepo(t *testing.T) (*repo.Repository, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repo.Migrate(db))
	return repo.NewRepository(db, nil, nil, time.Minute, zap.NewNop().Sugar()), db
}

// seed creates admin A1 {recharge 100} and user U1 {balance 50, total 500}.
func seed(t *testing.T, db *gorm.DB) {
	t.Helper()
	require.NoError(t, db.Create(&model.AdminWallet{
		ID: "A1", Name: "Alice", RechargeBalance: dec("100"), TotalBalance: dec("1000"),
	}).Error)
	require.NoError(t, db.Create(&model.UserWallet{
		ID: "U1", CustomerID: "C-001", Name: "Bob", Balance: dec("50"), TotalBalance: dec("500"),
	}).Error)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type snapshot struct {
	Admin      model.AdminWallet
	User       model.UserWallet
	TopUps     int64
	Activities int64
	Events     int64
}

func takeSnapshot(t *testing.T, db *gorm.DB) snapshot {
	t.Helper()
	var s snapshot
	require.NoError(t, db.First(&s.Admin, "id = ?", "A1").Error)
	require.NoError(t, db.First(&s.User, "id = ?", "U1").Error)
	require.NoError(t, db.Model(&model.TopUpRecord{}).Count(&s.TopUps).Error)
	require.NoError(t, db.Model(&model.ActivityLog{}).Count(&s.Activities).Error)
	require.NoError(t, db.Model(&model.OutboxEvent{}).Count(&s.Events).Error)
	return s
}

func requireUnchanged(t *testing.T, before, after snapshot) {
	t.Helper()
	require.True(t, before.Admin.RechargeBalance.Equal(after.Admin.RechargeBalance), "admin recharge changed")
	require.True(t, before.Admin.TotalBalance.Equal(after.Admin.TotalBalance), "admin total changed")
	require.Equal(t, before.Admin.Version, after.Admin.Version)
	require.True(t, before.User.Balance.Equal(after.User.Balance), "user balance changed")
	require.True(t, before.User.TotalBalance.Equal(after.User.TotalBalance), "user total changed")
	require.Equal(t, before.User.Version, after.User.Version)
	require.Equal(t, before.TopUps, after.TopUps)
	require.Equal(t, before.Activities, after.Activities)
	require.Equal(t, before.Events, after.Events)
}

var (
	errRollback  = errors.New("forced rollback")
	errCacheMiss = errors.New("cache miss")
)

// faultyRepo wraps the real repository and injects store failures.
type faultyRepo struct {
	*repo.Repository

	conflicts      atomic.Int32 // UpdateAdminRecharge reports this many version conflicts first
	createTopUpErr error
	commitErr      error // returned after the transaction body succeeded
	rollbackCommit bool  // with commitErr: discard the work instead of committing it
	getTopUpErr    error

	// beforeAdminUpdate runs once, inside the transaction, between the admin
	// read and its version-checked update.
	beforeAdminUpdate func(tx *gorm.DB)
	adminUpdateHooked atomic.Bool

	// parkInvalidate, when set, is closed by the first InvalidateBalance
	// call, which then waits for resumeInvalidate.
	parkInvalidate   chan struct{}
	resumeInvalidate chan struct{}
	parked           atomic.Bool

	mu      sync.Mutex
	flagged []string
	calls   []string
	cache   map[string]decimal.Decimal
}

func (f *faultyRepo) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *faultyRepo) GetAdminForUpdate(ctx context.Context, tx *gorm.DB, id string) (*model.AdminWallet, error) {
	f.record("GetAdminForUpdate")
	return f.Repository.GetAdminForUpdate(ctx, tx, id)
}

func (f *faultyRepo) TopUpExists(ctx context.Context, tx *gorm.DB, adminID, idemKey string) (bool, *model.TopUpRecord, error) {
	f.record("TopUpExists")
	return f.Repository.TopUpExists(ctx, tx, adminID, idemKey)
}

func (f *faultyRepo) CacheBalance(_ context.Context, key string, bal decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cache == nil {
		f.cache = map[string]decimal.Decimal{}
	}
	f.cache[key] = bal
	return nil
}

func (f *faultyRepo) GetCachedBalance(_ context.Context, key string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bal, ok := f.cache[key]
	if !ok {
		return decimal.Zero, errCacheMiss
	}
	return bal, nil
}

func (f *faultyRepo) InvalidateBalance(_ context.Context, keys ...string) error {
	if f.parkInvalidate != nil && f.parked.CompareAndSwap(false, true) {
		close(f.parkInvalidate)
		<-f.resumeInvalidate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.cache, k)
	}
	return nil
}

func (f *faultyRepo) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if f.commitErr == nil {
		return f.Repository.Transaction(ctx, fn)
	}
	if f.rollbackCommit {
		err := f.Repository.Transaction(ctx, func(tx *gorm.DB) error {
			if err := fn(tx); err != nil {
				return err
			}
			return errRollback
		})
		if errors.Is(err, errRollback) {
			return f.commitErr
		}
		return err
	}
	if err := f.Repository.Transaction(ctx, fn); err != nil {
		return err
	}
	return f.commitErr
}

func (f *faultyRepo) UpdateAdminRecharge(ctx context.Context, tx *gorm.DB, id string, v decimal.Decimal, ver uint64) error {
	if f.conflicts.Load() > 0 {
		f.conflicts.Add(-1)
		return repo.ErrVersionConflict
	}
	if f.beforeAdminUpdate != nil && f.adminUpdateHooked.CompareAndSwap(false, true) {
		f.beforeAdminUpdate(tx)
	}
	return f.Repository.UpdateAdminRecharge(ctx, tx, id, v, ver)
}

func (f *faultyRepo) CreateTopUp(ctx context.Context, tx *gorm.DB, rec *model.TopUpRecord) error {
	if f.createTopUpErr != nil {
		return f.createTopUpErr
	}
	return f.Repository.CreateTopUp(ctx, tx, rec)
}

func (f *faultyRepo) GetTopUp(ctx context.Context, tx *gorm.DB, id string) (*model.TopUpRecord, error) {
	if f.getTopUpErr != nil {
		return nil, f.getTopUpErr
	}
	return f.Repository.GetTopUp(ctx, tx, id)
}

func (f *faultyRepo) FlagReconciliation(ctx context.Context, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flagged = append(f.flagged, payload)
	return nil
}
