package repo

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ReconciliationKey is the Redis list holding transfers whose commit outcome
// could not be established.
const ReconciliationKey = "reconcile:topups"

var errCacheDisabled = errors.New("redis cache not configured")

// AdminBalanceKey and UserBalanceKey name the cached spendable balances.
func AdminBalanceKey(id string) string { return "balance:admin:" + id }
func UserBalanceKey(id string) string  { return "balance:user:" + id }

// CacheBalance writes Redis.
func (r *Repository) CacheBalance(ctx context.Context, key string, bal decimal.Decimal) error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Set(ctx, key, bal.String(), r.cacheTTL).Err()
}

// InvalidateBalance drops cached balances. Writers invalidate instead of
// setting, so only readers fill the cache, and they fill it from the row.
func (r *Repository) InvalidateBalance(ctx context.Context, keys ...string) error {
	if r.rdb == nil || len(keys) == 0 {
		return nil
	}
	return r.rdb.Del(ctx, keys...).Err()
}

// GetCachedBalance reads Redis.
func (r *Repository) GetCachedBalance(ctx context.Context, key string) (decimal.Decimal, error) {
	if r.rdb == nil {
		return decimal.Zero, errCacheDisabled
	}
	str, err := r.rdb.Get(ctx, key).Result()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(str)
}

// FlagReconciliation pushes a transfer snapshot for manual follow-up.
func (r *Repository) FlagReconciliation(ctx context.Context, payload string) error {
	if r.rdb == nil {
		return errCacheDisabled
	}
	return r.rdb.RPush(ctx, ReconciliationKey, payload).Err()
}
