package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/potanshop/topup-admin/internal/config"
	"github.com/potanshop/topup-admin/internal/model"
	"github.com/potanshop/topup-admin/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TransferRequest is one admin -> user top-up. Remark and IdempotencyKey are
// optional.
type TransferRequest struct {
	AdminID        string
	UserID         string
	Amount         decimal.Decimal
	Remark         string
	IdempotencyKey string
}

// TransferService moves funds from an admin recharge wallet into a user
// wallet and writes the matching ledger and audit entries.
type TransferService struct {
	repo repo.RepositoryInterface
	cfg  config.TransferConfig
	log  *zap.SugaredLogger
}

// NewTransferService returns TransferService.
func NewTransferService(r repo.RepositoryInterface, cfg config.TransferConfig, logger *zap.SugaredLogger) *TransferService {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}
	return &TransferService{repo: r, cfg: cfg, log: logger}
}

// Transfer debits the admin's recharge balance and credits the user's balance
// and lifetime total by req.Amount, recording one TopUpRecord and one top-up
// ActivityLog, all in a single transaction. Version conflicts on either
// wallet row restart the whole unit, up to the configured retry count.
func (s *TransferService) Transfer(ctx context.Context, req TransferRequest) (*model.TopUpRecord, error) {
	if err := ValidateAmount(req.Amount); err != nil {
		return nil, err
	}

	// the id is fixed up front so a lost COMMIT acknowledgement can be probed
	recordID := uuid.NewString()

	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, persistErr("retry top-up", ctx.Err())
			case <-time.After(s.cfg.RetryBackoff * time.Duration(attempt)):
			}
		}
		rec, err := s.attempt(ctx, req, recordID)
		if !errors.Is(err, repo.ErrVersionConflict) {
			return rec, err
		}
		s.log.Warnw("top-up version conflict",
			"admin_id", req.AdminID, "user_id", req.UserID, "attempt", attempt+1)
		lastErr = err
	}
	return nil, persistErr("top-up retries exhausted", lastErr)
}

func (s *TransferService) attempt(ctx context.Context, req TransferRequest, recordID string) (*model.TopUpRecord, error) {
	var (
		rec      *model.TopUpRecord
		replayed bool
		bodyDone bool
	)
	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		bodyDone, replayed = false, false

		// admin before user, always, so concurrent top-ups cannot deadlock
		admin, err := s.repo.GetAdminForUpdate(ctx, tx, req.AdminID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAdminNotFound
			}
			return persistErr("load admin", err)
		}

		// keys are scoped per admin, so the admin row lock serialises them
		existed, prev, err := s.repo.TopUpExists(ctx, tx, req.AdminID, req.IdempotencyKey)
		if err != nil {
			return persistErr("check idempotency key", err)
		}
		if existed {
			rec, replayed, bodyDone = prev, true, true
			return nil
		}

		user, err := s.repo.GetUserForUpdate(ctx, tx, req.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return persistErr("load user", err)
		}
		if admin.RechargeBalance.LessThan(req.Amount) {
			return ErrInsufficientAdminBalance
		}

		before := admin.RechargeBalance
		after := before.Sub(req.Amount)
		newUserBal := user.Balance.Add(req.Amount)
		newUserTotal := user.TotalBalance.Add(req.Amount)

		if err := s.repo.UpdateAdminRecharge(ctx, tx, admin.ID, after, admin.Version); err != nil {
			if errors.Is(err, repo.ErrVersionConflict) {
				return err
			}
			return persistErr("debit admin", err)
		}
		if err := s.repo.UpdateUserBalance(ctx, tx, user.ID, newUserBal, newUserTotal, user.Version); err != nil {
			if errors.Is(err, repo.ErrVersionConflict) {
				return err
			}
			return persistErr("credit user", err)
		}

		rec = &model.TopUpRecord{
			ID:                 recordID,
			AdminID:            admin.ID,
			AdminName:          admin.Name,
			UserID:             user.ID,
			UserName:           user.Name,
			Amount:             req.Amount,
			AdminBalanceBefore: before,
			AdminBalanceAfter:  after,
			Remark:             req.Remark,
		}
		if req.IdempotencyKey != "" {
			key := req.IdempotencyKey
			rec.IdempotencyKey = &key
		}
		if err := s.repo.CreateTopUp(ctx, tx, rec); err != nil {
			return persistErr("insert top-up", err)
		}

		entry := &model.ActivityLog{
			ID:           uuid.NewString(),
			AdminID:      admin.ID,
			AdminName:    admin.Name,
			ActivityType: model.ActivityTopUp,
			Description:  fmt.Sprintf("Topped up user %s balance by %s", user.ID, req.Amount),
			Metadata: map[string]any{
				"userId": user.ID,
				"amount": req.Amount.String(),
				"remark": req.Remark,
			},
		}
		if err := s.repo.CreateActivityLog(ctx, tx, entry); err != nil {
			return persistErr("insert activity log", err)
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"top_up_id":           rec.ID,
			"admin_id":            admin.ID,
			"user_id":             user.ID,
			"amount":              req.Amount,
			"admin_balance_after": after,
			"user_balance":        newUserBal,
		})
		evt := &model.OutboxEvent{
			Aggregate: "TopUp", AggregateID: rec.ID, EventType: model.EventTopUpCompleted, Payload: string(payload),
		}
		if err := s.repo.CreateOutboxEvent(ctx, tx, evt); err != nil {
			return persistErr("insert outbox event", err)
		}

		bodyDone = true
		return nil
	})

	switch {
	case err == nil:
		if replayed {
			s.log.Infow("top-up replayed by idempotency key",
				"top_up_id", rec.ID, "admin_id", rec.AdminID, "idempotency_key", req.IdempotencyKey)
			return rec, nil
		}
		s.invalidateCache(ctx, rec.AdminID, rec.UserID)
		s.log.Infow("top-up completed",
			"top_up_id", rec.ID, "admin_id", rec.AdminID, "user_id", rec.UserID,
			"amount", rec.Amount.String(), "admin_balance_after", rec.AdminBalanceAfter.String())
		return rec, nil
	case bodyDone:
		return s.resolveCommit(ctx, rec, err)
	case IsPrecondition(err), errors.Is(err, ErrPersistence), errors.Is(err, repo.ErrVersionConflict):
		return nil, err
	default:
		return nil, persistErr("top-up transaction", err)
	}
}

// resolveCommit decides the outcome of a transaction whose body succeeded but
// whose COMMIT returned an error. The record id is looked up on a fresh
// context: present means the commit landed, absent means it rolled back.
func (s *TransferService) resolveCommit(ctx context.Context, rec *model.TopUpRecord, commitErr error) (*model.TopUpRecord, error) {
	probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ProbeTimeout)
	defer cancel()

	got, err := s.repo.GetTopUp(probeCtx, s.repo.DB(probeCtx), rec.ID)
	switch {
	case err == nil:
		s.log.Warnw("commit reported an error but the top-up is persisted",
			"top_up_id", got.ID, "commit_error", commitErr)
		s.invalidateCache(probeCtx, got.AdminID, got.UserID)
		return got, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, persistErr("commit top-up", commitErr)
	}

	snapshot, _ := json.Marshal(map[string]interface{}{
		"top_up_id":            rec.ID,
		"admin_id":             rec.AdminID,
		"user_id":              rec.UserID,
		"amount":               rec.Amount,
		"admin_balance_before": rec.AdminBalanceBefore,
		"admin_balance_after":  rec.AdminBalanceAfter,
		"commit_error":         commitErr.Error(),
		"probe_error":          err.Error(),
		"flagged_at":           time.Now().UTC(),
	})
	s.log.Errorw("top-up outcome unknown, reconciliation required",
		"top_up_id", rec.ID, "admin_id", rec.AdminID, "user_id", rec.UserID,
		"amount", rec.Amount.String(), "commit_error", commitErr, "probe_error", err)
	if ferr := s.repo.FlagReconciliation(probeCtx, string(snapshot)); ferr != nil {
		s.log.Errorw("failed to queue reconciliation", "top_up_id", rec.ID, "error", ferr, "snapshot", string(snapshot))
	}
	return nil, fmt.Errorf("%w: top-up %s: commit: %v, probe: %v", ErrReconciliationRequired, rec.ID, commitErr, err)
}

// invalidateCache drops both cached balances after a commit. Readers refill
// them from the rows, so an older top-up finishing late cannot overwrite a
// newer balance.
func (s *TransferService) invalidateCache(ctx context.Context, adminID, userID string) {
	if err := s.repo.InvalidateBalance(ctx, repo.AdminBalanceKey(adminID), repo.UserBalanceKey(userID)); err != nil {
		s.log.Warnw("invalidate cached balances", "admin_id", adminID, "user_id", userID, "error", err)
	}
}
