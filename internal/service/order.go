package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/potanshop/topup-admin/internal/model"
	"github.com/potanshop/topup-admin/internal/repo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OrderService changes order status on behalf of an admin and audits it.
type OrderService struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
}

func NewOrderService(r repo.RepositoryInterface, logger *zap.SugaredLogger) *OrderService {
	return &OrderService{repo: r, log: logger}
}

// UpdateStatus sets the order status and appends a refund or
// order-status-change activity entry in the same transaction.
func (s *OrderService) UpdateStatus(ctx context.Context, adminID, orderID string, status model.OrderStatus) (*model.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOrderStatus, status)
	}

	var order *model.Order
	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		admin, err := s.repo.GetAdmin(ctx, tx, adminID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAdminNotFound
			}
			return persistErr("load admin", err)
		}
		o, err := s.repo.GetOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return persistErr("load order", err)
		}
		previous := o.Status

		if err := s.repo.UpdateOrderStatus(ctx, tx, o.ID, status); err != nil {
			return persistErr("update order status", err)
		}

		activity := model.ActivityOrderStatusChange
		if status == model.OrderRefunded {
			activity = model.ActivityRefund
		}
		entry := &model.ActivityLog{
			ID:           uuid.NewString(),
			AdminID:      admin.ID,
			AdminName:    admin.Name,
			ActivityType: activity,
			Description:  fmt.Sprintf("Updated order %s status to %s", o.ID, status),
			Metadata:     map[string]any{"orderId": o.ID, "newStatus": string(status)},
		}
		if err := s.repo.CreateActivityLog(ctx, tx, entry); err != nil {
			return persistErr("insert activity log", err)
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"order_id": o.ID, "admin_id": admin.ID, "from": previous, "to": status,
		})
		evt := &model.OutboxEvent{
			Aggregate: "Order", AggregateID: o.ID, EventType: model.EventOrderStatusChanged, Payload: string(payload),
		}
		if err := s.repo.CreateOutboxEvent(ctx, tx, evt); err != nil {
			return persistErr("insert outbox event", err)
		}

		o.Status = status
		order = o
		return nil
	})
	if err != nil {
		if IsPrecondition(err) || errors.Is(err, ErrPersistence) {
			return nil, err
		}
		return nil, persistErr("order status transaction", err)
	}
	s.log.Infow("order status changed", "order_id", order.ID, "admin_id", adminID, "status", status)
	return order, nil
}
