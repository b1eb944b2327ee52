package outbox

import (
	"context"
	"time"

	"github.com/potanshop/topup-admin/internal/model"
	"go.uber.org/zap"
)

// Store is the part of the repository the relay needs.
type Store interface {
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error
}

// Relay forwards committed outbox rows to Kafka. Delivery is at-least-once:
// a row published but not marked is published again on the next pass.
type Relay struct {
	store     Store
	interval  time.Duration
	batchSize int
	log       *zap.SugaredLogger
}

func NewRelay(store Store, interval time.Duration, batchSize int, logger *zap.SugaredLogger) *Relay {
	return &Relay{store: store, interval: interval, batchSize: batchSize, log: logger}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("outbox relay started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info("outbox relay stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.log.Errorf("poll outbox: %v", err)
			}
		}
	}
}

// RunOnce publishes one batch and returns how many events were delivered.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	events, err := r.store.PollOutbox(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, evt := range events {
		if err := r.store.PublishEvent(ctx, evt); err != nil {
			r.log.Errorf("publish id=%d: %v", evt.ID, err)
			continue
		}
		if err := r.store.MarkOutboxProcessed(ctx, evt.ID); err != nil {
			r.log.Errorf("mark processed id=%d: %v", evt.ID, err)
			continue
		}
		r.log.Debugf("event %d (%s) sent", evt.ID, evt.EventType)
		sent++
	}
	return sent, nil
}
