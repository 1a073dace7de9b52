package app

import (
	"context"
	"log/slog"

	"github.com/EderamorimTH/rifa-miguel/internal/domain"
)

// EventPublisher delivers order events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.OrderEvent) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.OrderEvent) error { return nil }

// NopPublisher discards events.
func NopPublisher() EventPublisher {
	return nopPublisher{}
}

// publishAll never fails the caller: inventory is already committed.
func publishAll(ctx context.Context, pub EventPublisher, logger *slog.Logger, events ...domain.OrderEvent) {
	for _, ev := range events {
		if err := pub.Publish(ctx, ev); err != nil {
			logger.Warn("publish order event failed",
				"type", ev.Type,
				"order_id", ev.OrderID,
				"error", err,
			)
		}
	}
}

func releasedEvents(orders []domain.Order, reason string) []domain.OrderEvent {
	out := make([]domain.OrderEvent, 0, len(orders))
	for _, o := range orders {
		at := o.CreatedAt
		if o.ReleasedAt != nil {
			at = *o.ReleasedAt
		}
		out = append(out, domain.OrderEvent{
			Type:       domain.EventOrderReleased,
			OrderID:    o.ID,
			Numbers:    o.Numbers,
			Reason:     reason,
			OccurredAt: at,
		})
	}
	return out
}
