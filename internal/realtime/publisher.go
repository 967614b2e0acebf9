package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/orderlyhq/orderly-backend/pkg/enums"
	"github.com/orderlyhq/orderly-backend/pkg/logger"
	pkgpubsub "github.com/orderlyhq/orderly-backend/pkg/pubsub"
)

// OrderEvent is the payload pushed to the owner portal feed on every order
// change.
type OrderEvent struct {
	Type       string            `json:"type"`
	OrgID      string            `json:"org_id"`
	OrderID    string            `json:"order_id"`
	Number     int64             `json:"number"`
	Status     enums.OrderStatus `json:"status"`
	OccurredAt time.Time         `json:"occurred_at"`
}

const (
	EventOrderCreated  = "order.created"
	EventOrderUpdated  = "order.updated"
	EventDeliveryMoved = "delivery.updated"
)

// Publisher pushes order events to whatever feed transport is configured.
type Publisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

type pubsubPublisher struct {
	publisher *pubsub.Publisher
	logg      *logger.Logger
}

// NewPublisher builds the Pub/Sub-backed order feed publisher.
func NewPublisher(client *pkgpubsub.Client, logg *logger.Logger) (Publisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client required")
	}
	pub := client.OrdersPublisher()
	if pub == nil {
		return nil, fmt.Errorf("orders topic not configured")
	}
	return &pubsubPublisher{publisher: pub, logg: logg}, nil
}

func (p *pubsubPublisher) PublishOrderEvent(ctx context.Context, event OrderEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding order event: %w", err)
	}

	result := p.publisher.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"type":   event.Type,
			"org_id": event.OrgID,
		},
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publishing order event: %w", err)
	}

	if p.logg != nil {
		logCtx := p.logg.WithFields(ctx, map[string]any{
			"event_type": event.Type,
			"order_id":   event.OrderID,
		})
		p.logg.Info(logCtx, "order event published")
	}
	return nil
}

// NoopPublisher drops events. Used when no project is configured and in
// tests.
type NoopPublisher struct{}

func (NoopPublisher) PublishOrderEvent(context.Context, OrderEvent) error { return nil }
