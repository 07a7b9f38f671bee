package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/utafrali/catalogsearch/pkg/kafka"
	"github.com/utafrali/catalogsearch/pkg/logger"
)

// Reconciler re-applies the record store state of one product to the index.
type Reconciler interface {
	Reconcile(ctx context.Context, id string) error
}

// RepairConsumer handles index repair events by reconciling the product they
// name. Returning an error lets the underlying Kafka consumer retry the
// message and finally route it to the dead letter topic.
type RepairConsumer struct {
	reconciler Reconciler
	logger     *slog.Logger
}

// NewRepairConsumer creates a new repair event handler.
func NewRepairConsumer(reconciler Reconciler, logger *slog.Logger) *RepairConsumer {
	return &RepairConsumer{
		reconciler: reconciler,
		logger:     logger,
	}
}

// Handle processes a Kafka event based on its type.
func (c *RepairConsumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	if event.CorrelationID != "" {
		ctx = logger.WithCorrelationID(ctx, event.CorrelationID)
	}

	switch event.EventType {
	case TopicIndexRepair:
		return c.handleIndexRepair(ctx, event)
	default:
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

func (c *RepairConsumer) handleIndexRepair(ctx context.Context, event *pkgkafka.Event) error {
	var data IndexRepairData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal index_repair data: %w", err)
	}
	if data.ID == "" {
		data.ID = event.AggregateID
	}
	if data.ID == "" {
		return fmt.Errorf("index_repair event %s has no product id", event.EventID)
	}

	if err := c.reconciler.Reconcile(ctx, data.ID); err != nil {
		return fmt.Errorf("reconcile product from repair event: %w", err)
	}

	logger.WithContext(ctx, c.logger).InfoContext(ctx, "repaired index entry",
		slog.String("product_id", data.ID),
		slog.String("failed_operation", data.Operation),
	)
	return nil
}
