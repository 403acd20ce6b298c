package main

import (
	"context"
	"encoding/json"
	"fmt"

	"boigordo/internal/core/types"
	"boigordo/internal/domain/period"
	"boigordo/internal/infrastructure/storage/postgres"
	"boigordo/pkg/logger"
)

// monthInvalidator drops cached statements of the given months.
type monthInvalidator interface {
	InvalidateMonths(ctx context.Context, months ...types.Month) error
}

// eventHandler delivers outbox messages. Unknown event types are acknowledged
// so they do not block the queue.
func eventHandler(statements monthInvalidator) postgres.OutboxHandlerFunc {
	return func(ctx context.Context, msg *postgres.OutboxMessage) error {
		switch msg.EventType {
		case period.EventChanged:
			return invalidatePeriods(ctx, statements, msg.Payload)
		default:
			logger.Debug(ctx, "outbox event ignored", "event_type", msg.EventType, "id", msg.ID)
			return nil
		}
	}
}

func invalidatePeriods(ctx context.Context, statements monthInvalidator, payload []byte) error {
	var ev period.Changed
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("decode %s: %w", period.EventChanged, err)
	}
	months := make([]types.Month, 0, len(ev.Months))
	for _, raw := range ev.Months {
		m, err := types.ParseMonth(raw)
		if err != nil {
			return fmt.Errorf("decode %s: %w", period.EventChanged, err)
		}
		months = append(months, m)
	}
	if len(months) == 0 {
		return nil
	}
	if err := statements.InvalidateMonths(ctx, months...); err != nil {
		return fmt.Errorf("invalidate statements: %w", err)
	}
	logger.Debug(ctx, "statement cache invalidated", "months", ev.Months, "reason", ev.Reason)
	return nil
}
