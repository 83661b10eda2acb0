// Package worker runs the asynchronous side of the ledger: consuming
// salary.updated events and driving distribution recomputation.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"wisp/internal/amqp"
	"wisp/internal/core"
	"wisp/internal/services"
)

// RecomputeWorker consumes ledger events and recomputes distributions
// when salaries change. Handler errors leave the event on the queue, and
// recompute itself is idempotent, so redelivery is safe.
type RecomputeWorker struct {
	client  *amqp.Client
	engine  *services.DistributionEngine
	periods *services.PeriodResolver
}

func NewRecomputeWorker(client *amqp.Client, engine *services.DistributionEngine, periods *services.PeriodResolver) *RecomputeWorker {
	return &RecomputeWorker{client: client, engine: engine, periods: periods}
}

// Run blocks consuming events until the context is cancelled.
func (w *RecomputeWorker) Run(ctx context.Context) error {
	return w.client.ConsumeLedgerEvents(ctx, func(event *amqp.LedgerEvent) error {
		return w.handle(ctx, event)
	})
}

func (w *RecomputeWorker) handle(ctx context.Context, event *amqp.LedgerEvent) error {
	switch event.Type {
	case amqp.EventSalaryUpdated:
		// The salary belongs to event.Period; the movements it feeds are
		// in the following month.
		token := core.PeriodToken(event.Period)
		if err := token.Validate(); err != nil {
			return fmt.Errorf("event period %q: %w", event.Period, err)
		}
		salaryPeriod, err := w.periods.ResolveToken(ctx, token)
		if err != nil {
			return err
		}
		affectedToken, err := salaryPeriod.Token.Next()
		if err != nil {
			return err
		}
		affected, err := w.periods.ResolveToken(ctx, affectedToken)
		if err != nil {
			return err
		}

		if err := w.engine.Recompute(ctx, event.HouseholdID, affected); err != nil {
			return fmt.Errorf("recompute household %d period %s: %w",
				event.HouseholdID, affected.Token, err)
		}
		return nil

	case amqp.EventMovementCreated:
		// Informational only; distributions were written synchronously.
		slog.DebugContext(ctx, "Movement event observed",
			"movement_id", event.MovementID,
			"household_id", event.HouseholdID)
		return nil

	default:
		slog.WarnContext(ctx, "Unknown ledger event type", "type", string(event.Type))
		return nil
	}
}
