package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"wisp/internal/core"
	"wisp/internal/storage"
)

// EventPublisher is the outbound notification port. A nil publisher is
// valid and simply skips notifications.
type EventPublisher interface {
	PublishMovementCreated(ctx context.Context, movementID, householdID int64, period core.PeriodToken) error
	PublishSalaryUpdated(ctx context.Context, householdID int64, period core.PeriodToken) error
}

// DistributionEngine produces and maintains distribution rows consistent
// with each movement's category policy. All operations are synchronous
// over the store; per-movement writes are transactional, and recomputes
// for the same household and period serialize on an internal lock.
type DistributionEngine struct {
	store   *storage.SQLiteRepository
	periods *PeriodResolver
	events  EventPublisher

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewDistributionEngine(store *storage.SQLiteRepository, periods *PeriodResolver, events EventPublisher) *DistributionEngine {
	return &DistributionEngine{
		store:   store,
		periods: periods,
		events:  events,
		locks:   make(map[string]*sync.Mutex),
	}
}

// OnMovementCreated is the trigger invoked after a movement row has been
// persisted. It computes the member shares under the movement's category
// policy and writes the full distribution batch in one transaction; on
// any failure no rows are committed.
func (e *DistributionEngine) OnMovementCreated(ctx context.Context, movement core.Movement) ([]core.Distribution, error) {
	category, err := e.store.GetCategory(ctx, movement.CategoryID)
	if err != nil {
		return nil, err
	}

	shares, err := e.computeShares(ctx, movement, category)
	if err != nil {
		return nil, err
	}

	rows := sharesToRows(movement.ID, shares)
	if err := e.store.ReplaceDistributions(ctx, movement.ID, rows); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Distributions created",
		"movement_id", movement.ID,
		"policy", string(category.Distribution),
		"rows", len(rows))

	if e.events != nil {
		period, perr := e.store.GetPeriod(ctx, movement.PeriodID)
		if perr == nil {
			if perr = e.events.PublishMovementCreated(ctx, movement.ID, category.HouseholdID, period.Token); perr != nil {
				slog.ErrorContext(ctx, "Failed to publish movement event",
					"movement_id", movement.ID, "error", perr)
			}
		}
	}

	return rows, nil
}

// OnSalaryUpdated is the trigger invoked after a salary row has been
// persisted. A salary for period P feeds the prorrata splits of the
// following month, so the engine recomputes the movements of P+1.
func (e *DistributionEngine) OnSalaryUpdated(ctx context.Context, salary core.Salary) error {
	member, err := e.store.GetMember(ctx, salary.MemberID)
	if err != nil {
		return err
	}
	if member.HouseholdID == 0 {
		// Onboarding member without a household: nothing to recompute.
		return nil
	}

	salaryPeriod, err := e.store.GetPeriod(ctx, salary.PeriodID)
	if err != nil {
		return err
	}
	affectedToken, err := salaryPeriod.Token.Next()
	if err != nil {
		return err
	}
	affected, err := e.periods.ResolveToken(ctx, affectedToken)
	if err != nil {
		return err
	}

	return e.Recompute(ctx, member.HouseholdID, affected)
}

// Recompute refreshes the distribution rows of every prorrata movement a
// household has in the given period, using current salary data. Equal
// movements are untouched. Each movement's delete-then-recreate step is
// atomic; on failure the error names the movement and already-refreshed
// movements keep their new rows, so retrying is safe. The operation is
// idempotent and serialized per (household, period).
func (e *DistributionEngine) Recompute(ctx context.Context, householdID int64, period core.Period) error {
	lock := e.lockFor(fmt.Sprintf("%d|%s", householdID, period.Token))
	lock.Lock()
	defer lock.Unlock()

	movements, err := e.store.MovementsFor(ctx, householdID, period.ID)
	if err != nil {
		return err
	}

	recomputed := 0
	for _, mv := range movements {
		splitter, err := GetSplitter(mv.Distribution)
		if err != nil {
			return &core.RecomputeError{MovementID: mv.ID, Err: err}
		}
		if !splitter.RequiresSalaries() {
			continue
		}

		shares, err := e.split(ctx, mv.Movement, splitter, householdID)
		if err != nil {
			return &core.RecomputeError{MovementID: mv.ID, Err: err}
		}
		if err := e.store.ReplaceDistributions(ctx, mv.ID, sharesToRows(mv.ID, shares)); err != nil {
			return &core.RecomputeError{MovementID: mv.ID, Err: err}
		}
		recomputed++
	}

	slog.InfoContext(ctx, "Recompute completed",
		"household_id", householdID,
		"period", string(period.Token),
		"movements", len(movements),
		"recomputed", recomputed)

	return nil
}

func (e *DistributionEngine) computeShares(ctx context.Context, movement core.Movement, category core.Category) ([]Share, error) {
	splitter, err := GetSplitter(category.Distribution)
	if err != nil {
		return nil, err
	}
	return e.split(ctx, movement, splitter, category.HouseholdID)
}

func (e *DistributionEngine) split(ctx context.Context, movement core.Movement, splitter Splitter, householdID int64) ([]Share, error) {
	members, err := e.store.MembersOf(ctx, householdID)
	if err != nil {
		return nil, err
	}

	in := SplitInput{Movement: movement, Members: members}
	if splitter.RequiresSalaries() {
		in.Salaries, err = e.previousSalaries(ctx, movement, householdID)
		if err != nil {
			return nil, err
		}
	}

	return splitter.Split(in)
}

func (e *DistributionEngine) previousSalaries(ctx context.Context, movement core.Movement, householdID int64) (map[int64]core.Money, error) {
	period, err := e.store.GetPeriod(ctx, movement.PeriodID)
	if err != nil {
		return nil, err
	}
	prev, err := e.periods.Previous(ctx, period)
	if err != nil {
		return nil, err
	}
	salaries, err := e.store.SalariesFor(ctx, householdID, prev.ID)
	if err != nil {
		return nil, err
	}

	byMember := make(map[int64]core.Money, len(salaries))
	for _, s := range salaries {
		byMember[s.MemberID] = s.Amount
	}
	return byMember, nil
}

func (e *DistributionEngine) lockFor(key string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[key]
	if !ok {
		l = &sync.Mutex{}
		e.locks[key] = l
	}
	return l
}

func sharesToRows(movementID int64, shares []Share) []core.Distribution {
	rows := make([]core.Distribution, len(shares))
	for i, s := range shares {
		rows[i] = core.Distribution{
			MovementID: movementID,
			MemberID:   s.MemberID,
			Amount:     s.Amount,
			IsPayer:    s.IsPayer,
		}
	}
	return rows
}
