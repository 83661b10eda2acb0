package services

import (
	"context"
	"fmt"
	"log/slog"

	"wisp/internal/core"
	"wisp/internal/storage"
)

// SalaryService manages per-member per-period declared income. Every
// upsert triggers recomputation of the distributions that depend on it:
// directly when no event publisher is configured, or asynchronously via a
// salary.updated event consumed by the recompute worker.
type SalaryService struct {
	store   *storage.SQLiteRepository
	periods *PeriodResolver
	engine  *DistributionEngine
	events  EventPublisher
}

func NewSalaryService(store *storage.SQLiteRepository, periods *PeriodResolver, engine *DistributionEngine, events EventPublisher) *SalaryService {
	return &SalaryService{store: store, periods: periods, engine: engine, events: events}
}

// Upsert stores the member's salary for a period, replacing any previous
// amount for the same (member, period), then triggers recomputation.
func (s *SalaryService) Upsert(ctx context.Context, memberID int64, token core.PeriodToken, amount core.Money) (core.Salary, error) {
	member, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return core.Salary{}, err
	}

	period, err := s.periods.ResolveToken(ctx, token)
	if err != nil {
		return core.Salary{}, err
	}

	salary := core.Salary{MemberID: member.ID, PeriodID: period.ID, Amount: amount}
	if err := salary.Validate(); err != nil {
		return core.Salary{}, err
	}

	saved, err := s.store.UpsertSalary(ctx, salary)
	if err != nil {
		return core.Salary{}, err
	}

	if s.events != nil && member.HouseholdID != 0 {
		if err := s.events.PublishSalaryUpdated(ctx, member.HouseholdID, period.Token); err != nil {
			// The queue is the recompute path; fall back to inline so the
			// ledger never drifts from the new salary.
			slog.ErrorContext(ctx, "Failed to publish salary event, recomputing inline",
				"member_id", member.ID, "period", string(period.Token), "error", err)
			if rerr := s.engine.OnSalaryUpdated(ctx, saved); rerr != nil {
				return core.Salary{}, rerr
			}
		}
		return saved, nil
	}

	if err := s.engine.OnSalaryUpdated(ctx, saved); err != nil {
		return core.Salary{}, err
	}
	return saved, nil
}

// SalariesFor returns all salary rows of a household's members for the
// given period token.
func (s *SalaryService) SalariesFor(ctx context.Context, householdID int64, token core.PeriodToken) ([]core.Salary, error) {
	period, err := s.periods.ResolveToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.store.SalariesFor(ctx, householdID, period.ID)
}

// TotalSalary sums a household's salaries for a period; zero when no
// salary rows exist.
func (s *SalaryService) TotalSalary(ctx context.Context, householdID int64, token core.PeriodToken) (core.Money, error) {
	salaries, err := s.SalariesFor(ctx, householdID, token)
	if err != nil {
		return core.Money{}, err
	}
	var total core.Money
	for _, sal := range salaries {
		total = total.Add(sal.Amount)
	}
	return total, nil
}

// SalaryFor is the point lookup of one member's salary in one period.
func (s *SalaryService) SalaryFor(ctx context.Context, memberID int64, token core.PeriodToken) (core.Salary, error) {
	period, err := s.periods.ResolveToken(ctx, token)
	if err != nil {
		return core.Salary{}, err
	}
	salary, err := s.store.SalaryFor(ctx, memberID, period.ID)
	if err != nil {
		return core.Salary{}, fmt.Errorf("salary lookup: %w", err)
	}
	return salary, nil
}
