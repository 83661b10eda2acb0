package services

import (
	"context"
	"fmt"
	"log/slog"

	"wisp/internal/core"
	"wisp/internal/storage"
)

// MovementService orchestrates movement creation: persist the movement,
// then hand it to the distribution engine. The engine only ever writes
// distribution rows; the movement row is this service's responsibility.
type MovementService struct {
	store   *storage.SQLiteRepository
	periods *PeriodResolver
	engine  *DistributionEngine
}

func NewMovementService(store *storage.SQLiteRepository, periods *PeriodResolver, engine *DistributionEngine) *MovementService {
	return &MovementService{store: store, periods: periods, engine: engine}
}

// Create validates and persists a movement, derives its period from the
// date, and triggers distribution. If splitting fails the movement row is
// removed again, so a rejected movement leaves no trace.
func (s *MovementService) Create(ctx context.Context, m core.Movement) (core.Movement, []core.Distribution, error) {
	if err := m.Validate(); err != nil {
		return core.Movement{}, nil, err
	}

	period, err := s.periods.Resolve(ctx, m.Date)
	if err != nil {
		return core.Movement{}, nil, err
	}
	m.PeriodID = period.ID

	saved, err := s.store.CreateMovement(ctx, m)
	if err != nil {
		return core.Movement{}, nil, fmt.Errorf("save movement: %w", err)
	}

	rows, err := s.engine.OnMovementCreated(ctx, saved)
	if err != nil {
		if delErr := s.store.DeleteMovement(ctx, saved.ID); delErr != nil {
			slog.ErrorContext(ctx, "Failed to roll back movement after distribution failure",
				"movement_id", saved.ID, "error", delErr)
		}
		return core.Movement{}, nil, err
	}

	return saved, rows, nil
}

// ListFor returns a household's movements for a period token, including
// each movement's category policy.
func (s *MovementService) ListFor(ctx context.Context, householdID int64, token core.PeriodToken) ([]storage.MovementWithPolicy, error) {
	period, err := s.periods.ResolveToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.store.MovementsFor(ctx, householdID, period.ID)
}

// Distributions returns the current distribution batch of a movement.
func (s *MovementService) Distributions(ctx context.Context, movementID int64) ([]core.Distribution, error) {
	return s.store.DistributionsFor(ctx, movementID)
}
