package services

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"wisp/internal/core"
	"wisp/internal/storage"
)

// PairwiseBalance is the "who owes whom" view between two members, from
// the perspective of the first one.
type PairwiseBalance struct {
	YouOwe  core.Money // what the first member owes the second
	OwesYou core.Money // what the second member owes the first
	Net     core.Money // OwesYou - YouOwe
}

// MemberTotals aggregates one member's position across the whole ledger.
type MemberTotals struct {
	TotalPaid core.Money // movement amounts the member fronted
	TotalOwed core.Money // distribution amounts assigned to the member
	Balance   core.Money // TotalPaid - TotalOwed
}

// MemberSummary pairs a member with their totals, for household views.
type MemberSummary struct {
	Member core.Member
	Totals MemberTotals
}

// BalanceService derives balances by summing distribution rows. Results
// are always computed live from the movement and distribution tables, so
// they stay consistent through any recomputation.
type BalanceService struct {
	store *storage.SQLiteRepository
}

func NewBalanceService(store *storage.SQLiteRepository) *BalanceService {
	return &BalanceService{store: store}
}

// Pairwise computes the balance between two distinct members of the same
// household. Swapping the members yields a sign-inverted Net.
func (s *BalanceService) Pairwise(ctx context.Context, householdID, memberA, memberB int64) (PairwiseBalance, error) {
	if memberA == memberB {
		return PairwiseBalance{}, errors.New("pairwise balance requires two distinct members")
	}
	for _, id := range []int64{memberA, memberB} {
		m, err := s.store.GetMember(ctx, id)
		if err != nil {
			return PairwiseBalance{}, err
		}
		if m.HouseholdID != householdID {
			return PairwiseBalance{}, fmt.Errorf("member %d not in household %d: %w", id, householdID, core.ErrNotFound)
		}
	}

	youOwe, err := s.store.OwedBetween(ctx, memberA, memberB)
	if err != nil {
		return PairwiseBalance{}, err
	}
	owesYou, err := s.store.OwedBetween(ctx, memberB, memberA)
	if err != nil {
		return PairwiseBalance{}, err
	}

	return PairwiseBalance{
		YouOwe:  core.Money{Cents: youOwe},
		OwesYou: core.Money{Cents: owesYou},
		Net:     core.Money{Cents: owesYou - youOwe},
	}, nil
}

// Totals computes a member's paid/owed/balance figures.
func (s *BalanceService) Totals(ctx context.Context, memberID int64) (MemberTotals, error) {
	paid, err := s.store.TotalPaid(ctx, memberID)
	if err != nil {
		return MemberTotals{}, err
	}
	owed, err := s.store.TotalOwed(ctx, memberID)
	if err != nil {
		return MemberTotals{}, err
	}
	return MemberTotals{
		TotalPaid: core.Money{Cents: paid},
		TotalOwed: core.Money{Cents: owed},
		Balance:   core.Money{Cents: paid - owed},
	}, nil
}

// HouseholdSummary computes totals for every member of a household,
// fetching the per-member sums concurrently.
func (s *BalanceService) HouseholdSummary(ctx context.Context, householdID int64) ([]MemberSummary, error) {
	members, err := s.store.MembersOf(ctx, householdID)
	if err != nil {
		return nil, err
	}

	summaries := make([]MemberSummary, len(members))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range members {
		g.Go(func() error {
			totals, err := s.Totals(gctx, m.ID)
			if err != nil {
				return fmt.Errorf("totals for member %d: %w", m.ID, err)
			}
			summaries[i] = MemberSummary{Member: m, Totals: totals}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}
