package services

import (
	"context"
	"errors"
	"testing"

	"wisp/internal/core"
)

// seedLedger records three movements: alice fronts an equal 100.00 and a
// prorrata 400.00 (salaries 3000/1000), bob fronts an equal 60.00.
func seedLedger(t *testing.T, env *testEnv) {
	t.Helper()
	ctx := context.Background()

	env.setSalary(t, env.alice, "2025-03", 300000)
	env.setSalary(t, env.bob, "2025-03", 100000)

	for _, m := range []core.Movement{
		{Amount: core.Money{Cents: 10000}, Date: date("2025-04-10"), MemberID: env.alice.ID, CategoryID: env.equalCat.ID},
		{Amount: core.Money{Cents: 40000}, Date: date("2025-04-05"), MemberID: env.alice.ID, CategoryID: env.prorataCat.ID},
		{Amount: core.Money{Cents: 6000}, Date: date("2025-04-20"), MemberID: env.bob.ID, CategoryID: env.equalCat.ID},
	} {
		if _, _, err := env.movements.Create(ctx, m); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
}

func TestPairwiseBalance(t *testing.T) {
	env := newTestEnv(t)
	seedLedger(t, env)
	ctx := context.Background()

	// bob owes alice 50 (equal) + 100 (prorrata); alice owes bob 30.
	balance, err := env.balances.Pairwise(ctx, env.household.ID, env.alice.ID, env.bob.ID)
	if err != nil {
		t.Fatalf("Pairwise() error = %v", err)
	}
	if balance.YouOwe.Cents != 3000 {
		t.Errorf("YouOwe = %d, want 3000", balance.YouOwe.Cents)
	}
	if balance.OwesYou.Cents != 15000 {
		t.Errorf("OwesYou = %d, want 15000", balance.OwesYou.Cents)
	}
	if balance.Net.Cents != 12000 {
		t.Errorf("Net = %d, want 12000", balance.Net.Cents)
	}

	// Swapping perspectives inverts the sign.
	inverse, err := env.balances.Pairwise(ctx, env.household.ID, env.bob.ID, env.alice.ID)
	if err != nil {
		t.Fatalf("Pairwise() error = %v", err)
	}
	if inverse.Net.Cents != -balance.Net.Cents {
		t.Errorf("inverse Net = %d, want %d", inverse.Net.Cents, -balance.Net.Cents)
	}
}

func TestPairwiseBalanceValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.balances.Pairwise(ctx, env.household.ID, env.alice.ID, env.alice.ID); err == nil {
		t.Error("same member twice: want error")
	}
	if _, err := env.balances.Pairwise(ctx, env.household.ID, env.alice.ID, 999); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("unknown member error = %v, want ErrNotFound", err)
	}

	other, err := env.store.CreateHousehold(ctx, "other")
	if err != nil {
		t.Fatalf("CreateHousehold() error = %v", err)
	}
	if _, err := env.balances.Pairwise(ctx, other.ID, env.alice.ID, env.bob.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("wrong household error = %v, want ErrNotFound", err)
	}
}

func TestMemberTotals(t *testing.T) {
	env := newTestEnv(t)
	seedLedger(t, env)
	ctx := context.Background()

	totals, err := env.balances.Totals(ctx, env.alice.ID)
	if err != nil {
		t.Fatalf("Totals() error = %v", err)
	}
	if totals.TotalPaid.Cents != 50000 {
		t.Errorf("TotalPaid = %d, want 50000", totals.TotalPaid.Cents)
	}
	// alice's own shares: 50 + 300 + 30
	if totals.TotalOwed.Cents != 38000 {
		t.Errorf("TotalOwed = %d, want 38000", totals.TotalOwed.Cents)
	}
	if totals.Balance.Cents != 12000 {
		t.Errorf("Balance = %d, want 12000", totals.Balance.Cents)
	}
}

func TestHouseholdSummaryBalancesToZero(t *testing.T) {
	env := newTestEnv(t)
	seedLedger(t, env)

	summaries, err := env.balances.HouseholdSummary(context.Background(), env.household.ID)
	if err != nil {
		t.Fatalf("HouseholdSummary() error = %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}

	var net int64
	for _, s := range summaries {
		net += s.Totals.Balance.Cents
	}
	if net != 0 {
		t.Errorf("household balances sum to %d cents, want 0", net)
	}
}
