package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"wisp/internal/core"
	"wisp/internal/storage"
)

type testEnv struct {
	store     *storage.SQLiteRepository
	periods   *PeriodResolver
	engine    *DistributionEngine
	movements *MovementService
	salaries  *SalaryService
	balances  *BalanceService

	household  core.Household
	alice      core.Member
	bob        core.Member
	equalCat   core.Category
	prorataCat core.Category
}

// newTestEnv builds the full service stack on a fresh database with one
// household of two members and one category per policy.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	periods := NewPeriodResolver(store)
	engine := NewDistributionEngine(store, periods, nil)

	env := &testEnv{
		store:     store,
		periods:   periods,
		engine:    engine,
		movements: NewMovementService(store, periods, engine),
		salaries:  NewSalaryService(store, periods, engine, nil),
		balances:  NewBalanceService(store),
	}

	env.household, err = store.CreateHousehold(ctx, "casa")
	if err != nil {
		t.Fatalf("CreateHousehold() error = %v", err)
	}
	env.alice = env.addMember(t, "alice")
	env.bob = env.addMember(t, "bob")

	env.equalCat, err = store.CreateCategory(ctx, core.Category{
		Name: "groceries", HouseholdID: env.household.ID, Distribution: core.Equal,
	})
	if err != nil {
		t.Fatalf("CreateCategory(equal) error = %v", err)
	}
	env.prorataCat, err = store.CreateCategory(ctx, core.Category{
		Name: "rent", HouseholdID: env.household.ID, Distribution: core.Prorrata,
	})
	if err != nil {
		t.Fatalf("CreateCategory(prorrata) error = %v", err)
	}

	return env
}

func (env *testEnv) addMember(t *testing.T, name string) core.Member {
	t.Helper()
	ctx := context.Background()
	m, err := env.store.CreateMember(ctx, core.Member{Name: name})
	if err != nil {
		t.Fatalf("CreateMember(%s) error = %v", name, err)
	}
	if err := env.store.JoinHousehold(ctx, m.ID, env.household.ID); err != nil {
		t.Fatalf("JoinHousehold(%s) error = %v", name, err)
	}
	m.HouseholdID = env.household.ID
	return m
}

func (env *testEnv) setSalary(t *testing.T, member core.Member, token core.PeriodToken, cents int64) {
	t.Helper()
	if _, err := env.salaries.Upsert(context.Background(), member.ID, token, core.Money{Cents: cents}); err != nil {
		t.Fatalf("Upsert salary for %s: %v", member.Name, err)
	}
}

func date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func distributionCents(t *testing.T, rows []core.Distribution, memberID int64) int64 {
	t.Helper()
	for _, d := range rows {
		if d.MemberID == memberID {
			return d.Amount.Cents
		}
	}
	t.Fatalf("no distribution for member %d", memberID)
	return 0
}

func TestMovementCreateEqualDistribution(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	saved, rows, err := env.movements.Create(ctx, core.Movement{
		Amount:     core.Money{Cents: 10000},
		Date:       date("2025-04-10"),
		MemberID:   env.alice.ID,
		CategoryID: env.equalCat.ID,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if saved.ID == 0 || saved.PeriodID == 0 {
		t.Fatalf("Create() returned movement without IDs: %+v", saved)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d distributions, want 2", len(rows))
	}
	if got := distributionCents(t, rows, env.alice.ID); got != 5000 {
		t.Errorf("alice share = %d, want 5000", got)
	}
	if got := distributionCents(t, rows, env.bob.ID); got != 5000 {
		t.Errorf("bob share = %d, want 5000", got)
	}

	// The batch must be durable, not just returned.
	persisted, err := env.movements.Distributions(ctx, saved.ID)
	if err != nil {
		t.Fatalf("Distributions() error = %v", err)
	}
	if len(persisted) != 2 {
		t.Errorf("persisted %d distributions, want 2", len(persisted))
	}
}

func TestMovementCreateProrrataUsesPreviousPeriodSalaries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Salaries in March feed movements dated April.
	env.setSalary(t, env.alice, "2025-03", 300000)
	env.setSalary(t, env.bob, "2025-03", 100000)

	_, rows, err := env.movements.Create(ctx, core.Movement{
		Amount:     core.Money{Cents: 40000},
		Date:       date("2025-04-05"),
		MemberID:   env.alice.ID,
		CategoryID: env.prorataCat.ID,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if got := distributionCents(t, rows, env.alice.ID); got != 30000 {
		t.Errorf("alice share = %d, want 30000", got)
	}
	if got := distributionCents(t, rows, env.bob.ID); got != 10000 {
		t.Errorf("bob share = %d, want 10000", got)
	}
}

func TestMovementCreateRollsBackOnSplitFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// No salaries exist, so a prorrata movement cannot be split.
	saved, _, err := env.movements.Create(ctx, core.Movement{
		Amount:     core.Money{Cents: 40000},
		Date:       date("2025-04-05"),
		MemberID:   env.alice.ID,
		CategoryID: env.prorataCat.ID,
	})
	if !errors.Is(err, core.ErrMissingSalaryData) {
		t.Fatalf("Create() error = %v, want ErrMissingSalaryData", err)
	}
	if saved.ID != 0 {
		t.Errorf("Create() returned a movement despite failure: %+v", saved)
	}

	// No orphan movement row may survive.
	period, err := env.periods.ResolveToken(ctx, "2025-04")
	if err != nil {
		t.Fatalf("ResolveToken() error = %v", err)
	}
	movements, err := env.store.MovementsFor(ctx, env.household.ID, period.ID)
	if err != nil {
		t.Fatalf("MovementsFor() error = %v", err)
	}
	if len(movements) != 0 {
		t.Errorf("found %d movements after rollback, want 0", len(movements))
	}
}

func TestSalaryUpdateRecomputesFollowingMonth(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.setSalary(t, env.alice, "2025-03", 300000)
	env.setSalary(t, env.bob, "2025-03", 100000)

	saved, _, err := env.movements.Create(ctx, core.Movement{
		Amount:     core.Money{Cents: 40000},
		Date:       date("2025-04-05"),
		MemberID:   env.alice.ID,
		CategoryID: env.prorataCat.ID,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Correcting bob's March salary must refresh April's prorrata rows.
	env.setSalary(t, env.bob, "2025-03", 200000)

	rows, err := env.movements.Distributions(ctx, saved.ID)
	if err != nil {
		t.Fatalf("Distributions() error = %v", err)
	}
	if got := distributionCents(t, rows, env.alice.ID); got != 24000 {
		t.Errorf("alice share after recompute = %d, want 24000", got)
	}
	if got := distributionCents(t, rows, env.bob.ID); got != 16000 {
		t.Errorf("bob share after recompute = %d, want 16000", got)
	}
}

func TestSalaryUpdateLeavesEqualMovementsAlone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.setSalary(t, env.alice, "2025-03", 300000)
	env.setSalary(t, env.bob, "2025-03", 100000)

	saved, _, err := env.movements.Create(ctx, core.Movement{
		Amount:     core.Money{Cents: 10000},
		Date:       date("2025-04-10"),
		MemberID:   env.alice.ID,
		CategoryID: env.equalCat.ID,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	env.setSalary(t, env.bob, "2025-03", 200000)

	rows, err := env.movements.Distributions(ctx, saved.ID)
	if err != nil {
		t.Fatalf("Distributions() error = %v", err)
	}
	if got := distributionCents(t, rows, env.bob.ID); got != 5000 {
		t.Errorf("bob share = %d, equal split must not react to salaries", got)
	}
}

func TestRecomputeReportsFailingMovement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Insert a prorrata movement directly, bypassing the service, into a
	// period whose previous month has no salaries.
	period, err := env.periods.ResolveToken(ctx, "2025-06")
	if err != nil {
		t.Fatalf("ResolveToken() error = %v", err)
	}
	movement, err := env.store.CreateMovement(ctx, core.Movement{
		Amount:     core.Money{Cents: 5000},
		Date:       date("2025-06-01"),
		MemberID:   env.alice.ID,
		CategoryID: env.prorataCat.ID,
		PeriodID:   period.ID,
	})
	if err != nil {
		t.Fatalf("CreateMovement() error = %v", err)
	}

	err = env.engine.Recompute(ctx, env.household.ID, period)
	var recomputeErr *core.RecomputeError
	if !errors.As(err, &recomputeErr) {
		t.Fatalf("Recompute() error = %v, want *core.RecomputeError", err)
	}
	if recomputeErr.MovementID != movement.ID {
		t.Errorf("RecomputeError.MovementID = %d, want %d", recomputeErr.MovementID, movement.ID)
	}
	if !errors.Is(err, core.ErrMissingSalaryData) {
		t.Errorf("Recompute() error chain = %v, want ErrMissingSalaryData", err)
	}
}

func TestRecomputeIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.setSalary(t, env.alice, "2025-03", 300000)
	env.setSalary(t, env.bob, "2025-03", 100000)

	saved, _, err := env.movements.Create(ctx, core.Movement{
		Amount:     core.Money{Cents: 40000},
		Date:       date("2025-04-05"),
		MemberID:   env.alice.ID,
		CategoryID: env.prorataCat.ID,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	period, err := env.periods.ResolveToken(ctx, "2025-04")
	if err != nil {
		t.Fatalf("ResolveToken() error = %v", err)
	}
	for range 3 {
		if err := env.engine.Recompute(ctx, env.household.ID, period); err != nil {
			t.Fatalf("Recompute() error = %v", err)
		}
	}

	rows, err := env.movements.Distributions(ctx, saved.ID)
	if err != nil {
		t.Fatalf("Distributions() error = %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("got %d distributions after repeated recompute, want 2", len(rows))
	}
	if got := distributionCents(t, rows, env.bob.ID); got != 10000 {
		t.Errorf("bob share = %d, want 10000", got)
	}
}
