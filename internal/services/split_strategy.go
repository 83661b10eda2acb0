// Package services implements the expense distribution engine: splitting
// movements into per-member shares, keeping those shares consistent when
// salaries change, and deriving balances from them.
//
// Distribution policies follow the Strategy Pattern: each policy type has
// its own Splitter encapsulating the share computation. The registry is
// the single place a policy string is interpreted; the engine itself never
// branches on raw strings.
package services

import (
	"fmt"

	"wisp/internal/core"
)

// Share is one member's computed portion of a movement, prior to
// persistence as a distribution row.
type Share struct {
	MemberID int64
	Amount   core.Money
	IsPayer  bool
}

// SplitInput carries everything a policy may need: the movement, the
// household roster, and the previous-period salaries keyed by member ID
// (empty for policies that ignore salaries).
type SplitInput struct {
	Movement core.Movement
	Members  []core.Member
	Salaries map[int64]core.Money
}

// Splitter is the strategy interface for distribution policies. Split
// returns one share per household member; shares always sum exactly to
// the movement amount, with any rounding remainder carried by the payer.
type Splitter interface {
	Split(in SplitInput) ([]Share, error)

	// RequiresSalaries reports whether the policy reads previous-period
	// salary data, so the engine knows what to load before splitting.
	RequiresSalaries() bool
}

// EqualSplitter divides a movement evenly across all members.
type EqualSplitter struct{}

func (EqualSplitter) RequiresSalaries() bool { return false }

func (EqualSplitter) Split(in SplitInput) ([]Share, error) {
	n := int64(len(in.Members))
	if n == 0 {
		return nil, fmt.Errorf("%w: household has no members", core.ErrInvalidState)
	}
	payerIdx, err := payerIndex(in)
	if err != nil {
		return nil, err
	}

	base := in.Movement.Amount.Cents / n
	remainder := in.Movement.Amount.Cents - base*n

	shares := make([]Share, n)
	for i, m := range in.Members {
		shares[i] = Share{MemberID: m.ID, Amount: core.Money{Cents: base}}
	}
	// Integer division truncates; the payer absorbs the leftover cents so
	// the batch reconciles to the movement total.
	shares[payerIdx].Amount.Cents += remainder
	shares[payerIdx].IsPayer = true

	return shares, nil
}

// ProrrataSplitter divides a movement proportionally to each member's
// salary in the period before the movement's period.
type ProrrataSplitter struct{}

func (ProrrataSplitter) RequiresSalaries() bool { return true }

func (ProrrataSplitter) Split(in SplitInput) ([]Share, error) {
	if len(in.Members) == 0 {
		return nil, fmt.Errorf("%w: household has no members", core.ErrInvalidState)
	}
	payerIdx, err := payerIndex(in)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, m := range in.Members {
		salary, ok := in.Salaries[m.ID]
		if !ok {
			return nil, fmt.Errorf("%w: member %d has no previous-period salary", core.ErrMissingSalaryData, m.ID)
		}
		total += salary.Cents
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: previous-period salaries sum to zero", core.ErrMissingSalaryData)
	}

	amount := in.Movement.Amount.Cents
	shares := make([]Share, len(in.Members))
	var assigned int64
	for i, m := range in.Members {
		if i == payerIdx {
			continue
		}
		// Round half-up in integer cents; amount*salary stays far below
		// the int64 range for any realistic ledger.
		cents := (amount*in.Salaries[m.ID].Cents + total/2) / total
		shares[i] = Share{MemberID: m.ID, Amount: core.Money{Cents: cents}}
		assigned += cents
	}
	// The payer takes the exact leftover, reconciling rounding drift.
	shares[payerIdx] = Share{
		MemberID: in.Members[payerIdx].ID,
		Amount:   core.Money{Cents: amount - assigned},
		IsPayer:  true,
	}

	return shares, nil
}

func payerIndex(in SplitInput) (int, error) {
	for i, m := range in.Members {
		if m.ID == in.Movement.MemberID {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: payer %d is not a household member", core.ErrInvalidState, in.Movement.MemberID)
}

// splitters maps distribution types to their strategies. The closed set
// mirrors core.ParseDistributionType; adding a policy means adding a type
// constant, a Splitter, and a registry entry.
var splitters = map[core.DistributionType]Splitter{
	core.Equal:    EqualSplitter{},
	core.Prorrata: ProrrataSplitter{},
}

// GetSplitter returns the strategy for a distribution type, or
// core.ErrUnsupportedDistributionType for anything outside the registry.
func GetSplitter(dt core.DistributionType) (Splitter, error) {
	s, ok := splitters[dt]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedDistributionType, dt)
	}
	return s, nil
}
