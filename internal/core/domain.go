package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// Equal splits a movement evenly across all household members.
	Equal DistributionType = "equal"
	// Prorrata splits a movement proportionally to each member's salary
	// declared for the period before the movement's period.
	Prorrata DistributionType = "prorrata"
)

type (
	// DistributionType identifies the policy a category uses to apportion
	// a movement's cost among household members. The set is closed: unknown
	// values are rejected at parse time, never defaulted.
	DistributionType string

	Household struct {
		ID   int64
		Name string
	}

	// Member is a person in a household. HouseholdID is zero while the
	// member is onboarding and has not joined a household yet.
	Member struct {
		ID          int64
		Name        string
		HouseholdID int64
		UserID      int64
	}

	// Period is a calendar-month bucket. Token is "YYYY-MM" and globally
	// unique; lexicographic order on tokens is chronological order.
	Period struct {
		ID    int64
		Token PeriodToken
	}

	Category struct {
		ID           int64
		Name         string
		HouseholdID  int64
		Distribution DistributionType
	}

	// Salary is a member's declared income for one period. At most one
	// salary exists per (member, period); updates replace the amount.
	Salary struct {
		ID       int64
		MemberID int64
		PeriodID int64
		Amount   Money
	}

	// Movement is a recorded expense paid by one member. Its period is
	// derived from Date and fixed once distributions exist.
	Movement struct {
		ID          int64
		Amount      Money
		Date        time.Time
		MemberID    int64 // the payer
		CategoryID  int64
		PeriodID    int64
		Description string
	}

	// Distribution is one member's computed share of one movement's cost.
	// Rows for a movement are created and replaced as a whole batch; their
	// amounts always sum to the movement amount and exactly one row has
	// IsPayer set, for the member who fronted the payment.
	Distribution struct {
		ID         int64
		MovementID int64
		MemberID   int64
		Amount     Money
		IsPayer    bool
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyName     = errors.New("empty name")
	ErrNotFound      = errors.New("not found")

	// ErrInvalidState means a movement is structurally impossible to
	// split, e.g. its household has no members.
	ErrInvalidState = errors.New("invalid state for distribution")

	// ErrMissingSalaryData means a prorrata split was requested but the
	// previous period has no usable salary data for every member.
	ErrMissingSalaryData = errors.New("missing salary data for prorrata distribution")

	ErrUnsupportedDistributionType = errors.New("unsupported distribution type")
)

// RecomputeError reports the movement at which a multi-movement recompute
// stopped. Movements processed before it keep their refreshed rows.
type RecomputeError struct {
	MovementID int64
	Err        error
}

func (e *RecomputeError) Error() string {
	return fmt.Sprintf("recompute movement %d: %v", e.MovementID, e.Err)
}

func (e *RecomputeError) Unwrap() error { return e.Err }

// ParseDistributionType validates a raw policy string against the closed
// set of known distribution types.
func ParseDistributionType(s string) (DistributionType, error) {
	switch dt := DistributionType(strings.ToLower(strings.TrimSpace(s))); dt {
	case Equal, Prorrata:
		return dt, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDistributionType, s)
	}
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 100 {
		return errors.New("category name too long (max 100 characters)")
	}
	if _, err := ParseDistributionType(string(c.Distribution)); err != nil {
		return err
	}
	return nil
}

func (m Movement) Validate() error {
	if err := m.Amount.Validate(); err != nil {
		return err
	}
	if m.Date.IsZero() {
		return errors.New("movement date cannot be zero")
	}
	if m.MemberID == 0 {
		return errors.New("movement requires a paying member")
	}
	if m.CategoryID == 0 {
		return errors.New("movement requires a category")
	}
	if len(m.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}

func (s Salary) Validate() error {
	if err := s.Amount.Validate(); err != nil {
		return err
	}
	if s.MemberID == 0 {
		return errors.New("salary requires a member")
	}
	return nil
}
