package core

import (
	"errors"
	"testing"
	"time"
)

func TestParseDistributionType(t *testing.T) {
	tests := []struct {
		input   string
		want    DistributionType
		wantErr bool
	}{
		{input: "equal", want: Equal},
		{input: "prorrata", want: Prorrata},
		{input: " Equal ", want: Equal},
		{input: "percentage", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseDistributionType(tt.input)
		if tt.wantErr {
			if !errors.Is(err, ErrUnsupportedDistributionType) {
				t.Errorf("ParseDistributionType(%q) err = %v, want ErrUnsupportedDistributionType", tt.input, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseDistributionType(%q) = %v, %v; want %v", tt.input, got, err, tt.want)
		}
	}
}

func TestMovementValidate(t *testing.T) {
	valid := Movement{
		Amount:     Money{Cents: 10000},
		Date:       time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC),
		MemberID:   1,
		CategoryID: 1,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid movement rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Movement)
	}{
		{name: "zero amount", mutate: func(m *Movement) { m.Amount = Money{} }},
		{name: "zero date", mutate: func(m *Movement) { m.Date = time.Time{} }},
		{name: "no payer", mutate: func(m *Movement) { m.MemberID = 0 }},
		{name: "no category", mutate: func(m *Movement) { m.CategoryID = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid
			tt.mutate(&m)
			if err := m.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestRecomputeErrorUnwrap(t *testing.T) {
	err := &RecomputeError{MovementID: 42, Err: ErrMissingSalaryData}
	if !errors.Is(err, ErrMissingSalaryData) {
		t.Error("RecomputeError should unwrap to its cause")
	}
	if err.Error() != "recompute movement 42: missing salary data for prorrata distribution" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
