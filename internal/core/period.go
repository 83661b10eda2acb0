package core

import (
	"errors"
	"fmt"
	"time"
)

// PeriodToken is a canonical "YYYY-MM" month identifier. Zero-padding
// makes lexicographic comparison equal to chronological comparison.
type PeriodToken string

// TokenForDate derives the period token of the month containing d.
func TokenForDate(d time.Time) PeriodToken {
	return PeriodToken(d.Format("2006-01"))
}

// NewPeriodToken builds a token from a year and a 1-based month.
func NewPeriodToken(year int, month time.Month) PeriodToken {
	return PeriodToken(fmt.Sprintf("%04d-%02d", year, month))
}

// ParsePeriodToken validates a raw "YYYY-MM" string.
func ParsePeriodToken(s string) (PeriodToken, error) {
	t := PeriodToken(s)
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

func (t PeriodToken) Validate() error {
	parsed, err := time.Parse("2006-01", string(t))
	if err != nil {
		return fmt.Errorf("invalid period token %q: %w", string(t), err)
	}
	if parsed.Year() < 1 {
		return errors.New("period year out of range")
	}
	return nil
}

// Previous returns the token of the calendar month immediately before t,
// rolling January back to December of the prior year. It is defined for
// every valid token.
func (t PeriodToken) Previous() (PeriodToken, error) {
	parsed, err := time.Parse("2006-01", string(t))
	if err != nil {
		return "", fmt.Errorf("invalid period token %q: %w", string(t), err)
	}
	year, month := parsed.Year(), parsed.Month()
	if month == time.January {
		return NewPeriodToken(year-1, time.December), nil
	}
	return NewPeriodToken(year, month-1), nil
}

// Next returns the token of the calendar month immediately after t,
// rolling December forward to January of the following year.
func (t PeriodToken) Next() (PeriodToken, error) {
	parsed, err := time.Parse("2006-01", string(t))
	if err != nil {
		return "", fmt.Errorf("invalid period token %q: %w", string(t), err)
	}
	year, month := parsed.Year(), parsed.Month()
	if month == time.December {
		return NewPeriodToken(year+1, time.January), nil
	}
	return NewPeriodToken(year, month+1), nil
}

// Before reports whether t is chronologically earlier than o.
func (t PeriodToken) Before(o PeriodToken) bool { return t < o }

func (t PeriodToken) String() string { return string(t) }
