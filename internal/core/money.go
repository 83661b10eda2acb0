// Package core holds the domain model of the shared-expense ledger:
// households, members, periods, categories, movements, salaries and the
// distribution rows the engine derives from them.
//
// Monetary amounts are fixed-point with two fractional digits, stored as
// int64 cents. All arithmetic stays in integer cents so distribution sums
// reconcile exactly with movement totals.
package core

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Money is a fixed-point amount in cents.
type Money struct {
	Cents int64
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }

func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

// String formats the amount as a plain decimal with two fractional digits,
// e.g. 1234 cents -> "12.34".
func (m Money) String() string {
	c := m.Cents
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}

// ParseMoney converts a decimal string to Money. It accepts both dot
// (12.34) and comma (12,34) separators and rounds half-up on the third
// decimal digit. Signed, empty, and malformed inputs are rejected.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Money{}, ErrInvalidAmount
	}

	intPart, fracPart := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
		if strings.ContainsRune(fracPart, '.') {
			return Money{}, ErrInvalidAmount
		}
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) {
			return Money{}, ErrInvalidAmount
		}
	}

	units, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	// Guard the *100 below.
	const maxUnits = (1<<63 - 1) / 100
	if units > maxUnits {
		return Money{}, ErrInvalidAmount
	}

	var frac int64
	if len(fracPart) > 0 {
		frac = int64(fracPart[0]-'0') * 10
	}
	if len(fracPart) > 1 {
		frac += int64(fracPart[1] - '0')
	}
	if len(fracPart) > 2 && fracPart[2] >= '5' {
		frac++
	}

	m := Money{Cents: units*100 + frac}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}
