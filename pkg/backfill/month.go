// Package backfill drives the per-month pipeline across an ordered month
// range with resume-by-existing-output, cooperative pause, and durable
// progress state.
package backfill

import (
	"fmt"
	"time"
)

// Month is one unit of the backfill sequence, processed atomically.
type Month struct {
	Year  int
	Month time.Month
}

// ParseMonth parses a "YYYY-MM" month identifier.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("parse month %q: %w", s, err)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// String formats the month as "YYYY-MM".
func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Next returns the following calendar month.
func (m Month) Next() Month {
	if m.Month == time.December {
		return Month{Year: m.Year + 1, Month: time.January}
	}
	return Month{Year: m.Year, Month: m.Month + 1}
}

// Prev returns the preceding calendar month.
func (m Month) Prev() Month {
	if m.Month == time.January {
		return Month{Year: m.Year - 1, Month: time.December}
	}
	return Month{Year: m.Year, Month: m.Month - 1}
}

// After reports whether m is strictly later than o.
func (m Month) After(o Month) bool {
	if m.Year != o.Year {
		return m.Year > o.Year
	}
	return m.Month > o.Month
}

// Before reports whether m is strictly earlier than o.
func (m Month) Before(o Month) bool {
	return o.After(m)
}

// Sequence returns the inclusive month range from start to end in order.
func Sequence(start, end Month) ([]Month, error) {
	if start.After(end) {
		return nil, fmt.Errorf("start month %s is after end month %s", start, end)
	}
	var out []Month
	for m := start; !m.After(end); m = m.Next() {
		out = append(out, m)
	}
	return out, nil
}
