/*
Package periods provides the time model of the evaluation engine.

PURPOSE:
  Every value the engine computes is attached to a Period, and every
  legislation lookup happens at an Instant. Both are small comparable
  values so they can be used directly as map keys in the evaluation cache.

KEY CONCEPTS:
  - Instant: a calendar date (no time of day, no timezone)
  - Unit:    granularity of a period (day, month, year)
  - Period:  Size consecutive units starting at an Instant

EXAMPLE:
  p := periods.YearOf(2014)
  months, _ := p.Subperiods(periods.Month)   // 12 periods, Jan..Dec
  first := p.FirstOf(periods.Month)           // 2014-01
  at := p.StartInstant()                      // 2014-01-01

SEE ALSO:
  - period.go: Period algebra
  - legislation/: resolves parameters at an Instant
*/
package periods

import (
	"fmt"
	"time"
)

// =============================================================================
// UNIT - Period granularity
// =============================================================================

// Unit is the granularity of a period. Finer units compare lower.
type Unit int

const (
	Day Unit = iota + 1
	Month
	Year
)

func (u Unit) String() string {
	switch u {
	case Day:
		return "day"
	case Month:
		return "month"
	case Year:
		return "year"
	default:
		return fmt.Sprintf("unit(%d)", int(u))
	}
}

// Valid reports whether u is one of Day, Month, Year.
func (u Unit) Valid() bool { return u >= Day && u <= Year }

// FinerThan reports whether u is a strictly finer granularity than other.
func (u Unit) FinerThan(other Unit) bool { return u < other }

// ParseUnit is the inverse of Unit.String.
func ParseUnit(s string) (Unit, error) {
	switch s {
	case "day":
		return Day, nil
	case "month":
		return Month, nil
	case "year":
		return Year, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidUnit, s)
	}
}

// =============================================================================
// INSTANT - A calendar date
// =============================================================================

// Instant is a calendar date. The zero value is used as "unbounded" wherever
// a bound is optional (dated formula validity, for instance).
type Instant struct {
	Year  int
	Month time.Month
	Day   int
}

// NewInstant normalizes its arguments the way time.Date does, so
// NewInstant(2014, 2, 31) is 2014-03-03.
func NewInstant(year int, month time.Month, day int) Instant {
	return FromTime(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// FromTime drops the time of day of t.
func FromTime(t time.Time) Instant {
	return Instant{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// ParseInstant parses the ISO form "2006-01-02".
func ParseInstant(s string) (Instant, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Instant{}, fmt.Errorf("%w: %q", ErrInvalidInstant, s)
	}
	return FromTime(t), nil
}

// MustParseInstant is ParseInstant for literals in tables and tests.
func MustParseInstant(s string) Instant {
	i, err := ParseInstant(s)
	if err != nil {
		panic(err)
	}
	return i
}

func (i Instant) Time() time.Time { return time.Date(i.Year, i.Month, i.Day, 0, 0, 0, 0, time.UTC) }
func (i Instant) IsZero() bool    { return i == Instant{} }

// Comparison
func (i Instant) Before(other Instant) bool        { return i.Compare(other) < 0 }
func (i Instant) After(other Instant) bool         { return i.Compare(other) > 0 }
func (i Instant) Equal(other Instant) bool         { return i == other }
func (i Instant) BeforeOrEqual(other Instant) bool { return i.Compare(other) <= 0 }
func (i Instant) AfterOrEqual(other Instant) bool  { return i.Compare(other) >= 0 }

// Compare returns -1, 0 or +1.
func (i Instant) Compare(other Instant) int {
	switch {
	case i.Year != other.Year:
		return sign(i.Year - other.Year)
	case i.Month != other.Month:
		return sign(int(i.Month) - int(other.Month))
	default:
		return sign(i.Day - other.Day)
	}
}

// Arithmetic
func (i Instant) AddDays(n int) Instant  { return FromTime(i.Time().AddDate(0, 0, n)) }
func (i Instant) AddYears(n int) Instant { return i.AddMonths(12 * n) }

// AddMonths moves by whole months. The day is clamped to the end of the
// target month instead of overflowing into the next one.
func (i Instant) AddMonths(n int) Instant {
	first := time.Date(i.Year, i.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	day := i.Day
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return Instant{Year: first.Year(), Month: first.Month(), Day: day}
}

// Offset moves the instant by n units.
func (i Instant) Offset(n int, unit Unit) Instant {
	switch unit {
	case Day:
		return i.AddDays(n)
	case Month:
		return i.AddMonths(n)
	default:
		return i.AddYears(n)
	}
}

// FirstOf aligns the instant down to the start of its unit:
// 2014-03-15 FirstOf(Month) is 2014-03-01, FirstOf(Year) is 2014-01-01.
func (i Instant) FirstOf(unit Unit) Instant {
	switch unit {
	case Month:
		return Instant{Year: i.Year, Month: i.Month, Day: 1}
	case Year:
		return Instant{Year: i.Year, Month: time.January, Day: 1}
	default:
		return i
	}
}

// LastOf returns the last day of the unit containing the instant.
func (i Instant) LastOf(unit Unit) Instant {
	switch unit {
	case Month:
		return Instant{Year: i.Year, Month: i.Month, Day: daysIn(i.Year, i.Month)}
	case Year:
		return Instant{Year: i.Year, Month: time.December, Day: 31}
	default:
		return i
	}
}

// Period builds the period of the given unit and size starting at i.
func (i Instant) Period(unit Unit, size int) Period {
	return Period{Unit: unit, Start: i, Size: size}
}

func (i Instant) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", i.Year, int(i.Month), i.Day)
}

// MarshalText lets instants be used as JSON strings and map keys.
func (i Instant) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

func (i *Instant) UnmarshalText(b []byte) error {
	parsed, err := ParseInstant(string(b))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// DaysBetween counts days from `from` to `to` (negative when to is earlier).
func DaysBetween(from, to Instant) int {
	return int(to.Time().Sub(from.Time()).Hours() / 24)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
