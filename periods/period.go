package periods

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidUnit    = errors.New("invalid period unit")
	ErrInvalidInstant = errors.New("invalid instant")
	ErrInvalidPeriod  = errors.New("invalid period")
	ErrInvalidSize    = errors.New("invalid period size: must be >= 1")

	// ErrCoarserUnit is returned by Subperiods when asked to decompose a
	// period into units coarser than its own.
	ErrCoarserUnit = errors.New("cannot decompose period into a coarser unit")
)

// =============================================================================
// PERIOD - Size consecutive units starting at Start
// =============================================================================

// Period is a contiguous run of Size units starting at Start.
// Periods are compared structurally: two periods are equal iff unit, start
// and size match, which makes them usable as map keys.
//
// Examples:
//   - YearOf(2014):           {Year, 2014-01-01, 1}
//   - MonthOf(2014, March):   {Month, 2014-03-01, 1}
//   - a quarter:              {Month, 2014-01-01, 3}
type Period struct {
	Unit  Unit
	Start Instant
	Size  int
}

// New builds a period and checks its invariants.
func New(unit Unit, start Instant, size int) (Period, error) {
	if !unit.Valid() {
		return Period{}, fmt.Errorf("%w: %d", ErrInvalidUnit, int(unit))
	}
	if size < 1 {
		return Period{}, fmt.Errorf("%w: got %d", ErrInvalidSize, size)
	}
	return Period{Unit: unit, Start: start, Size: size}, nil
}

// Constructors
func DayOf(year int, month time.Month, day int) Period {
	return Period{Unit: Day, Start: NewInstant(year, month, day), Size: 1}
}

func MonthOf(year int, month time.Month) Period {
	return Period{Unit: Month, Start: NewInstant(year, month, 1), Size: 1}
}

func YearOf(year int) Period {
	return Period{Unit: Year, Start: NewInstant(year, time.January, 1), Size: 1}
}

// StartInstant returns the first day of the period.
func (p Period) StartInstant() Instant { return p.Start }

// StopInstant returns the last day of the period, inclusive.
func (p Period) StopInstant() Instant {
	return p.Start.Offset(p.Size, p.Unit).AddDays(-1)
}

// FirstOf returns the size-1 period of the given unit whose start is the
// unit-aligned floor of p.Start. Most monthly formulas begin with
// period.FirstOf(periods.Month) whatever granularity they were asked for.
func (p Period) FirstOf(unit Unit) Period {
	return Period{Unit: unit, Start: p.Start.FirstOf(unit), Size: 1}
}

// Subperiods decomposes p into consecutive size-1 periods of the given unit,
// in chronological order. The unit must not be coarser than p.Unit.
//
// The k-th start is offset from p.Start, never from the previous start, so
// a month-end start does not drift: month:2014-01-31:3 gives 01-31, 02-28
// and 03-31.
func (p Period) Subperiods(unit Unit) ([]Period, error) {
	if unit > p.Unit {
		return nil, fmt.Errorf("%w: %s into %s", ErrCoarserUnit, p, unit)
	}
	stop := p.StopInstant()
	var subs []Period
	for k := 0; ; k++ {
		start := p.Start.Offset(k, unit)
		if start.After(stop) {
			break
		}
		subs = append(subs, Period{Unit: unit, Start: start, Size: 1})
	}
	return subs, nil
}

// Count returns how many size-1 periods of the given unit p spans.
func (p Period) Count(unit Unit) (int, error) {
	switch {
	case unit > p.Unit:
		return 0, fmt.Errorf("%w: %s into %s", ErrCoarserUnit, p, unit)
	case unit == p.Unit:
		return p.Size, nil
	case unit == Month && p.Unit == Year:
		return 12 * p.Size, nil
	default:
		return p.Days(), nil
	}
}

// Days returns the number of days in the period.
func (p Period) Days() int {
	return DaysBetween(p.Start, p.StopInstant()) + 1
}

// ContainsInstant returns true if i is within [Start, Stop].
func (p Period) ContainsInstant(i Instant) bool {
	return i.AfterOrEqual(p.Start) && i.BeforeOrEqual(p.StopInstant())
}

// Contains returns true if other lies entirely within p.
func (p Period) Contains(other Period) bool {
	return p.ContainsInstant(other.Start) && p.ContainsInstant(other.StopInstant())
}

// Offset shifts the period by n of its own units, keeping its size.
func (p Period) Offset(n int) Period {
	return Period{Unit: p.Unit, Start: p.Start.Offset(n, p.Unit), Size: p.Size}
}

// Next returns the period immediately following p, of the same shape.
func (p Period) Next() Period { return p.Offset(p.Size) }

// Previous returns the period immediately preceding p, of the same shape.
func (p Period) Previous() Period { return p.Offset(-p.Size) }

// IsZero reports whether p is the zero Period (never a valid period).
func (p Period) IsZero() bool { return p == Period{} }

// String uses the short forms for aligned size-1 periods ("2014",
// "2014-03", "2014-03-01") and "unit:start:size" otherwise.
func (p Period) String() string {
	if p.Size == 1 {
		switch {
		case p.Unit == Year && p.Start == p.Start.FirstOf(Year):
			return strconv.Itoa(p.Start.Year)
		case p.Unit == Month && p.Start.Day == 1:
			return fmt.Sprintf("%04d-%02d", p.Start.Year, int(p.Start.Month))
		case p.Unit == Day:
			return p.Start.String()
		}
	}
	return fmt.Sprintf("%s:%s:%d", p.Unit, p.Start, p.Size)
}

// Parse is the inverse of String. It also accepts "unit:start" with an
// implied size of 1; "year:2014-03" is a year starting in March.
func Parse(s string) (Period, error) {
	if strings.Contains(s, ":") {
		return parseLong(s)
	}
	parts := strings.Split(s, "-")
	nums := make([]int, len(parts))
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
		}
		nums[i] = n
	}
	switch len(nums) {
	case 1:
		return YearOf(nums[0]), nil
	case 2:
		if nums[1] < 1 || nums[1] > 12 {
			return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
		}
		return MonthOf(nums[0], time.Month(nums[1])), nil
	case 3:
		i, err := ParseInstant(s)
		if err != nil {
			return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
		}
		return Period{Unit: Day, Start: i, Size: 1}, nil
	default:
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
}

// MustParse is Parse for literals in tables and tests.
func MustParse(s string) Period {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

func parseLong(s string) (Period, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	unit, err := ParseUnit(parts[0])
	if err != nil {
		return Period{}, err
	}
	startPeriod, err := Parse(parts[1])
	if err != nil {
		return Period{}, err
	}
	size := 1
	if len(parts) == 3 {
		if size, err = strconv.Atoi(parts[2]); err != nil {
			return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
		}
	}
	return New(unit, startPeriod.Start, size)
}

// MarshalText encodes the period with String.
func (p Period) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Period) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
