package timedomain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Period is a calendar predicate producing Intervals via Rollforward and
// Rollback, per spec: Rollforward returns the smallest occurrence-or-tail
// interval I with t <= I.Right; Rollback returns the largest occurrence-or-
// head interval I with I.Left <= t.
type Period interface {
	Rollforward(t time.Time) Interval
	Rollback(t time.Time) Interval
}

// Contains reports whether t falls within the period, defined as
// t ∈ Rollforward(t).
func Contains(p Period, t time.Time) bool {
	return p.Rollforward(t).Contains(t)
}

// alwaysPeriod is the universal period: every instant is contained in it.
type alwaysPeriod struct{}

// Always is the universal period.
var Always Period = alwaysPeriod{}

func (alwaysPeriod) Rollforward(t time.Time) Interval {
	return Interval{Left: t, Right: maxTime, Closed: ClosedBoth}
}

func (alwaysPeriod) Rollback(t time.Time) Interval {
	return Interval{Left: minTime, Right: t, Closed: ClosedBoth}
}

var (
	minTime = time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)
	maxTime = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
)

// dailyField describes a sub-day occurrence defined by start/end offsets
// that repeats once per calendar day (TimeOfDay), once per hour (TimeOfHour)
// or once per minute (TimeOfMinute), depending on unit.
type dailyField struct {
	unit       time.Duration // granularity the field repeats at (time.Hour, time.Minute, 24*time.Hour)
	start, end time.Duration // offsets within one unit-cycle
}

func newDailyField(unit, start, end time.Duration) dailyField {
	return dailyField{unit: unit, start: start, end: end}
}

func (f dailyField) cycleStart(t time.Time) time.Time {
	return t.Truncate(f.unit)
}

func (f dailyField) occurrence(cycleStart time.Time) Interval {
	return Interval{Left: cycleStart.Add(f.start), Right: cycleStart.Add(f.end), Closed: ClosedLeft}
}

func (f dailyField) Rollforward(t time.Time) Interval {
	cs := f.cycleStart(t)
	occ := f.occurrence(cs)
	if occ.Contains(t) {
		return Interval{Left: t, Right: occ.Right, Closed: ClosedLeft}
	}
	if t.Before(occ.Left) {
		return occ
	}
	next := f.occurrence(cs.Add(f.unit))
	return next
}

func (f dailyField) Rollback(t time.Time) Interval {
	cs := f.cycleStart(t)
	occ := f.occurrence(cs)
	if occ.Contains(t) || t.Equal(occ.Right) {
		return Interval{Left: occ.Left, Right: t, Closed: ClosedLeft}
	}
	if !t.Before(occ.Right) {
		return occ
	}
	prev := f.occurrence(cs.Add(-f.unit))
	return prev
}

// TimeOfMinute is "second s1 to s2 of every minute".
func TimeOfMinute(start, end string) (Period, error) {
	s, err := parseSeconds(start)
	if err != nil {
		return nil, err
	}
	e, err := parseSeconds(end)
	if err != nil {
		return nil, err
	}
	return newDailyField(time.Minute, s, e), nil
}

// TimeOfHour is "minute m1 to m2 of every hour".
func TimeOfHour(start, end string) (Period, error) {
	s, err := parseMinutes(start)
	if err != nil {
		return nil, err
	}
	e, err := parseMinutes(end)
	if err != nil {
		return nil, err
	}
	return newDailyField(time.Hour, s, e), nil
}

// TimeOfDay is "HH:MM to HH:MM of every day".
func TimeOfDay(start, end string) (Period, error) {
	s, err := parseClock(start)
	if err != nil {
		return nil, err
	}
	e, err := parseClock(end)
	if err != nil {
		return nil, err
	}
	return newDailyField(24*time.Hour, s, e), nil
}

func parseClock(s string) (time.Duration, error) {
	parts := strings.SplitN(s, ":", 2)
	hh, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("timedomain: invalid clock %q: %w", s, err)
	}
	mm := 0
	if len(parts) == 2 {
		mm, err = strconv.Atoi(parts[1])
		if err != nil {
			return 0, fmt.Errorf("timedomain: invalid clock %q: %w", s, err)
		}
	}
	return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute, nil
}

func parseMinutes(s string) (time.Duration, error) {
	m, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("timedomain: invalid minute offset %q: %w", s, err)
	}
	return time.Duration(m) * time.Minute, nil
}

func parseSeconds(s string) (time.Duration, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("timedomain: invalid second offset %q: %w", s, err)
	}
	return time.Duration(v) * time.Second, nil
}

// weekdayField implements TimeOfWeek: occurrence spans [startDay, endDay]
// within the Sunday-anchored week.
type weekdayField struct {
	start, end time.Weekday
}

// TimeOfWeek is "day d1 to d2 of every week" (e.g. "Mon" to "Fri").
func TimeOfWeek(start, end string) (Period, error) {
	s, err := ParseWeekday(start)
	if err != nil {
		return nil, err
	}
	e, err := ParseWeekday(end)
	if err != nil {
		return nil, err
	}
	return weekdayField{start: s, end: e}, nil
}

func weekStart(t time.Time) time.Time {
	d := t.Truncate(24 * time.Hour)
	return d.AddDate(0, 0, -int(d.Weekday()))
}

func (f weekdayField) occurrence(anchor time.Time) Interval {
	ws := weekStart(anchor)
	left := ws.AddDate(0, 0, int(f.start))
	span := int(f.end-f.start) + 1
	if span <= 0 {
		span += 7
	}
	right := left.AddDate(0, 0, span)
	return Interval{Left: left, Right: right, Closed: ClosedLeft}
}

func (f weekdayField) Rollforward(t time.Time) Interval {
	occ := f.occurrence(t)
	if occ.Contains(t) {
		return Interval{Left: t, Right: occ.Right, Closed: ClosedLeft}
	}
	if t.Before(occ.Left) {
		return occ
	}
	return f.occurrence(occ.Left.AddDate(0, 0, 7))
}

func (f weekdayField) Rollback(t time.Time) Interval {
	occ := f.occurrence(t)
	if occ.Contains(t) || t.Equal(occ.Right) {
		return Interval{Left: occ.Left, Right: t, Closed: ClosedLeft}
	}
	if !t.Before(occ.Right) {
		return occ
	}
	return f.occurrence(occ.Left.AddDate(0, 0, -7))
}

// monthDayField implements TimeOfMonth: "day d1 to d2 of every month".
type monthDayField struct {
	start, end int
}

// TimeOfMonth accepts day numbers such as "1." or "15." (a trailing dot is
// tolerated, matching the statement-builder's day-of-month sniffing).
func TimeOfMonth(start, end string) (Period, error) {
	s, err := ParseMonthDay(start)
	if err != nil {
		return nil, err
	}
	e, err := ParseMonthDay(end)
	if err != nil {
		return nil, err
	}
	return monthDayField{start: s, end: e}, nil
}

func (f monthDayField) occurrence(anchor time.Time) Interval {
	monthStart := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, anchor.Location())
	left := monthStart.AddDate(0, 0, f.start-1)
	span := f.end - f.start + 1
	if span <= 0 {
		span += daysIn(anchor.Year(), anchor.Month())
	}
	right := left.AddDate(0, 0, span)
	return Interval{Left: left, Right: right, Closed: ClosedLeft}
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (f monthDayField) Rollforward(t time.Time) Interval {
	occ := f.occurrence(t)
	if occ.Contains(t) {
		return Interval{Left: t, Right: occ.Right, Closed: ClosedLeft}
	}
	if t.Before(occ.Left) {
		return occ
	}
	nextMonth := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
	return f.occurrence(nextMonth)
}

func (f monthDayField) Rollback(t time.Time) Interval {
	occ := f.occurrence(t)
	if occ.Contains(t) || t.Equal(occ.Right) {
		return Interval{Left: occ.Left, Right: t, Closed: ClosedLeft}
	}
	if !t.Before(occ.Right) {
		return occ
	}
	prevMonth := time.Date(t.Year(), t.Month()-1, 1, 0, 0, 0, 0, t.Location())
	return f.occurrence(prevMonth)
}

// monthField implements TimeOfYear: "month m1 to m2 of every year".
type monthField struct {
	start, end time.Month
}

// TimeOfYear accepts month names/numbers such as "JAN" or "6".
func TimeOfYear(start, end string) (Period, error) {
	s, err := ParseMonth(start)
	if err != nil {
		return nil, err
	}
	e, err := ParseMonth(end)
	if err != nil {
		return nil, err
	}
	return monthField{start: s, end: e}, nil
}

func (f monthField) occurrence(anchor time.Time) Interval {
	yearStart := time.Date(anchor.Year(), 1, 1, 0, 0, 0, 0, anchor.Location())
	left := yearStart.AddDate(0, int(f.start-1), 0)
	span := int(f.end-f.start) + 1
	if span <= 0 {
		span += 12
	}
	right := left.AddDate(0, span, 0)
	return Interval{Left: left, Right: right, Closed: ClosedLeft}
}

func (f monthField) Rollforward(t time.Time) Interval {
	occ := f.occurrence(t)
	if occ.Contains(t) {
		return Interval{Left: t, Right: occ.Right, Closed: ClosedLeft}
	}
	if t.Before(occ.Left) {
		return occ
	}
	return f.occurrence(time.Date(t.Year()+1, 1, 1, 0, 0, 0, 0, t.Location()))
}

func (f monthField) Rollback(t time.Time) Interval {
	occ := f.occurrence(t)
	if occ.Contains(t) || t.Equal(occ.Right) {
		return Interval{Left: occ.Left, Right: t, Closed: ClosedLeft}
	}
	if !t.Before(occ.Right) {
		return occ
	}
	return f.occurrence(time.Date(t.Year()-1, 1, 1, 0, 0, 0, 0, t.Location()))
}

// At is sugar for a period with start==end. For "minute" and "hour" the
// occurrence is zero-width; for "day" and "month" it spans that one whole day.
func At(unit string, x string) (Period, error) {
	switch unit {
	case "minute":
		return TimeOfHour(x, x)
	case "hour":
		return TimeOfDay(x, x)
	case "day":
		return TimeOfWeek(x, x)
	case "month":
		return TimeOfMonth(x, x)
	default:
		return nil, fmt.Errorf("timedomain: unknown At unit %q", unit)
	}
}

// andPeriod is the intersection of two periods.
type andPeriod struct{ a, b Period }

// Intersect composes two periods with logical AND (the "&" operator on
// periods). The result's occurrences are the overlap of both inputs'
// occurrences, found by walking forward/backward until the two periods'
// candidate occurrences overlap.
func Intersect(a, b Period) Period {
	return andPeriod{a: a, b: b}
}

const maxSearchSteps = 10000

func (p andPeriod) Rollforward(t time.Time) Interval {
	cursor := t
	for i := 0; i < maxSearchSteps; i++ {
		ia := p.a.Rollforward(cursor)
		ib := p.b.Rollforward(cursor)
		if overlap, ok := ia.Intersect(ib); ok && overlap.Right.After(t) {
			left := overlap.Left
			if left.Before(t) {
				left = t
			}
			return Interval{Left: left, Right: overlap.Right, Closed: ClosedLeft}
		}
		if ia.Right.Before(ib.Right) {
			cursor = ia.Right
		} else {
			cursor = ib.Right
		}
	}
	return Interval{Left: maxTime, Right: maxTime, Closed: ClosedBoth}
}

func (p andPeriod) Rollback(t time.Time) Interval {
	cursor := t
	for i := 0; i < maxSearchSteps; i++ {
		ia := p.a.Rollback(cursor)
		ib := p.b.Rollback(cursor)
		if overlap, ok := ia.Intersect(ib); ok && overlap.Left.Before(t) || (ok && overlap.Left.Equal(t)) {
			right := overlap.Right
			if right.After(t) {
				right = t
			}
			return Interval{Left: overlap.Left, Right: right, Closed: ClosedLeft}
		}
		if ia.Left.After(ib.Left) {
			cursor = ia.Left.Add(-time.Nanosecond)
		} else {
			cursor = ib.Left.Add(-time.Nanosecond)
		}
	}
	return Interval{Left: minTime, Right: minTime, Closed: ClosedBoth}
}

// orPeriod is the union of two periods, exposed for general period
// composition with "|". Crontab's dom∨dow rule does not use it; that rule
// is a boolean OR inside Crontab.matches.
type orPeriod struct{ a, b Period }

// Union composes two periods with logical OR.
func Union(a, b Period) Period {
	return orPeriod{a: a, b: b}
}

func (p orPeriod) Rollforward(t time.Time) Interval {
	ia := p.a.Rollforward(t)
	ib := p.b.Rollforward(t)
	if ia.Left.Before(ib.Left) || ia.Left.Equal(ib.Left) {
		return ia
	}
	return ib
}

func (p orPeriod) Rollback(t time.Time) Interval {
	ia := p.a.Rollback(t)
	ib := p.b.Rollback(t)
	if ia.Right.After(ib.Right) || ia.Right.Equal(ib.Right) {
		return ia
	}
	return ib
}

// PastPeriod is the relative window "the last d before now", used by the
// Statement.Past fluent builder. Unlike the calendar periods above its
// occurrence is anchored to the instant being rolled, not to a fixed grid.
type PastPeriod struct{ D time.Duration }

// Past returns a period representing a sliding window of duration d ending
// at the instant it is rolled against.
func Past(d time.Duration) Period {
	return PastPeriod{D: d}
}

func (p PastPeriod) Rollforward(t time.Time) Interval {
	return Interval{Left: t, Right: t.Add(p.D), Closed: ClosedBoth}
}

func (p PastPeriod) Rollback(t time.Time) Interval {
	return Interval{Left: t.Add(-p.D), Right: t, Closed: ClosedBoth}
}

// Named resolves named windows used by Statement.In, e.g. "today", "hour".
func Named(name string) (Period, error) {
	switch strings.ToLower(name) {
	case "minute":
		return unitPeriod{unit: time.Minute}, nil
	case "hour":
		return unitPeriod{unit: time.Hour}, nil
	case "today", "day":
		return unitPeriod{unit: 24 * time.Hour}, nil
	case "week":
		return weekdayField{start: time.Sunday, end: time.Saturday}, nil
	case "month":
		return calendarMonthPeriod{}, nil
	case "year":
		return monthField{start: time.January, end: time.December}, nil
	default:
		return nil, fmt.Errorf("timedomain: unknown named window %q", name)
	}
}

// unitPeriod is a period whose occurrences are unit-aligned calendar
// buckets (every truncated minute/hour/day is its own occurrence).
type unitPeriod struct{ unit time.Duration }

func (p unitPeriod) Rollforward(t time.Time) Interval {
	cs := t.Truncate(p.unit)
	right := cs.Add(p.unit)
	if t.Equal(cs) {
		return Interval{Left: t, Right: right, Closed: ClosedLeft}
	}
	return Interval{Left: t, Right: right, Closed: ClosedLeft}
}

func (p unitPeriod) Rollback(t time.Time) Interval {
	cs := t.Truncate(p.unit)
	return Interval{Left: cs, Right: t, Closed: ClosedLeft}
}

// calendarMonthPeriod treats each calendar month as one occurrence.
type calendarMonthPeriod struct{}

func (calendarMonthPeriod) Rollforward(t time.Time) Interval {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	end := start.AddDate(0, 1, 0)
	return Interval{Left: t, Right: end, Closed: ClosedLeft}
}

func (calendarMonthPeriod) Rollback(t time.Time) Interval {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return Interval{Left: start, Right: t, Closed: ClosedLeft}
}
