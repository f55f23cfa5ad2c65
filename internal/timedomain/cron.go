package timedomain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// fieldSpec matches a single cron field: "*", an integer, a range "a-b",
// or a comma list of those, with symbolic names resolved by the caller
// before reaching here.
type fieldSpec struct {
	wildcard bool
	set      map[int]struct{}
}

func (f fieldSpec) match(v int) bool {
	if f.wildcard {
		return true
	}
	_, ok := f.set[v]
	return ok
}

// parseField parses one comma-separated cron field. resolve converts a
// symbolic token (month/weekday name) to its integer value; it may be nil
// for purely numeric fields.
func parseField(raw string, min, max int, resolve func(string) (int, bool)) (fieldSpec, error) {
	raw = strings.TrimSpace(raw)
	if raw == "*" {
		return fieldSpec{wildcard: true}, nil
	}
	set := make(map[int]struct{})
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return fieldSpec{}, fmt.Errorf("timedomain: empty cron field term in %q", raw)
		}
		if strings.Contains(part, "-") {
			bounds := strings.SplitN(part, "-", 2)
			lo, err := resolveToken(bounds[0], resolve)
			if err != nil {
				return fieldSpec{}, err
			}
			hi, err := resolveToken(bounds[1], resolve)
			if err != nil {
				return fieldSpec{}, err
			}
			if lo > hi {
				return fieldSpec{}, fmt.Errorf("timedomain: invalid cron range %q", part)
			}
			for v := lo; v <= hi; v++ {
				set[v] = struct{}{}
			}
			continue
		}
		v, err := resolveToken(part, resolve)
		if err != nil {
			return fieldSpec{}, err
		}
		set[v] = struct{}{}
	}
	for v := range set {
		if v < min || v > max {
			return fieldSpec{}, fmt.Errorf("timedomain: cron field value %d out of range [%d,%d]", v, min, max)
		}
	}
	return fieldSpec{set: set}, nil
}

func resolveToken(tok string, resolve func(string) (int, bool)) (int, error) {
	if n, err := strconv.Atoi(tok); err == nil {
		return n, nil
	}
	if resolve != nil {
		if v, ok := resolve(strings.ToLower(tok)); ok {
			return v, nil
		}
	}
	return 0, fmt.Errorf("timedomain: unrecognized cron token %q", tok)
}

func monthResolve(tok string) (int, bool) {
	m, ok := monthNames[tok]
	return int(m), ok
}

func weekdayResolve(tok string) (int, bool) {
	d, ok := weekdayNames[tok]
	return int(d), ok
}

// Crontab is a period resolved from five whitespace-separated fields
// "min hour dom month dow", implementing the dom∨dow "OR" rule from spec.
type Crontab struct {
	spec               string
	minute, hour       fieldSpec
	dom, month, dow    fieldSpec
	domWild, dowWild   bool
}

// ParseCrontab parses a standard five-field cron expression. Field parsing
// is case-insensitive for month/weekday symbols and accepts comma lists and
// "a-b" ranges; robfig/cron/v3 is not used here because its Schedule
// interface exposes only Next (no Prev), which cannot serve the rollback
// half of the Period contract (see DESIGN.md).
func ParseCrontab(spec string) (*Crontab, error) {
	fields := strings.Fields(spec)
	if len(fields) != 5 {
		return nil, fmt.Errorf("timedomain: crontab %q must have 5 fields, got %d", spec, len(fields))
	}
	minute, err := parseField(fields[0], 0, 59, nil)
	if err != nil {
		return nil, err
	}
	hour, err := parseField(fields[1], 0, 23, nil)
	if err != nil {
		return nil, err
	}
	dom, err := parseField(fields[2], 1, 31, nil)
	if err != nil {
		return nil, err
	}
	month, err := parseField(fields[3], 1, 12, monthResolve)
	if err != nil {
		return nil, err
	}
	dow, err := parseField(fields[4], 0, 6, weekdayResolve)
	if err != nil {
		return nil, err
	}
	return &Crontab{
		spec: spec, minute: minute, hour: hour, dom: dom, month: month, dow: dow,
		domWild: dom.wildcard, dowWild: dow.wildcard,
	}, nil
}

// String returns the original crontab expression (parse→serialize→parse
// round-trips as the identical spec string, and therefore an equivalent
// period, since parsing is deterministic).
func (c *Crontab) String() string { return c.spec }

func (c *Crontab) matches(t time.Time) bool {
	if !c.minute.match(t.Minute()) {
		return false
	}
	if !c.hour.match(t.Hour()) {
		return false
	}
	if !c.month.match(int(t.Month())) {
		return false
	}
	switch {
	case c.domWild && c.dowWild:
		return true
	case c.domWild:
		return c.dow.match(int(t.Weekday()))
	case c.dowWild:
		return c.dom.match(t.Day())
	default:
		return c.dom.match(t.Day()) || c.dow.match(int(t.Weekday()))
	}
}

const maxCronSearchMinutes = 5 * 366 * 24 * 60

// Rollforward returns the next (or current, if t falls inside one) matching
// one-minute slot as a half-open interval.
func (c *Crontab) Rollforward(t time.Time) Interval {
	cur := t.Truncate(time.Minute)
	if c.matches(cur) {
		right := cur.Add(time.Minute)
		if !t.After(right) {
			left := t
			if left.Before(cur) {
				left = cur
			}
			return Interval{Left: left, Right: right, Closed: ClosedLeft}
		}
	}
	cand := cur.Add(time.Minute)
	for i := 0; i < maxCronSearchMinutes; i++ {
		if c.matches(cand) {
			return Interval{Left: cand, Right: cand.Add(time.Minute), Closed: ClosedLeft}
		}
		cand = cand.Add(time.Minute)
	}
	return Interval{Left: maxTime, Right: maxTime, Closed: ClosedBoth}
}

// Rollback returns the current (if t falls inside one) or previous
// matching one-minute slot as a half-open interval.
func (c *Crontab) Rollback(t time.Time) Interval {
	cur := t.Truncate(time.Minute)
	if c.matches(cur) {
		return Interval{Left: cur, Right: t, Closed: ClosedLeft}
	}
	cand := cur.Add(-time.Minute)
	for i := 0; i < maxCronSearchMinutes; i++ {
		if c.matches(cand) {
			return Interval{Left: cand, Right: cand.Add(time.Minute), Closed: ClosedLeft}
		}
		cand = cand.Add(-time.Minute)
	}
	return Interval{Left: minTime, Right: minTime, Closed: ClosedBoth}
}
