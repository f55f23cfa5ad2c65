package condition

import (
	"time"

	"chronosched/internal/shared"
	"chronosched/internal/timedomain"
)

// ObserveFunc is the observation function behind a Statement. start/end are
// non-nil only when the statement is historical and bound to a period;
// they carry the _start_/_end_ window the scheduler would inject as
// keyword arguments in the source system. The returned float64 is the raw
// numeric observation (a count, for quantitative statements; 1/0 for plain
// boolean statements).
type ObserveFunc func(now time.Time, start, end *time.Time) (float64, error)

// CompareOp is a quantitative comparison operator.
type CompareOp string

const (
	OpEQ CompareOp = "=="
	OpNE CompareOp = "!="
	OpLT CompareOp = "<"
	OpGT CompareOp = ">"
	OpLE CompareOp = "<="
	OpGE CompareOp = ">="
)

// Comparison is a threshold attached to a quantitative statement by one of
// its comparison-operator builders.
type Comparison struct {
	Op        CompareOp
	Threshold float64
}

// Statement is a named condition leaf bound to an observation function.
// It is a value type: every fluent builder (Between, Past, In, In Cycle,
// comparisons) returns a new, independent Statement rather than mutating
// the receiver, matching the "clone on each builder call" contract.
type Statement struct {
	Name         string
	Historical   bool
	Quantitative bool
	CycleWindow  bool
	Period       timedomain.Period
	Cycle        CycleSource // only consulted when CycleWindow is set
	Observe      ObserveFunc
	Cmp          *Comparison
}

// Evaluate implements Condition. Observation failures (a missing history
// entry, an out-of-range index, etc.) are treated as false; no error
// escapes Evaluate, matching the "condition evaluation error" taxonomy.
func (s Statement) Evaluate(now time.Time) bool {
	var start, end *time.Time
	if s.CycleWindow {
		if s.Cycle == nil {
			return false
		}
		cs := s.Cycle.CycleStart()
		start, end = &cs, &now
	} else if s.Historical && s.Period != nil {
		iv := s.Period.Rollback(now)
		l, r := iv.Left, iv.Right
		start, end = &l, &r
	}

	val, err := s.Observe(now, start, end)
	if err != nil {
		return false
	}
	if s.Cmp != nil {
		return compare(val, *s.Cmp)
	}
	if s.Quantitative {
		return val > 0
	}
	return val != 0
}

func compare(v float64, c Comparison) bool {
	switch c.Op {
	case OpEQ:
		return v == c.Threshold
	case OpNE:
		return v != c.Threshold
	case OpLT:
		return v < c.Threshold
	case OpGT:
		return v > c.Threshold
	case OpLE:
		return v <= c.Threshold
	case OpGE:
		return v >= c.Threshold
	default:
		return false
	}
}

func (s Statement) withCmp(op CompareOp, threshold float64) Statement {
	clone := s
	cmp := Comparison{Op: op, Threshold: threshold}
	clone.Cmp = &cmp
	return clone
}

// EQ, NE, LT, GT, LE, GE return a new statement carrying the given
// comparison threshold; evaluation then reduces the numeric observation
// through it instead of the default ">0" truthiness rule.
func (s Statement) EQ(v float64) Statement { return s.withCmp(OpEQ, v) }
func (s Statement) NE(v float64) Statement { return s.withCmp(OpNE, v) }
func (s Statement) LT(v float64) Statement { return s.withCmp(OpLT, v) }
func (s Statement) GT(v float64) Statement { return s.withCmp(OpGT, v) }
func (s Statement) LE(v float64) Statement { return s.withCmp(OpLE, v) }
func (s Statement) GE(v float64) Statement { return s.withCmp(OpGE, v) }

// Between binds the statement to a period inferred from the shape of a/b
// (time-of-day, day-of-week, or day-of-month), making it historical.
func (s Statement) Between(a, b string) Statement {
	p, err := timedomain.ParseBetween(a, b)
	if err != nil {
		// Keep the clone inert (always false) rather than panicking: a
		// malformed literal is a construction-time mistake, and Evaluate
		// never surfaces errors per the condition-evaluation-error rule.
		tagged := shared.MarkKind(err, shared.KindConditionEval)
		clone := s
		clone.Historical = true
		clone.Observe = func(time.Time, *time.Time, *time.Time) (float64, error) { return 0, tagged }
		return clone
	}
	clone := s
	clone.Historical = true
	clone.Period = p
	return clone
}

// Past binds the statement to a sliding "last d" window.
func (s Statement) Past(d time.Duration) Statement {
	clone := s
	clone.Historical = true
	clone.Period = timedomain.Past(d)
	return clone
}

// In binds the statement to a named window ("today", "hour", "week", ...).
func (s Statement) In(name string) Statement {
	p, err := timedomain.Named(name)
	if err != nil {
		tagged := shared.MarkKind(err, shared.KindConditionEval)
		clone := s
		clone.Historical = true
		clone.Observe = func(time.Time, *time.Time, *time.Time) (float64, error) { return 0, tagged }
		return clone
	}
	clone := s
	clone.Historical = true
	clone.Period = p
	return clone
}

// InCycle binds the statement to the scheduler's current cycle window
// ([cycle start, now)). Requires the statement to carry a CycleSource
// (TaskStartedCycle sets one; TaskStarted/TaskFinished do not); without it
// the statement evaluates false.
func (s Statement) InCycle() Statement {
	clone := s
	clone.Historical = true
	clone.CycleWindow = true
	return clone
}
