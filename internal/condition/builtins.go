package condition

import (
	"time"

	"chronosched/internal/logrecord"
	"chronosched/internal/timedomain"
)

// HistorySource answers "what did this task do", letting TaskStarted and
// TaskFinished count lifecycle records without the condition package
// importing the session/task layers (which depend on condition).
type HistorySource interface {
	History(taskName string) []logrecord.Record
}

// CycleSource answers questions about the scheduler's own run, for
// SchedulerStarted, SchedulerCycles, and Statement.InCycle.
type CycleSource interface {
	CycleStart() time.Time
	Cycles() int
}

func countActions(recs []logrecord.Record, match func(logrecord.Action) bool, start, end *time.Time) float64 {
	var n float64
	for _, r := range recs {
		if !match(r.Action) {
			continue
		}
		if start != nil && r.At.Before(*start) {
			continue
		}
		if end != nil && !r.At.Before(*end) {
			continue
		}
		n++
	}
	return n
}

// TaskStarted is a quantitative statement counting "run" events of the
// named task. With no period bound to it (the default), it counts over
// the task's entire history; .Past/.Between/.In/.InCycle narrow that to a
// window.
func TaskStarted(src HistorySource, taskName string) Statement {
	return Statement{
		Name:         "TaskStarted",
		Quantitative: true,
		Observe: func(now time.Time, start, end *time.Time) (float64, error) {
			return countActions(src.History(taskName), func(a logrecord.Action) bool {
				return a == logrecord.ActionRun
			}, start, end), nil
		},
	}
}

// TaskFinished is a quantitative statement counting terminal events
// (success, fail, or terminate) of the named task.
func TaskFinished(src HistorySource, taskName string) Statement {
	return Statement{
		Name:         "TaskFinished",
		Quantitative: true,
		Observe: func(now time.Time, start, end *time.Time) (float64, error) {
			return countActions(src.History(taskName), logrecord.Action.Terminal, start, end), nil
		},
	}
}

// TaskStartedCycle is TaskStarted pre-bound to the current scheduler cycle
// (sugar for TaskStarted(src, name).InCycle(), with the CycleSource wired
// in so InCycle has something to read).
func TaskStartedCycle(src HistorySource, cyc CycleSource, taskName string) Statement {
	s := TaskStarted(src, taskName)
	s.Cycle = cyc
	return s.InCycle()
}

// SchedulerStarted is true while the scheduler's current cycle start lies
// within period's rollback interval from now — i.e. the scheduler (re)began
// a cycle within that window.
func SchedulerStarted(src CycleSource, period timedomain.Period) Statement {
	return Statement{
		Name: "SchedulerStarted",
		Observe: func(now time.Time, _, _ *time.Time) (float64, error) {
			iv := period.Rollback(now)
			if iv.Contains(src.CycleStart()) {
				return 1, nil
			}
			return 0, nil
		},
	}
}

// SchedulerCycles is a quantitative statement observing the number of
// completed scheduler cycles.
func SchedulerCycles(src CycleSource) Statement {
	return Statement{
		Name:         "SchedulerCycles",
		Quantitative: true,
		Observe: func(now time.Time, _, _ *time.Time) (float64, error) {
			return float64(src.Cycles()), nil
		},
	}
}
