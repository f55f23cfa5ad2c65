// Package sink defines the history-sink seam the core spec leaves as an
// external collaborator ("log formatting/persistence backends"): the
// scheduler only depends on this interface, never on a concrete backend.
package sink

import (
	"context"

	"chronosched/internal/logrecord"
)

// Sink receives a copy of every lifecycle record the scheduler appends to
// a task's history, in the order the scheduler thread drains/produces
// them. Implementations must not block the scheduler loop for long;
// slow sinks should buffer internally.
type Sink interface {
	Write(ctx context.Context, rec logrecord.Record) error
}

// Fanout broadcasts each record to every sink, passing any individual sink
// error to OnErr (when set) instead of failing, so one failing backend
// does not stop the others from receiving the record.
type Fanout struct {
	Sinks []Sink
	OnErr func(sink Sink, rec logrecord.Record, err error)
}

func (f *Fanout) Write(ctx context.Context, rec logrecord.Record) error {
	for _, s := range f.Sinks {
		if err := s.Write(ctx, rec); err != nil && f.OnErr != nil {
			f.OnErr(s, rec, err)
		}
	}
	return nil
}
