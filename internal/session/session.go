// Package session implements the process-wide registry of tasks, the
// shared global parameter mapping, and the aggregated, time-ordered log
// the core spec assigns to the Session component.
package session

import (
	"sort"
	"sync"

	"chronosched/internal/logrecord"
	"chronosched/internal/tasklib"
)

// Session owns a set of named tasks and a global parameter mapping shared
// by every task invocation. A Scheduler borrows a Session's tasks for the
// duration of a run; Conditions and Periods built against a Session
// continue to read it directly (they are immutable values sharing the
// Session, not copies of it).
type Session struct {
	mu     sync.RWMutex
	tasks  map[string]*tasklib.Task
	order  []string // registration order, for deterministic iteration ties
	params map[string]any
}

// New creates an empty Session.
func New() *Session {
	return &Session{
		tasks:  make(map[string]*tasklib.Task),
		params: make(map[string]any),
	}
}

// Reset clears the task registry, global parameters, and (transitively,
// since history lives on the tasks themselves) the aggregated log.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]*tasklib.Task)
	s.order = nil
	s.params = make(map[string]any)
}

// Register adds a task to the session, keyed by its name.
func (s *Session) Register(t *tasklib.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[t.Name()]; !exists {
		s.order = append(s.order, t.Name())
	}
	s.tasks[t.Name()] = t
}

// Unregister removes a task by name.
func (s *Session) Unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[name]; !ok {
		return
	}
	delete(s.tasks, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Task looks a task up by name.
func (s *Session) Task(name string) (*tasklib.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[name]
	return t, ok
}

// Tasks returns every registered task in registration order.
func (s *Session) Tasks() []*tasklib.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*tasklib.Task, 0, len(s.order))
	for _, n := range s.order {
		out = append(out, s.tasks[n])
	}
	return out
}

// SetParam sets a global parameter visible to every task invocation that
// declares it (and isn't shadowed by a local parameter or a call-time
// value).
func (s *Session) SetParam(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params[name] = value
}

// GlobalParams returns a copy of the global parameter mapping.
func (s *Session) GlobalParams() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.params))
	for k, v := range s.params {
		out[k] = v
	}
	return out
}

// History implements condition.HistorySource for a single task's records.
func (s *Session) History(taskName string) []logrecord.Record {
	t, ok := s.Task(taskName)
	if !ok {
		return nil
	}
	return t.GetHistory()
}

// GetTaskLog returns the time-ordered merge of every registered task's
// history.
func (s *Session) GetTaskLog() []logrecord.Record {
	tasks := s.Tasks()
	var merged []logrecord.Record
	for _, t := range tasks {
		merged = append(merged, t.GetHistory()...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].At.Before(merged[j].At)
	})
	return merged
}
