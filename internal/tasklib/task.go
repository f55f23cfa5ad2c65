// Package tasklib implements the per-task state machine, history and
// parameter resolution described in the core spec: run -> success/fail/
// terminate, the force_state override, and the three execution modes.
package tasklib

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chronosched/internal/condition"
	"chronosched/internal/logrecord"
	"chronosched/internal/shared"
)

// ExecutionMode selects the isolation level a task runs under.
type ExecutionMode string

const (
	ExecMain    ExecutionMode = "main"
	ExecThread  ExecutionMode = "thread"
	ExecProcess ExecutionMode = "process"
)

// ForceState is the tri-valued force override.
type ForceState int

const (
	ForceUnset ForceState = iota
	ForceTrue
	ForceFalse
)

func (f ForceState) String() string {
	switch f {
	case ForceTrue:
		return "true"
	case ForceFalse:
		return "false"
	default:
		return "unset"
	}
}

// Status is the task's lifecycle state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRun       Status = "run"
	StatusSuccess   Status = "success"
	StatusFail      Status = "fail"
	StatusTerminate Status = "terminate"
)

// Params are the resolved call-kwargs handed to a Callable: explicit
// call-time params merged over the task's local parameters merged over the
// session's global parameters, plus any declared special names.
type Params map[string]any

// Callable is a task (or maintainer) body.
type Callable func(ctx context.Context, p Params) error

// SpecialName is a parameter name with scheduler-injected meaning instead
// of a value looked up in the parameter scope.
const (
	SpecialScheduler = "_scheduler_"
	SpecialTask      = "_task_"
	SpecialSession   = "_session_"
	SpecialStart     = "_start_"
	SpecialEnd       = "_end_"
)

// Task is a single schedulable unit of work.
type Task struct {
	mu sync.Mutex

	name       string
	run        Callable
	accepts    []string // parameter names the callable declares, fixed at construction
	parameters map[string]any

	startCond condition.Condition
	endCond   condition.Condition

	execution ExecutionMode
	priority  int
	timeout   time.Duration

	forceState    ForceState
	forcedThisRun bool
	status        Status
	history       []logrecord.Record
}

// Option configures a Task at construction.
type Option func(*Task)

// WithAccepts declares the parameter names the callable accepts; any of
// SpecialScheduler/SpecialTask/SpecialSession/SpecialStart/SpecialEnd are
// injected automatically, everything else is resolved from the merged
// parameter scope.
func WithAccepts(names ...string) Option {
	return func(t *Task) { t.accepts = append([]string(nil), names...) }
}

// WithParameters sets the task's local parameters.
func WithParameters(p map[string]any) Option {
	return func(t *Task) {
		t.parameters = make(map[string]any, len(p))
		for k, v := range p {
			t.parameters[k] = v
		}
	}
}

// WithStartCond sets the eligibility condition (default AlwaysTrue).
func WithStartCond(c condition.Condition) Option {
	return func(t *Task) { t.startCond = c }
}

// WithEndCond sets the early-stop condition checked against running
// executions each poll (default AlwaysFalse).
func WithEndCond(c condition.Condition) Option {
	return func(t *Task) { t.endCond = c }
}

// WithExecution sets the isolation mode (default ExecMain).
func WithExecution(mode ExecutionMode) Option {
	return func(t *Task) { t.execution = mode }
}

// WithPriority sets the priority (lower runs earlier; default 0).
func WithPriority(p int) Option {
	return func(t *Task) { t.priority = p }
}

// WithTimeout sets a per-task timeout overriding the scheduler default.
func WithTimeout(d time.Duration) Option {
	return func(t *Task) { t.timeout = d }
}

// New constructs a Task named name running the given callable.
func New(name string, run Callable, opts ...Option) *Task {
	t := &Task{
		name:      name,
		run:       run,
		startCond: condition.AlwaysTrue,
		endCond:   condition.AlwaysFalse,
		execution: ExecMain,
		status:    StatusIdle,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Task) Name() string                  { return t.name }
func (t *Task) Execution() ExecutionMode       { return t.execution }
func (t *Task) Priority() int                  { return t.priority }
func (t *Task) Timeout() time.Duration         { return t.timeout }
func (t *Task) StartCond() condition.Condition { return t.startCond }
func (t *Task) EndCond() condition.Condition   { return t.endCond }
func (t *Task) Callable() Callable             { return t.run }
func (t *Task) Accepts() []string              { return append([]string(nil), t.accepts...) }

// LocalParameters returns a copy of the task's local parameter mapping.
func (t *Task) LocalParameters() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]any, len(t.parameters))
	for k, v := range t.parameters {
		out[k] = v
	}
	return out
}

// Status returns the current lifecycle status.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// ForceState returns the current force override.
func (t *Task) ForceState() ForceState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.forceState
}

// ForceRun arranges for exactly one forced run, overriding StartCond.
func (t *Task) ForceRun() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forceState = ForceTrue
}

// ForceStop suppresses runs regardless of StartCond until ClearForce or
// ForceRun is called; it does not auto-clear.
func (t *Task) ForceStop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forceState = ForceFalse
}

// ClearForce resets the force override to unset.
func (t *Task) ClearForce() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forceState = ForceUnset
}

// GetHistory returns the ordered sequence of this task's history records.
func (t *Task) GetHistory() []logrecord.Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]logrecord.Record(nil), t.history...)
}

// Eligible reports whether the task may launch right now, applying the
// force_state override rules on top of StartCond.
func (t *Task) Eligible(now time.Time) bool {
	t.mu.Lock()
	force := t.forceState
	idle := t.status == StatusIdle
	t.mu.Unlock()
	if !idle {
		return false
	}
	switch force {
	case ForceTrue:
		return true
	case ForceFalse:
		return false
	default:
		return t.startCond.Evaluate(now)
	}
}

// ResetIfTerminal transitions a terminal status back to idle; the
// scheduler calls this at the top of every cycle, before re-evaluating
// eligibility, so a task that just finished can run again.
func (t *Task) ResetIfTerminal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.status {
	case StatusSuccess, StatusFail, StatusTerminate:
		t.status = StatusIdle
	}
}

// MarkRunning transitions idle->run, appends the "run" record, and
// consumes a one-shot ForceTrue so it resets once this run concludes.
func (t *Task) MarkRunning(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forcedThisRun = t.forceState == ForceTrue
	t.status = StatusRun
	t.history = append(t.history, logrecord.Record{TaskName: t.name, Action: logrecord.ActionRun, At: at})
}

// MarkSuccess transitions run->success and appends the record.
func (t *Task) MarkSuccess(at time.Time) {
	t.finish(at, logrecord.ActionSuccess, "")
}

// MarkFail transitions run->fail and appends the record with exc text.
func (t *Task) MarkFail(at time.Time, excText string) {
	t.finish(at, logrecord.ActionFail, excText)
}

// MarkTerminate transitions run->terminate (timeout, end_cond, or shutdown)
// and appends the record.
func (t *Task) MarkTerminate(at time.Time) {
	t.finish(at, logrecord.ActionTerminate, "")
}

func (t *Task) finish(at time.Time, action logrecord.Action, excText string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch action {
	case logrecord.ActionSuccess:
		t.status = StatusSuccess
	case logrecord.ActionFail:
		t.status = StatusFail
	case logrecord.ActionTerminate:
		t.status = StatusTerminate
	}
	if t.forcedThisRun {
		t.forceState = ForceUnset
		t.forcedThisRun = false
	}
	t.history = append(t.history, logrecord.Record{TaskName: t.name, Action: action, At: at, ExcText: excText})
}

// Invoke runs the callable synchronously, resolving its parameters from
// the three-tier scope (call-time > local > global) plus special names,
// and rendering a traceback-shaped string on panic/error so process-mode
// failures and in-process failures carry the same exc_text shape.
func (t *Task) Invoke(ctx context.Context, callParams map[string]any, scope ParamScope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			traceback := FormatTraceback(fmt.Sprintf("panic: %v", r))
			err = shared.MarkKind(errors.New(traceback), shared.KindTaskRuntime)
		}
	}()
	p, missing := t.resolveParams(callParams, scope)
	if missing != "" {
		traceback := FormatTraceback(fmt.Sprintf("ParameterError: missing required parameter %q", missing))
		return shared.MarkKind(errors.New(traceback), shared.KindParameterBinding)
	}
	if runErr := t.run(ctx, p); runErr != nil {
		traceback := FormatTraceback(runErr.Error())
		return shared.MarkKind(errors.New(traceback), shared.KindTaskRuntime)
	}
	return nil
}

// ParamScope supplies the ambient values available for special-name
// injection and global parameter lookup.
type ParamScope struct {
	Scheduler any // injected as _scheduler_ when declared
	Session   any // injected as _session_ when declared
	Global    map[string]any
	Start     time.Time
	End       time.Time
}

func (t *Task) resolveParams(callParams map[string]any, scope ParamScope) (Params, string) {
	merged := make(map[string]any, len(scope.Global)+len(t.parameters)+len(callParams))
	for k, v := range scope.Global {
		merged[k] = v
	}
	local := t.LocalParameters()
	for k, v := range local {
		merged[k] = v
	}
	for k, v := range callParams {
		merged[k] = v
	}

	out := make(Params, len(t.accepts))
	for _, name := range t.accepts {
		switch name {
		case SpecialScheduler:
			out[name] = scope.Scheduler
		case SpecialTask:
			out[name] = t
		case SpecialSession:
			out[name] = scope.Session
		case SpecialStart:
			out[name] = scope.Start
		case SpecialEnd:
			out[name] = scope.End
		default:
			v, ok := merged[name]
			if !ok {
				return nil, name
			}
			out[name] = v
		}
	}
	return out, ""
}

// FormatTraceback renders a traceback-shaped string: the conventional
// header line followed by the failure message (expected to already read
// as "<Kind>: <description>", e.g. an error built with
// fmt.Errorf("RuntimeError: %s", ...)). This is the shape cross-process
// failures must preserve intact (spec §9): both the header and the
// exception class/message need to survive the parent/child boundary.
func FormatTraceback(message string) string {
	return "Traceback (most recent call last):\n" + message
}
