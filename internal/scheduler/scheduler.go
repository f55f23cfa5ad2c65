// Package scheduler implements the core spec's §4.5 main loop: the
// single-threaded, cooperative cycle that evaluates task eligibility,
// launches work under main/thread/process isolation, polls for
// completions, enforces timeouts, runs maintainer tasks, and checks the
// shut condition.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"chronosched/internal/condition"
	"chronosched/internal/logrecord"
	"chronosched/internal/session"
	"chronosched/internal/shared"
	"chronosched/internal/sink"
	"chronosched/internal/tasklib"
	"chronosched/internal/tasklib/workerproc"
)

// Config holds the scheduler's tunables, all resolved once at
// construction (spec §4.5/§5).
type Config struct {
	// DefaultTimeout is the scheduler-level timeout applied when a task
	// declares none of its own (zero disables timeout enforcement).
	DefaultTimeout time.Duration
	// CycleInterval paces the heartbeat between cycles (suspension
	// point (a) of §5). Defaults to one second, matching spec.md's
	// illustrative "such as 1s".
	CycleInterval time.Duration
	// LaunchSpacing is the minimum observable delta slept between
	// successive thread/process launches within one cycle, so that
	// history ordering stays deterministic even when the OS clock's
	// resolution can't otherwise distinguish two launches (spec §4.5,
	// "Priority ordering guarantee").
	LaunchSpacing time.Duration
	// ShutdownGrace bounds how long shutdown waits for in-flight
	// workers to finish cooperatively before abandoning them with a
	// forced terminate record.
	ShutdownGrace time.Duration
	// ShutCondition, if set at construction, is evaluated at the end
	// of every cycle (step 7). It can also be supplied later with
	// SetShutCondition, since most shut conditions are built from
	// statements that reference the Scheduler itself as a
	// condition.CycleSource.
	ShutCondition condition.Condition
	Sink          sink.Sink
	Logger        *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.CycleInterval <= 0 {
		c.CycleInterval = time.Second
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// runState tracks one in-flight thread or process execution. main-mode
// tasks never appear here: they run to completion inline within launch.
type runState struct {
	mode   tasklib.ExecutionMode
	task   *tasklib.Task
	start  time.Time
	cancel context.CancelFunc
	doneCh chan error         // ExecThread
	handle *workerproc.Handle // ExecProcess
}

// Scheduler drives a Session's tasks plus a separate maintainer set
// through the cycle described in spec.md §4.5. It implements
// condition.CycleSource so shut conditions (and any other statement)
// can observe the scheduler's own cycle start and count without either
// package importing the other.
type Scheduler struct {
	mu sync.Mutex

	name        string
	session     *session.Session
	maintainers []*tasklib.Task
	cfg         Config
	heartbeat   Heartbeat
	stamp       stamper

	cycleStart time.Time
	cycles     int
	running    map[string]*runState
}

// New constructs a Scheduler bound to session, using heartbeat (or, when
// nil, an internal robfig/cron-driven one at cfg.CycleInterval) to pace
// cycles.
func New(name string, sess *session.Session, cfg Config, heartbeat Heartbeat) *Scheduler {
	cfg = cfg.withDefaults()
	if heartbeat == nil {
		heartbeat = newCronHeartbeat(cfg.CycleInterval, cfg.Logger)
	}
	return &Scheduler{
		name:      name,
		session:   sess,
		cfg:       cfg,
		heartbeat: heartbeat,
		running:   make(map[string]*runState),
	}
}

// Name returns the scheduler's current name.
func (s *Scheduler) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Rename lets a maintainer task (which receives the scheduler via
// _scheduler_) mutate the scheduler's identity, per spec.md §4.5's
// "allowing them to mutate scheduler state (e.g., renaming)".
func (s *Scheduler) Rename(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
}

// SetShutCondition installs (or replaces) the condition evaluated at the
// end of every cycle. Most shut conditions are built against the
// Scheduler itself as a condition.CycleSource, so they can only be
// constructed after New returns; this setter closes that gap.
func (s *Scheduler) SetShutCondition(c condition.Condition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.ShutCondition = c
}

// RegisterMaintainer adds a maintainer task, distinct from the session's
// user tasks, evaluated and launched under the same rules every cycle.
// Maintainers never run as subprocesses; a maintainer declared with
// execution=process is downgraded to thread, since its defining trait
// (direct access to the live *Scheduler via _scheduler_) can't survive a
// process boundary.
func (s *Scheduler) RegisterMaintainer(t *tasklib.Task) {
	if t.Execution() == tasklib.ExecProcess {
		tasklib.WithExecution(tasklib.ExecThread)(t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maintainers = append(s.maintainers, t)
}

// CycleStart implements condition.CycleSource: the instant the current
// (or most recently completed) cycle began.
func (s *Scheduler) CycleStart() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycleStart
}

// Cycles implements condition.CycleSource: the number of fully completed
// cycles so far.
func (s *Scheduler) Cycles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles
}

// Run drives cycles until the shut condition fires or ctx is canceled,
// returning nil on a clean shut-condition exit or ctx.Err() on
// cancellation. Either way, in-flight workers are signaled to terminate
// and given ShutdownGrace to exit cooperatively before being abandoned.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		default:
		}

		shut, fatal := s.runCycleSafe(ctx)
		if fatal != nil {
			s.shutdown()
			return fatal
		}
		if shut {
			s.shutdown()
			return nil
		}

		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		case <-s.heartbeat.C():
		}
	}
}

// runCycleSafe wraps runCycle with a panic recovery so an internal bug
// surfaces as a scheduler-fatal error instead of a process crash,
// mirroring the recovery tasklib.Task.Invoke applies at the per-task
// level (spec.md §7's "Scheduler fatal": the caller gets the error back
// after shutdown runs).
func (s *Scheduler) runCycleSafe(ctx context.Context) (shut bool, fatal error) {
	defer func() {
		if r := recover(); r != nil {
			fatal = shared.MarkKind(fmt.Errorf("scheduler %q: panic in run cycle: %v", s.Name(), r), shared.KindSchedulerFatal)
		}
	}()
	return s.runCycle(ctx), nil
}

// runCycle executes the eight steps of spec.md §4.5 once and reports
// whether the shut condition fired.
func (s *Scheduler) runCycle(ctx context.Context) bool {
	// 1. Snapshot cycle start using the monotonic stamper, so it is
	// itself strictly ordered relative to any run records it precedes.
	cycleStart := s.stamp.Next()
	s.mu.Lock()
	s.cycleStart = cycleStart
	s.mu.Unlock()

	tasks := s.session.Tasks()
	for _, t := range tasks {
		t.ResetIfTerminal()
	}

	// 2. Sort by ascending priority.
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Priority() < tasks[j].Priority() })

	// 3. Launch every eligible, not-currently-running task, in order.
	for _, t := range tasks {
		s.maybeLaunch(ctx, t, cycleStart)
	}

	// 4. Poll running tasks for completions.
	s.pollCompletions(ctx)

	// 5. Timeout and end_cond checks.
	s.checkTimeoutsAndEndConds(ctx)

	// 6. Maintainer tasks, same rules, own priority order.
	s.mu.Lock()
	maintainers := append([]*tasklib.Task(nil), s.maintainers...)
	s.mu.Unlock()
	sort.SliceStable(maintainers, func(i, j int) bool { return maintainers[i].Priority() < maintainers[j].Priority() })
	for _, m := range maintainers {
		m.ResetIfTerminal()
		s.maybeLaunch(ctx, m, cycleStart)
	}
	s.pollCompletions(ctx)
	s.checkTimeoutsAndEndConds(ctx)

	// 7. Shut condition.
	s.mu.Lock()
	shutCond := s.cfg.ShutCondition
	s.mu.Unlock()
	shut := shutCond != nil && shutCond.Evaluate(time.Now())

	// 8. Increment n_cycles, regardless of the shutdown decision.
	s.mu.Lock()
	s.cycles++
	s.mu.Unlock()

	return shut
}

func (s *Scheduler) maybeLaunch(ctx context.Context, t *tasklib.Task, cycleStart time.Time) {
	if !t.Eligible(cycleStart) {
		return
	}
	mode := t.Execution()

	start := s.stamp.Next()
	t.MarkRunning(start)
	s.sinkWrite(ctx, logrecord.Record{TaskName: t.Name(), Action: logrecord.ActionRun, At: start})

	scope := tasklib.ParamScope{
		Scheduler: s,
		Session:   s.session,
		Global:    s.session.GlobalParams(),
		Start:     start,
	}

	switch mode {
	case tasklib.ExecThread:
		s.launchThread(ctx, t, scope)
	case tasklib.ExecProcess:
		s.launchProcess(ctx, t, scope)
	default: // ExecMain: runs inline, serialized with the loop itself
		err := t.Invoke(ctx, nil, scope)
		if err != nil {
			s.finishFail(ctx, t, err.Error())
		} else {
			s.finishSuccess(ctx, t)
		}
	}

	if s.cfg.LaunchSpacing > 0 {
		time.Sleep(s.cfg.LaunchSpacing)
	}
}

func (s *Scheduler) launchThread(ctx context.Context, t *tasklib.Task, scope tasklib.ParamScope) {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- t.Invoke(runCtx, nil, scope)
	}()
	s.mu.Lock()
	s.running[t.Name()] = &runState{mode: tasklib.ExecThread, task: t, start: time.Now(), cancel: cancel, doneCh: done}
	s.mu.Unlock()
}

func (s *Scheduler) launchProcess(ctx context.Context, t *tasklib.Task, scope tasklib.ParamScope) {
	procCtx, cancel := context.WithCancel(ctx)
	handle, err := workerproc.Start(procCtx, t.Name(), scope.Global)
	if err != nil {
		cancel()
		s.finishFail(ctx, t, tasklib.FormatTraceback(fmt.Sprintf("ProcessError: %v", err)))
		return
	}
	s.mu.Lock()
	s.running[t.Name()] = &runState{mode: tasklib.ExecProcess, task: t, start: time.Now(), cancel: cancel, handle: handle}
	s.mu.Unlock()
}

func (s *Scheduler) runningNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.running))
	for n := range s.running {
		names = append(names, n)
	}
	return names
}

func (s *Scheduler) getRunning(name string) *runState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[name]
}

func (s *Scheduler) removeRunning(name string) {
	s.mu.Lock()
	delete(s.running, name)
	s.mu.Unlock()
}

// pollCompletions drains whichever running workers have finished,
// without blocking on the ones that haven't (spec §5's bounded-wait
// suspension point (b): here the bound is zero, since the scheduler
// re-polls every cycle rather than parking on any one worker).
func (s *Scheduler) pollCompletions(ctx context.Context) {
	for _, name := range s.runningNames() {
		rs := s.getRunning(name)
		if rs == nil {
			continue
		}
		switch rs.mode {
		case tasklib.ExecThread:
			select {
			case err := <-rs.doneCh:
				rs.cancel()
				s.removeRunning(name)
				if err != nil {
					s.finishFail(ctx, rs.task, err.Error())
				} else {
					s.finishSuccess(ctx, rs.task)
				}
			default:
			}
		case tasklib.ExecProcess:
			select {
			case res := <-rs.handle.Done():
				rs.cancel()
				s.removeRunning(name)
				if res.Action == logrecord.ActionFail {
					s.finishFail(ctx, rs.task, res.ExcText)
				} else {
					s.finishSuccess(ctx, rs.task)
				}
			default:
			}
		}
	}
}

// checkTimeoutsAndEndConds terminates any running worker whose effective
// timeout has elapsed, or whose task's end_cond now evaluates true
// (spec §4.5 step 5, and WithEndCond's "checked against running
// executions each poll").
func (s *Scheduler) checkTimeoutsAndEndConds(ctx context.Context) {
	now := time.Now()
	for _, name := range s.runningNames() {
		rs := s.getRunning(name)
		if rs == nil {
			continue
		}
		timedOut := false
		if timeout := s.effectiveTimeout(rs.task); timeout > 0 && now.Sub(rs.start) > timeout {
			timedOut = true
		}
		endDone := rs.task.EndCond() != nil && rs.task.EndCond().Evaluate(now)
		if !timedOut && !endDone {
			continue
		}
		if timedOut {
			err := shared.MarkKind(fmt.Errorf("task %q exceeded timeout after %s", name, now.Sub(rs.start)), shared.KindTaskTimeout)
			s.cfg.Logger.Warn("task timeout", "task", name, "error", err)
		}
		switch rs.mode {
		case tasklib.ExecThread:
			rs.cancel() // cooperative cancellation; an unresponsive body is abandoned regardless
		case tasklib.ExecProcess:
			rs.cancel()
			_ = rs.handle.Kill()
		}
		s.removeRunning(name)
		s.finishTerminate(ctx, rs.task)
	}
}

func (s *Scheduler) effectiveTimeout(t *tasklib.Task) time.Duration {
	if d := t.Timeout(); d > 0 {
		return d
	}
	return s.cfg.DefaultTimeout
}

func (s *Scheduler) finishSuccess(ctx context.Context, t *tasklib.Task) {
	at := s.stamp.Next()
	t.MarkSuccess(at)
	s.sinkWrite(ctx, logrecord.Record{TaskName: t.Name(), Action: logrecord.ActionSuccess, At: at})
}

func (s *Scheduler) finishFail(ctx context.Context, t *tasklib.Task, excText string) {
	at := s.stamp.Next()
	t.MarkFail(at, excText)
	s.sinkWrite(ctx, logrecord.Record{TaskName: t.Name(), Action: logrecord.ActionFail, At: at, ExcText: excText})
}

func (s *Scheduler) finishTerminate(ctx context.Context, t *tasklib.Task) {
	at := s.stamp.Next()
	t.MarkTerminate(at)
	s.sinkWrite(ctx, logrecord.Record{TaskName: t.Name(), Action: logrecord.ActionTerminate, At: at})
}

func (s *Scheduler) sinkWrite(ctx context.Context, rec logrecord.Record) {
	if s.cfg.Sink == nil {
		return
	}
	if err := s.cfg.Sink.Write(ctx, rec); err != nil {
		s.cfg.Logger.Error("sink write failed", "task", rec.TaskName, "action", string(rec.Action), "error", err)
	}
}

// shutdown signals every in-flight worker to terminate and gives each one
// up to ShutdownGrace to actually exit, so cooperative bodies and
// subprocesses have a chance to unwind before the process returns.
// Whatever the worker's body returns once canceled is irrelevant to the
// record it gets: a shutdown-aborted execution is always "terminate",
// the same terminal action a timeout produces (spec.md §4.5 "Shutdown").
func (s *Scheduler) shutdown() {
	ctx := context.Background()
	names := s.runningNames()
	if len(names) == 0 {
		return
	}
	for _, name := range names {
		if rs := s.getRunning(name); rs != nil {
			rs.cancel()
			if rs.mode == tasklib.ExecProcess {
				_ = rs.handle.Kill()
			}
		}
	}

	deadline := time.Now().Add(s.cfg.ShutdownGrace)
	for _, name := range names {
		rs := s.getRunning(name)
		if rs == nil {
			continue
		}
		wait := time.Until(deadline)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		switch rs.mode {
		case tasklib.ExecThread:
			select {
			case <-rs.doneCh:
			case <-timer.C:
			}
		case tasklib.ExecProcess:
			select {
			case <-rs.handle.Done():
			case <-timer.C:
			}
		}
		timer.Stop()
		s.removeRunning(name)
		s.finishTerminate(ctx, rs.task)
	}
}
