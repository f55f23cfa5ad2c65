package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Heartbeat is the scheduler's bounded end-of-cycle sleep (spec §5,
// suspension point (a)). It is a small interface so tests can supply a
// manually-driven stand-in instead of waiting on a real clock.
type Heartbeat interface {
	C() <-chan time.Time
	Stop()
}

// cronLogger adapts slog to the cron.Logger interface, exactly as the
// teacher's own scheduler adapter wired robfig/cron's logging.
type cronLogger struct{ logger *slog.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.logger.Info(msg, kv...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.logger.Error(msg, append([]interface{}{"error", err}, kv...)...)
}

// cronHeartbeat drives the bounded sleep with a robfig/cron "@every" entry
// rather than a bare time.Ticker; this cron instance paces the core loop
// and schedules nothing else.
type cronHeartbeat struct {
	c  *cron.Cron
	ch chan time.Time
}

func newCronHeartbeat(interval time.Duration, logger *slog.Logger) *cronHeartbeat {
	if logger == nil {
		logger = slog.Default()
	}
	ch := make(chan time.Time, 1)
	c := cron.New(cron.WithSeconds(), cron.WithLogger(cronLogger{logger: logger.With("component", "cron")}))
	_, _ = c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		select {
		case ch <- time.Now():
		default:
		}
	})
	c.Start()
	return &cronHeartbeat{c: c, ch: ch}
}

func (h *cronHeartbeat) C() <-chan time.Time { return h.ch }

func (h *cronHeartbeat) Stop() {
	ctx := h.c.Stop()
	<-ctx.Done()
}

// NewManualHeartbeat creates a Heartbeat driven entirely by Tick calls,
// for deterministic scheduler tests.
func NewManualHeartbeat() *ManualHeartbeat {
	return &ManualHeartbeat{ch: make(chan time.Time, 64)}
}

// ManualHeartbeat is the exported manual Heartbeat used by tests.
type ManualHeartbeat struct {
	ch chan time.Time
}

func (h *ManualHeartbeat) C() <-chan time.Time { return h.ch }
func (h *ManualHeartbeat) Stop()               {}

// Tick wakes the scheduler loop once.
func (h *ManualHeartbeat) Tick() {
	select {
	case h.ch <- time.Now():
	default:
	}
}
