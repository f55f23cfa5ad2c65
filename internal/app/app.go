// Package app wires a Session, Scheduler, history sink, the Telegram
// notifier, and the read-only HTTP inspector into one runnable process,
// the same role the teacher's own internal/app/app.go plays for its bot.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"chronosched/internal/condition"
	"chronosched/internal/config"
	"chronosched/internal/inspector"
	"chronosched/internal/notify"
	"chronosched/internal/platform/logger"
	"chronosched/internal/scheduler"
	"chronosched/internal/session"
	"chronosched/internal/sink"
	"chronosched/internal/sink/pgsink"
	"chronosched/internal/sink/sqlitesink"
	"chronosched/internal/tasklib"
)

// App wires application components. Callers obtain one via New, use
// Session/Registry to register tasks, then call Run.
type App struct {
	cfg config.Config
	log *slog.Logger

	Session  *session.Session
	Registry *tasklib.Registry
}

// New creates a new App instance, loading configuration and the logger,
// and prepares an empty Session/Registry for the caller to populate.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "chronosched",
	})
	return &App{
		cfg:      cfg,
		log:      log,
		Session:  session.New(),
		Registry: tasklib.NewRegistry(),
	}, nil
}

// RegisterTask adds t to both the Session (so the scheduler runs it) and
// the Registry (so a re-exec'd worker process can find it by name).
func (a *App) RegisterTask(t *tasklib.Task) {
	a.Session.Register(t)
	a.Registry.Register(t)
}

// buildSink resolves the configured history sink. A bare Fanout with no
// backing sinks is the "memory" default: it discards history, same as
// running with no sink configured at all.
func (a *App) buildSink(ctx context.Context) (sink.Sink, func(), error) {
	switch a.cfg.Sink.Driver {
	case "postgres":
		s, err := pgsink.Open(ctx, a.cfg.Sink.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres sink: %w", err)
		}
		return s, s.Close, nil
	case "sqlite":
		s, err := sqlitesink.Open(ctx, a.cfg.Sink.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite sink: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return &sink.Fanout{}, func() {}, nil
	}
}

// Run starts the scheduler, the notifier maintainer (if configured), and
// the read-only HTTP inspector, then blocks until SIGINT/SIGTERM.
func (a *App) Run() error {
	defer func() { _ = logger.Close(a.log) }()

	a.log.Info("starting", "scheduler", a.cfg.Scheduler.Name)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	histSink, closeSink, err := a.buildSink(ctx)
	if err != nil {
		return err
	}
	defer closeSink()

	sched := scheduler.New(a.cfg.Scheduler.Name, a.Session, scheduler.Config{
		DefaultTimeout: a.cfg.Scheduler.DefaultTimeout,
		CycleInterval:  a.cfg.Scheduler.CycleInterval,
		LaunchSpacing:  a.cfg.Scheduler.LaunchSpacing,
		ShutdownGrace:  a.cfg.Scheduler.ShutdownGrace,
		ShutCondition:  condition.AlwaysFalse,
		Sink:           histSink,
		Logger:         a.log,
	}, nil)

	if maintainer := notify.NewMaintainer(a.Session, notify.Config{
		Token:  a.cfg.Telegram.Token,
		ChatID: a.cfg.Telegram.ChatID,
	}); maintainer != nil {
		sched.RegisterMaintainer(maintainer)
		a.log.Info("telegram notifier enabled")
	}

	router := inspector.NewRouter(a.Session, sched)
	srv := &http.Server{Addr: a.cfg.Inspector.Addr, Handler: router}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("inspector server", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- sched.Run(ctx) }()

	err = <-errCh
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	if err == context.Canceled {
		return nil
	}
	return err
}
