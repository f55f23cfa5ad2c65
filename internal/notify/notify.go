// Package notify builds a maintainer task (spec.md §4.5) that watches the
// session's aggregated log for fail/terminate records and posts an alert
// to a Telegram chat, using the teacher's own bot client and retry helper.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"

	"chronosched/internal/logrecord"
	"chronosched/internal/session"
	"chronosched/internal/tasklib"
	"chronosched/pkg/retry"
)

// Config controls the alerting maintainer.
type Config struct {
	// Token is the Telegram bot token. NewMaintainer returns a nil task if empty,
	// so wiring a notifier is opt-in at the app layer.
	Token string
	// ChatID is the destination chat for alerts.
	ChatID int64
	// Retry governs delivery retries; zero value uses retry.DefaultConfig.
	Retry retry.Config
	// Name overrides the maintainer task's registered name.
	Name string
}

// watcher tracks how far into each task's history this notifier has
// already reported, so a record is alerted on exactly once.
type watcher struct {
	seen map[string]int
}

// NewMaintainer builds the maintainer task. Register it with
// Scheduler.RegisterMaintainer; every cycle it scans the session's tasks
// for new fail/terminate records since its last run and posts one message
// per batch of newly observed records. Returns nil if cfg.Token is empty.
func NewMaintainer(sess *session.Session, cfg Config) *tasklib.Task {
	if cfg.Token == "" {
		return nil
	}
	if cfg.Name == "" {
		cfg.Name = "notify"
	}
	retryCfg := cfg.Retry
	if retryCfg.MaxAttempts == 0 {
		retryCfg = retry.DefaultConfig()
	}

	b, err := bot.New(cfg.Token, bot.WithSkipGetMe())
	if err != nil {
		// Construction failure means no notifier: the scheduler runs fine
		// without one, it just loses alerting.
		return nil
	}

	w := &watcher{seen: make(map[string]int)}

	run := func(ctx context.Context, p tasklib.Params) error {
		var lines []string
		for _, t := range sess.Tasks() {
			hist := t.GetHistory()
			start := w.seen[t.Name()]
			for _, rec := range hist[start:] {
				if rec.Action == logrecord.ActionFail || rec.Action == logrecord.ActionTerminate {
					lines = append(lines, formatAlert(rec))
				}
			}
			w.seen[t.Name()] = len(hist)
		}
		if len(lines) == 0 {
			return nil
		}
		text := strings.Join(lines, "\n")
		return retry.Do(ctx, retryCfg, func(ctx context.Context) error {
			_, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: cfg.ChatID, Text: text})
			return err
		})
	}

	return tasklib.New(cfg.Name, run)
}

func formatAlert(rec logrecord.Record) string {
	base := fmt.Sprintf("[%s] %s: %s", rec.At.Format(time.RFC3339), rec.TaskName, rec.Action)
	if rec.ExcText != "" {
		return base + "\n" + rec.ExcText
	}
	return base
}
