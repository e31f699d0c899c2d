// Package jobs runs the background maintenance work of the server.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Elizabethomito/tutormarket/internal/models"
)

// IdleReaper demotes tutors who stopped sending heartbeats.
type IdleReaper interface {
	ReapIdle(ctx context.Context) (models.ReapResult, error)
}

const defaultTickTimeout = 10 * time.Second

// StartIdleReaper runs r on schedule (a cron spec such as "@every 10m"
// or "*/5 * * * *") until ctx is cancelled. A sweep still running when
// the next one is due is skipped. An empty schedule disables the job.
func StartIdleReaper(ctx context.Context, schedule string, timeout time.Duration, r IdleReaper, log *slog.Logger) error {
	if schedule == "" {
		log.Info("idle reaper disabled")
		return nil
	}
	if timeout <= 0 {
		timeout = defaultTickTimeout
	}

	cl := cronLogger{log: log.With("job", "idle_reaper")}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc(schedule, func() { sweep(ctx, timeout, r, cl.log) }); err != nil {
		return fmt.Errorf("schedule idle reaper %q: %w", schedule, err)
	}
	c.Start()
	log.Info("idle reaper started", "schedule", schedule)

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}

// sweep is one reaper tick.
func sweep(ctx context.Context, timeout time.Duration, r IdleReaper, log *slog.Logger) {
	if ctx.Err() != nil {
		return
	}
	tickCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	res, err := r.ReapIdle(tickCtx)
	if err != nil {
		log.Error("idle sweep failed", "err", err)
		return
	}
	if res.Demoted > 0 {
		log.Debug("idle sweep", "demoted", res.Demoted)
	}
}

// cronLogger routes cron's own logging into slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "err", err)...)
}
