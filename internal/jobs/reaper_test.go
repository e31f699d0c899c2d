package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Elizabethomito/tutormarket/internal/logging"
	"github.com/Elizabethomito/tutormarket/internal/models"
)

type countingReaper struct {
	calls atomic.Int32
	err   error
}

func (c *countingReaper) ReapIdle(ctx context.Context) (models.ReapResult, error) {
	c.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return models.ReapResult{}, errors.New("tick without deadline")
	}
	return models.ReapResult{Demoted: 1}, c.err
}

func TestStartIdleReaper_RunsOnSchedule(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &countingReaper{}
	if err := StartIdleReaper(ctx, "@every 1s", time.Second, r, logging.Discard()); err != nil {
		t.Fatalf("StartIdleReaper: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for r.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("reaper never ran")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestStartIdleReaper_BadSchedule(t *testing.T) {
	err := StartIdleReaper(context.Background(), "every now and then", 0, &countingReaper{}, logging.Discard())
	if err == nil {
		t.Fatal("expected an error for an invalid cron spec")
	}
}

func TestStartIdleReaper_Disabled(t *testing.T) {
	r := &countingReaper{}
	if err := StartIdleReaper(context.Background(), "", 0, r, logging.Discard()); err != nil {
		t.Fatalf("StartIdleReaper: %v", err)
	}
}

func TestSweep(t *testing.T) {
	r := &countingReaper{err: errors.New("db locked")}
	sweep(context.Background(), time.Second, r, logging.Discard())
	if r.calls.Load() != 1 {
		t.Errorf("calls: %d", r.calls.Load())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sweep(ctx, time.Second, r, logging.Discard())
	if r.calls.Load() != 1 {
		t.Error("a cancelled context should skip the sweep")
	}
}
