package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestAddValidatesJobs(t *testing.T) {
	s := New(zerolog.Nop())
	tick := func(context.Context, time.Time) error { return nil }

	if err := s.Add(Job{Interval: time.Second, Tick: tick}); err == nil {
		t.Fatal("missing name should be rejected")
	}
	if err := s.Add(Job{Name: "x", Tick: tick}); err == nil {
		t.Fatal("zero interval should be rejected")
	}
	if err := s.Add(Job{Name: "x", Interval: time.Second}); err == nil {
		t.Fatal("missing tick should be rejected")
	}
	if err := s.Add(Job{Name: "rules-refresh", Interval: time.Second, Tick: tick}); err != nil {
		t.Fatalf("valid job rejected: %v", err)
	}
	if names := s.Jobs(); len(names) != 1 || names[0] != "rules-refresh" {
		t.Fatalf("unexpected jobs %v", names)
	}
}

func TestNextTickAlignment(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 7, 30, 0, time.UTC)

	if got := nextTick(now, 15*time.Minute, true); !got.Equal(time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC)) {
		t.Fatalf("aligned tick wrong: %s", got)
	}
	if got := nextTick(now, time.Minute, false); !got.Equal(now.Add(time.Minute)) {
		t.Fatalf("unaligned tick wrong: %s", got)
	}

	onBoundary := time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC)
	if got := nextTick(onBoundary, 15*time.Minute, true); !got.Equal(onBoundary.Add(15 * time.Minute)) {
		t.Fatalf("boundary should advance to the following bucket, got %s", got)
	}
}

func TestRunExecutesJobsUntilCancelled(t *testing.T) {
	s := New(zerolog.Nop())
	var fast, failing atomic.Int32

	_ = s.Add(Job{Name: "fast", Interval: 10 * time.Millisecond, Immediate: true, Tick: func(context.Context, time.Time) error {
		fast.Add(1)
		return nil
	}})
	_ = s.Add(Job{Name: "failing", Interval: 10 * time.Millisecond, Tick: func(context.Context, time.Time) error {
		failing.Add(1)
		return errors.New("boom")
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for (fast.Load() < 3 || failing.Load() < 3) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	if fast.Load() < 3 {
		t.Fatalf("fast job ran %d times", fast.Load())
	}
	if failing.Load() < 3 {
		t.Fatalf("a failing job must keep running, ran %d times", failing.Load())
	}
}
