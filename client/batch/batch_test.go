package batch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestRun_IndexAligned(t *testing.T) {
	// Later indexes finish first.
	got := Run(t.Context(), 5, 0, func(ctx context.Context, i int) int {
		time.Sleep(time.Duration(5-i) * 5 * time.Millisecond)
		return i * 10
	})

	want := []int{0, 10, 20, 30, 40}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("results out of order (-want +got):\n%s", diff)
	}
}

func TestRun_Empty(t *testing.T) {
	got := Run(t.Context(), 0, 2, func(ctx context.Context, i int) string {
		t.Fatal("fn must not be called")
		return ""
	})

	if got == nil {
		t.Fatal("expected empty non-nil slice")
	}
	if len(got) != 0 {
		t.Errorf("expected no results, got %d", len(got))
	}
}

func TestRun_ConcurrencyLimit(t *testing.T) {
	const limit = 2
	const total = 6

	var running atomic.Int32
	var maxRunning atomic.Int32

	Run(t.Context(), total, limit, func(ctx context.Context, i int) struct{} {
		cur := running.Add(1)
		for {
			old := maxRunning.Load()
			if cur <= old || maxRunning.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return struct{}{}
	})

	if got := maxRunning.Load(); got > limit {
		t.Errorf("max concurrent = %d, want <= %d", got, limit)
	}
}

func TestRun_Unbounded(t *testing.T) {
	const total = 8

	barrier := make(chan struct{})
	var arrived atomic.Int32

	done := make(chan []bool)
	go func() {
		done <- Run(t.Context(), total, 0, func(ctx context.Context, i int) bool {
			if arrived.Add(1) == total {
				close(barrier)
			}
			<-barrier
			return true
		})
	}()

	select {
	case got := <-done:
		for i, ok := range got {
			if !ok {
				t.Errorf("index %d not run", i)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("unbounded run did not start every item at once")
	}
}

func TestRun_CancelledWhileQueued(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var first atomic.Bool
	release := make(chan struct{})
	got := make(chan []error, 1)
	go func() {
		got <- Run(ctx, 3, 1, func(ctx context.Context, i int) error {
			if first.CompareAndSwap(false, true) {
				cancel()
				<-release
				return nil
			}
			return ctx.Err()
		})
	}()

	// Queued items report the cancellation without waiting for a slot.
	time.Sleep(50 * time.Millisecond)
	close(release)

	cancelled := 0
	for _, err := range <-got {
		if errors.Is(err, context.Canceled) {
			cancelled++
		}
	}
	if cancelled != 2 {
		t.Errorf("expected 2 cancelled items, got %d", cancelled)
	}
}
