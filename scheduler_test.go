package taskrt_test

import (
	"sync"
	"testing"
	"time"

	"github.com/go-taskrt/taskrt"
)

// fakeClock is a manually-advanced Clock, letting Wait/TimeOut tests assert
// on elapsed durations without actually sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock { return &fakeClock{now: start} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRunSuspendsWhenRootNeverCompletes(t *testing.T) {
	_, err := taskrt.Run(taskrt.Sync(taskrt.Never[struct{}]()))
	if err != taskrt.ErrSuspended {
		t.Errorf("err = %v, want %v", err, taskrt.ErrSuspended)
	}
}

func TestRunPropagatesUncaughtFailure(t *testing.T) {
	_, err := taskrt.Run(taskrt.Delay(func() taskrt.Task[int] { panic("root failure") }))
	if err == nil {
		t.Fatal("Run: want non-nil error for an uncaught root failure")
	}
}

// TestRunWithClockAdvancesWaitOnlyAfterDeadline checks that Wait's
// continuation does not run until the injected clock reports the requested
// duration has elapsed, without the test actually sleeping: a background
// goroutine advances the fake clock while the scheduler yield-polls it.
func TestRunWithClockAdvancesWaitOnlyAfterDeadline(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)

	var resumedAt time.Time
	prog := taskrt.Then(taskrt.Wait(3*time.Second), taskrt.Delay(func() taskrt.Task[int] {
		resumedAt = clock.Now()
		return taskrt.Return(1)
	}))

	// Drive the clock forward concurrently for as long as the run lasts: the
	// Wait's yield-poll loop should keep yielding until elapsed >= 3s.
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				clock.Advance(500 * time.Millisecond)
			}
		}
	}()

	got, err := taskrt.RunWithClock(prog, clock)
	close(stop)
	<-done
	if err != nil {
		t.Fatalf("RunWithClock: %v", err)
	}
	if got != 1 {
		t.Errorf("got %d, want 1", got)
	}
	if elapsed := resumedAt.Sub(start); elapsed < 3*time.Second {
		t.Errorf("Wait resumed after %v of clock time, want at least 3s", elapsed)
	}
}

func TestRunWithClockWaitCompletesImmediatelyIfAlreadyElapsed(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	prog := taskrt.Then(taskrt.Wait(0), taskrt.Return("done"))
	got, err := taskrt.RunWithClock(prog, clock)
	if err != nil {
		t.Fatalf("RunWithClock: %v", err)
	}
	if got != "done" {
		t.Errorf("got %q, want %q", got, "done")
	}
}
