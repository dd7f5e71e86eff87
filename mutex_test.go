package taskrt_test

import (
	"sync"
	"testing"

	"github.com/creachadair/mds/mtest"
	"github.com/creachadair/mds/value"
	"github.com/fortytw2/leaktest"
	"github.com/go-taskrt/taskrt"
)

// TestFIFOMutexFairnessMatchesForkOrder forks four children that each
// Acquire the same lock, increment a shared counter and Release; the
// counter ends at 4 and the acquire order equals the Fork order.
func TestFIFOMutexFairnessMatchesForkOrder(t *testing.T) {
	var mu sync.Mutex
	var counter int
	var order []int

	body := func(id int, lock taskrt.Mutex) taskrt.Task[struct{}] {
		return taskrt.Bind(lock.Acquire(), func(tok taskrt.Releasable) taskrt.Task[struct{}] {
			work := taskrt.Delay(func() taskrt.Task[struct{}] {
				mu.Lock()
				counter++
				order = append(order, id)
				mu.Unlock()
				return taskrt.Return(struct{}{})
			})
			return taskrt.Then(work, tok.Release())
		})
	}

	prog := taskrt.Bind(taskrt.RequestLock, func(lock taskrt.Mutex) taskrt.Task[struct{}] {
		forkAll := taskrt.Return(struct{}{})
		for _, id := range []int{1, 2, 3, 4} {
			forkAll = taskrt.Then(forkAll, taskrt.Fork(body(id, lock)))
		}
		return forkAll
	})

	run(t, prog)

	if counter != 4 {
		t.Errorf("counter = %d, want 4", counter)
	}
	want := []int{1, 2, 3, 4}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order = %v, want %v (acquire order must equal fork order)", order, want)
		}
	}
}

// TestSemaphoreMutexSerializesUnderRealParallelism runs the same scenario
// through RunParallel, where the Mutex is backed by a real blocking
// semaphore rather than the cooperative FIFO queue; it checks mutual
// exclusion actually holds across goroutines racing for the same lock.
func TestSemaphoreMutexSerializesUnderRealParallelism(t *testing.T) {
	defer leaktest.Check(t)()

	const n = 16
	var counter int
	var active int32
	var mu sync.Mutex

	body := func(lock taskrt.Mutex) taskrt.Task[struct{}] {
		return taskrt.Bind(lock.Acquire(), func(tok taskrt.Releasable) taskrt.Task[struct{}] {
			work := taskrt.Delay(func() taskrt.Task[struct{}] {
				mu.Lock()
				active++
				if active > 1 {
					t.Errorf("%d callers active inside the critical section at once", active)
				}
				counter++
				active--
				mu.Unlock()
				return taskrt.Return(struct{}{})
			})
			return taskrt.Then(work, tok.Release())
		})
	}

	prog := taskrt.Bind(taskrt.RequestLock, func(lock taskrt.Mutex) taskrt.Task[struct{}] {
		forkAll := taskrt.Return(struct{}{})
		for range n {
			forkAll = taskrt.Then(forkAll, taskrt.Fork(body(lock)))
		}
		return forkAll
	})

	if _, err := taskrt.RunParallel(prog); err != nil {
		t.Fatalf("RunParallel: %v", err)
	}
	if counter != n {
		t.Errorf("counter = %d, want %d", counter, n)
	}
}

// TestMutexTokenPanicsOnDoubleRelease checks the onceReleaser guard both
// mutex implementations embed: releasing the same token twice is a
// programming error, not a silently tolerated no-op.
func TestMutexTokenPanicsOnDoubleRelease(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		name := value.Cond(parallel, "semaphore", "fifo")
		t.Run(name, func(t *testing.T) {
			var tok taskrt.Releasable
			prog := taskrt.Bind(taskrt.RequestLock, func(lock taskrt.Mutex) taskrt.Task[struct{}] {
				return taskrt.Bind(lock.Acquire(), func(acquired taskrt.Releasable) taskrt.Task[struct{}] {
					tok = acquired
					return acquired.Release()
				})
			})

			var err error
			if parallel {
				_, err = taskrt.RunParallel(prog)
			} else {
				_, err = taskrt.Run(prog)
			}
			if err != nil {
				t.Fatalf("acquiring and releasing once: %v", err)
			}

			mtest.MustPanicf(t, func() {
				tok.Release()()
			}, "expected a second Release of the same token to panic")
		})
	}
}
