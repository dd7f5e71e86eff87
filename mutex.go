package taskrt

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// A Mutex is a FIFO lock whose acquire and release are task-level
// operations. Mutexes are never constructed directly by user code; one is
// produced on demand by the scheduler servicing [RequestLock], with a
// concrete implementation chosen by which interpreter is running ([Run]'s
// cooperative FIFO token queue, or [RunParallel]'s blocking semaphore).
type Mutex interface {
	// Acquire returns a Task that steps to a scoped release handle once this
	// caller reaches the head of the queue.
	Acquire() Task[Releasable]
}

// --- cooperative FIFO mutex -------------------------------------------------

// fifoMutex is the cooperative-scheduler Mutex: a plain slice acting as a
// FIFO queue of tokens, advanced one at a time by Release. Adapted from
// throttle.go's "mu sync.Mutex guarding a slice of waiting parties" shape
// (see DESIGN.md); unlike Throttle, which coalesces concurrent calls into a
// single shared result, this queue simply orders callers FIFO.
type fifoMutex struct {
	mu    sync.Mutex
	queue []*fifoToken
}

func newFIFOMutex() *fifoMutex { return &fifoMutex{} }

func (m *fifoMutex) Acquire() Task[Releasable] {
	return Delay(func() Task[Releasable] {
		tok := &fifoToken{owner: m, released: onceReleaser{name: "fifo mutex token"}}
		m.mu.Lock()
		m.queue = append(m.queue, tok)
		m.mu.Unlock()
		return waitForHead(m, tok)
	})
}

func waitForHead(m *fifoMutex, tok *fifoToken) Task[Releasable] {
	return Delay(func() Task[Releasable] {
		m.mu.Lock()
		atHead := len(m.queue) > 0 && m.queue[0] == tok
		m.mu.Unlock()
		if atHead {
			return Return[Releasable](tok)
		}
		return Bind(YieldOnce, func(struct{}) Task[Releasable] { return waitForHead(m, tok) })
	})
}

type fifoToken struct {
	owner    *fifoMutex
	released onceReleaser
}

func (t *fifoToken) Release() Task[struct{}] {
	return Delay(func() Task[struct{}] {
		t.released.guard()
		t.owner.mu.Lock()
		if len(t.owner.queue) > 0 && t.owner.queue[0] == t {
			t.owner.queue = t.owner.queue[1:]
		}
		t.owner.mu.Unlock()
		return Return(struct{}{})
	})
}

// --- parallel semaphore-backed mutex ---------------------------------------

// semaphoreMutex is the parallel-scheduler Mutex: a real OS-blocking lock
// instead of a cooperative FIFO queue, for the multi-threaded back-end.
type semaphoreMutex struct {
	sem *semaphore.Weighted
}

func newSemaphoreMutex() *semaphoreMutex {
	return &semaphoreMutex{sem: semaphore.NewWeighted(1)}
}

func (m *semaphoreMutex) Acquire() Task[Releasable] {
	return Delay(func() Task[Releasable] {
		if err := m.sem.Acquire(context.Background(), 1); err != nil {
			panic(err)
		}
		return Return[Releasable](&semaphoreToken{sem: m.sem, released: onceReleaser{name: "semaphore mutex token"}})
	})
}

type semaphoreToken struct {
	sem      *semaphore.Weighted
	released onceReleaser
}

func (t *semaphoreToken) Release() Task[struct{}] {
	return Delay(func() Task[struct{}] {
		t.released.guard()
		t.sem.Release(1)
		return Return(struct{}{})
	})
}
