package taskrt

import (
	"errors"
	"time"
)

// A Clock is the only environmental dependency the interpreters have: a
// monotonic wall-clock used to resolve [Wait] and [TimeOut]. Implementations
// must use a source that does not jump backwards.
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock, backed by [time.Now].
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// ErrSuspended is returned by Run when the ready-queue drains completely
// before the root task reaches Done. A task suspended in [Sync] (or waiting
// on a [Mutex], [Wait] or [TimeOut]) keeps re-enqueueing itself while it
// polls, so it never lets the queue drain: a run whose root is blocked that
// way does not return. RunParallel never returns ErrSuspended.
var ErrSuspended = errors.New("taskrt: root task did not complete before the ready queue drained")

// scheduler is the single-threaded cooperative driver: a FIFO ready-queue
// of zero-argument continuations, each one a closure over one task-thread's
// remaining work.
type scheduler struct {
	clock Clock
	queue []func()
}

func newScheduler(clock Clock) *scheduler { return &scheduler{clock: clock} }

func (s *scheduler) enqueueFront(k func()) {
	s.queue = append(s.queue, nil)
	copy(s.queue[1:], s.queue)
	s.queue[0] = k
}

func (s *scheduler) enqueueBack(k func()) {
	s.queue = append(s.queue, k)
}

func (s *scheduler) drain() {
	for len(s.queue) > 0 {
		k := s.queue[0]
		s.queue = s.queue[1:]
		k()
	}
}

// spawn drives a forked child task, discarding its final value.
func (s *scheduler) spawn(task Task[struct{}]) {
	spawnInto(s, task, func(struct{}) {})
}

// spawnInto drives task one step at a time, re-enqueueing its continuation
// as dictated by the step kind, until it reaches Done, at which point onDone
// is invoked with the final value.
func spawnInto[A any](s *scheduler, task Task[A], onDone func(A)) {
	st := task()
	switch st.kind {
	case stepDone:
		onDone(st.done)
	case stepFork:
		child, next := st.fork.child, st.fork.next
		s.enqueueBack(func() { s.spawn(child) })
		s.enqueueFront(func() { spawnInto(s, next, onDone) })
	case stepYield:
		next := st.yield
		s.enqueueBack(func() { spawnInto(s, next, onDone) })
	case stepWait:
		deadline := s.clock.Now().Add(st.wait.after)
		polled := waitUntil(s.clock, deadline, st.wait.next)
		s.enqueueBack(func() { spawnInto(s, polled, onDone) })
	case stepAcquireLock:
		m := newFIFOMutex()
		next := st.lock(m)
		s.enqueueBack(func() { spawnInto(s, next, onDone) })
	}
}

// waitUntil builds a self-perpetuating Task that yields until clock.Now()
// reaches deadline, then continues as next. TimeOut's timer signal polls the
// clock the same way in its own waitThenClaim (timeout.go).
func waitUntil[A any](clock Clock, deadline time.Time, next Task[A]) Task[A] {
	return Delay(func() Task[A] {
		if !clock.Now().Before(deadline) {
			return next
		}
		return Bind(YieldOnce, func(struct{}) Task[A] { return waitUntil(clock, deadline, next) })
	})
}

// Run drives task to completion using a single-threaded cooperative
// scheduler and the system clock. It returns task's result, or a non-nil
// error if task raised an uncaught failure or never completed before the
// ready-queue drained.
func Run[A any](task Task[A]) (A, error) {
	return RunWithClock(task, SystemClock{})
}

// RunWithClock is Run with an injectable Clock, for deterministic tests of
// Wait/TimeOut behavior that do not want to sleep in real time.
func RunWithClock[A any](task Task[A], clock Clock) (result A, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = failureFromPanic(r)
		}
	}()

	s := newScheduler(clock)
	completed := false
	spawnInto(s, task, func(a A) { result = a; completed = true })
	s.drain()
	if !completed && err == nil {
		err = ErrSuspended
	}
	return result, err
}
