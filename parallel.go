package taskrt

import (
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// RunParallel drives task to completion by mapping it onto real OS threads:
// Fork spawns a new goroutine for the child and continues the parent
// immediately, Yield hints the Go scheduler to run another goroutine, and
// Wait really sleeps the calling goroutine. The mutex produced for
// [RequestLock] is a real blocking semaphore rather than the cooperative
// FIFO token queue [Run] uses.
//
// Fork/join is implemented with [golang.org/x/sync/errgroup], grounded on
// the same fan-out-and-join pattern used elsewhere in this codebase's
// surrounding ecosystem for independent parallel work (see DESIGN.md).
func RunParallel[A any](task Task[A]) (result A, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = failureFromPanic(r)
		}
	}()

	var g errgroup.Group
	result = driveParallel(&g, task)
	if werr := g.Wait(); werr != nil && err == nil {
		err = werr
	}
	return result, err
}

func driveParallel[A any](g *errgroup.Group, task Task[A]) A {
	for {
		st := task()
		switch st.kind {
		case stepDone:
			return st.done
		case stepFork:
			child := st.fork.child
			g.Go(func() (ferr error) {
				defer func() {
					if r := recover(); r != nil {
						ferr = failureFromPanic(r)
					}
				}()
				driveParallel(g, child)
				return nil
			})
			task = st.fork.next
		case stepYield:
			runtime.Gosched()
			task = st.yield
		case stepWait:
			time.Sleep(st.wait.after)
			task = st.wait.next
		case stepAcquireLock:
			m := newSemaphoreMutex()
			task = st.lock(m)
		default:
			panic("taskrt: unreachable step kind in parallel driver")
		}
	}
}
