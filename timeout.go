package taskrt

import "time"

// TimeOut composes signal with a clock-driven timer via [Choose]: Syncing
// the result returns Some(value) if signal rendezvous first, or None once d
// has elapsed since TimeOut was called, whichever comes first.
//
// The deadline is computed once, at the moment TimeOut is called, not
// re-evaluated on every Sync of the returned signal — the same "fixed at
// construction" rule Choose itself follows for its branch order.
func TimeOut[A any](clock Clock, d time.Duration, signal Signal[A]) Signal[Option[A]] {
	deadline := clock.Now().Add(d)
	return Choose(
		MapSignal(func(a A) Option[A] { return Some(a) }, signal),
		timeoutTimer[A]{clock: clock, deadline: deadline},
	)
}

// timeoutTimer is a Signal that fires with None once clock.Now() passes
// deadline. Its Block loop reuses the same Yield-poll technique as
// scheduler.go's waitUntil and signal.go's Sync result wait, so there is
// exactly one "wait for wall-clock time to pass" idiom in the codebase.
type timeoutTimer[A any] struct {
	clock    Clock
	deadline time.Time
}

func (t timeoutTimer[A]) Poll() bool { return !t.clock.Now().Before(t.deadline) }

func (t timeoutTimer[A]) Commit() Task[Option[Option[A]]] {
	return Delay(func() Task[Option[Option[A]]] {
		if t.Poll() {
			return Return(Some(None[A]()))
		}
		return Return(None[Option[A]]())
	})
}

func (t timeoutTimer[A]) Block(claim *Claim, deliver func(Option[A])) Task[struct{}] {
	return waitThenClaim(t.clock, t.deadline, claim, func() { deliver(None[A]()) })
}

func waitThenClaim(clock Clock, deadline time.Time, claim *Claim, fire func()) Task[struct{}] {
	return Delay(func() Task[struct{}] {
		if claim.Synced() {
			// The other side of a Choose already fired; nothing to do.
			return Return(struct{}{})
		}
		if !clock.Now().Before(deadline) {
			if claim.commitWaiting() {
				fire()
			}
			return Return(struct{}{})
		}
		return Bind(YieldOnce, func(struct{}) Task[struct{}] {
			return waitThenClaim(clock, deadline, claim, fire)
		})
	})
}
