package taskrt

import (
	"math/rand/v2"
	"sync"
)

// Option is a value that may or may not be present.
type Option[A any] struct {
	Value A
	Ok    bool
}

// Some wraps a present value.
func Some[A any](a A) Option[A] { return Option[A]{Value: a, Ok: true} }

// None returns an absent value.
func None[A any]() Option[A] { return Option[A]{} }

// A Signal is a first-class, composable description of a synchronizable
// event. Poll is a best-effort, side-effect-free probe of whether the
// signal could commit right now. Commit is an atomic, task-valued attempt to
// consume the signal. Block registers claim and deliver with the signal so
// that a future firing can deliver a value even though no counterpart was
// available when Block was called.
//
// Signal implementations must be safe to Poll, Commit and Block repeatedly
// and concurrently; [Channel]'s Send and Receive are the primary source of
// nontrivial Signals, but [Always], [Never], [MapSignal], [LazySignal], [Choose]
// and [Select] build new ones out of existing ones.
type Signal[A any] interface {
	Poll() bool
	Commit() Task[Option[A]]
	Block(claim *Claim, deliver func(A)) Task[struct{}]
}

// Always returns a Signal that is immediately ready to deliver a, every
// time it is polled, committed or blocked against.
func Always[A any](a A) Signal[A] { return alwaysSignal[A]{value: a} }

type alwaysSignal[A any] struct{ value A }

func (s alwaysSignal[A]) Poll() bool { return true }

func (s alwaysSignal[A]) Commit() Task[Option[A]] { return Return(Some(s.value)) }

func (s alwaysSignal[A]) Block(claim *Claim, deliver func(A)) Task[struct{}] {
	return Delay(func() Task[struct{}] {
		if claim.commitWaiting() {
			deliver(s.value)
		}
		return Return(struct{}{})
	})
}

// Never returns a Signal that can never commit or deliver.
func Never[A any]() Signal[A] { return neverSignal[A]{} }

type neverSignal[A any] struct{}

func (neverSignal[A]) Poll() bool { return false }

func (neverSignal[A]) Commit() Task[Option[A]] { return Return(None[A]()) }

func (neverSignal[A]) Block(*Claim, func(A)) Task[struct{}] { return Return(struct{}{}) }

// MapSignal transforms the values a Signal delivers with a pure function f.
func MapSignal[A, B any](f func(A) B, s Signal[A]) Signal[B] {
	return mapSignal[A, B]{f: f, source: s}
}

type mapSignal[A, B any] struct {
	f      func(A) B
	source Signal[A]
}

func (m mapSignal[A, B]) Poll() bool { return m.source.Poll() }

func (m mapSignal[A, B]) Commit() Task[Option[B]] {
	return Bind(m.source.Commit(), func(o Option[A]) Task[Option[B]] {
		if !o.Ok {
			return Return(None[B]())
		}
		return Return(Some(m.f(o.Value)))
	})
}

func (m mapSignal[A, B]) Block(claim *Claim, deliver func(B)) Task[struct{}] {
	return m.source.Block(claim, func(a A) { deliver(m.f(a)) })
}

// LazySignal memoizes a lazily produced Signal and forwards all three
// operations to it, so that composing signals does not force their
// construction (and any side effects that construction might otherwise
// have) until the signal is actually used.
func LazySignal[A any](thunk func() Signal[A]) Signal[A] {
	return &lazySignal[A]{thunk: thunk}
}

type lazySignal[A any] struct {
	once  sync.Once
	thunk func() Signal[A]
	memo  Signal[A]
}

func (l *lazySignal[A]) resolve() Signal[A] {
	l.once.Do(func() { l.memo = l.thunk() })
	return l.memo
}

func (l *lazySignal[A]) Poll() bool { return l.resolve().Poll() }

func (l *lazySignal[A]) Commit() Task[Option[A]] { return l.resolve().Commit() }

func (l *lazySignal[A]) Block(claim *Claim, deliver func(A)) Task[struct{}] {
	return l.resolve().Block(claim, deliver)
}

// Choose combines two signals into one that fires from whichever commits or
// blocks successfully first. The branch order is randomized once, at
// construction, so that repeatedly preferring the first branch of a Choose
// built inside a loop does not starve the second branch.
//
// Both branches Block against the very same claim cell, which is the crux
// of the claim protocol: whichever branch's counterpart wins the race to
// transition that claim to Synced is the one that fires, and the loser
// observes Synced on its own next Commit attempt and silently withdraws.
func Choose[A any](s1, s2 Signal[A]) Signal[A] {
	if rand.IntN(2) == 0 {
		return chooseSignal[A]{first: s1, second: s2}
	}
	return chooseSignal[A]{first: s2, second: s1}
}

type chooseSignal[A any] struct {
	first, second Signal[A]
}

func (c chooseSignal[A]) Poll() bool { return c.first.Poll() || c.second.Poll() }

func (c chooseSignal[A]) Commit() Task[Option[A]] {
	return Bind(c.first.Commit(), func(o Option[A]) Task[Option[A]] {
		if o.Ok {
			return Return(o)
		}
		return c.second.Commit()
	})
}

func (c chooseSignal[A]) Block(claim *Claim, deliver func(A)) Task[struct{}] {
	return Bind(c.first.Block(claim, deliver), func(struct{}) Task[struct{}] {
		return c.second.Block(claim, deliver)
	})
}

// Select folds Choose over Never across signals, so that exactly one of
// them fires per Sync regardless of how many are offered.
func Select[A any](signals ...Signal[A]) Signal[A] {
	result := Signal[A](Never[A]())
	for _, s := range signals {
		result = Choose(result, s)
	}
	return result
}

// Sync is the commitment protocol: it turns a Signal into a Task that
// suspends until the signal fires and then delivers its value.
//
// Sync first tries the fast path (Poll then Commit); if that does not
// produce a value, it allocates a fresh claim, registers a subscription via
// Block, and yields until some future firing delivers a result.
func Sync[A any](s Signal[A]) Task[A] {
	return Delay(func() Task[A] {
		if s.Poll() {
			return Bind(s.Commit(), func(o Option[A]) Task[A] {
				if o.Ok {
					return Return(o.Value)
				}
				return syncBlock(s)
			})
		}
		return syncBlock(s)
	})
}

func syncBlock[A any](s Signal[A]) Task[A] {
	claim := NewClaim()
	box := newResultBox[A]()
	return Bind(s.Block(claim, box.deliver), func(struct{}) Task[A] {
		return waitForResult(box)
	})
}

func waitForResult[A any](box *resultBox[A]) Task[A] {
	return Delay(func() Task[A] {
		if v, ok := box.peek(); ok {
			return Return(v)
		}
		return Bind(YieldOnce, func(struct{}) Task[A] { return waitForResult(box) })
	})
}

