// Package taskrt provides a cooperative concurrency runtime built from pure
// descriptions of effects ("tasks"), composable first-class synchronous
// events ("signals"), and CSP-style rendezvous channels.
//
// A [Task] is an immutable description of a computation: stepping it once
// either produces a final value, or one of a small set of scheduling
// requests (fork a sibling, yield, wait, acquire a lock) together with a
// continuation. Two interpreters are provided: [Run] drives a single
// goroutine's worth of cooperative scheduling, and [RunParallel] maps the
// same task tree onto real OS threads. Both implement identical observable
// semantics for synchronization; they differ only in parallelism and
// timing.
package taskrt

import (
	"fmt"
	"runtime/debug"
	"time"
)

// A Task describes a computation that eventually produces a value of type A.
// Tasks are immutable: stepping the same Task twice is legal and, barring
// side effects a caller explicitly encoded, produces equivalent results.
// Construct tasks with [Return], [Delay], [Bind] and the other functions in
// this package; do not implement the underlying function type directly.
type Task[A any] func() step[A]

type stepKind uint8

const (
	stepDone stepKind = iota
	stepFork
	stepYield
	stepWait
	stepAcquireLock
)

type forkPayload[A any] struct {
	child Task[struct{}]
	next  Task[A]
}

type waitPayload[A any] struct {
	after time.Duration
	next  Task[A]
}

// step is the tagged union of results a Task may produce when evaluated
// once. Exactly one payload field is meaningful, selected by kind.
type step[A any] struct {
	kind stepKind

	done A

	fork forkPayload[A]

	yield Task[A]

	wait waitPayload[A]

	// lock carries both the "assign" and "next" halves of AcquireLock as a
	// single continuation-passing closure: invoking it with the granted
	// mutex performs the assignment and returns the task that continues.
	lock func(Mutex) Task[A]
}

// Return builds a Task that immediately steps to a with no further effect.
func Return[A any](a A) Task[A] {
	return func() step[A] { return step[A]{kind: stepDone, done: a} }
}

// Delay defers the construction of a Task until it is actually stepped. Use
// Delay to wrap any control structure whose side effects (allocating
// counters, reading mutable captured state, and so on) must not escape
// construction time.
func Delay[A any](thunk func() Task[A]) Task[A] {
	return func() step[A] { return thunk()() }
}

// Bind sequences source and the task produced by k from source's result.
// Bind commutes past every scheduling node: if source steps to Fork, Yield,
// Wait or AcquireLock, Bind(source, k) steps to the same kind of node with
// its continuation rewritten to Bind(continuation, k).
func Bind[A, B any](source Task[A], k func(A) Task[B]) Task[B] {
	return func() step[B] {
		st := source()
		switch st.kind {
		case stepDone:
			return k(st.done)()
		case stepFork:
			return step[B]{kind: stepFork, fork: forkPayload[B]{
				child: st.fork.child,
				next:  Bind(st.fork.next, k),
			}}
		case stepYield:
			return step[B]{kind: stepYield, yield: Bind(st.yield, k)}
		case stepWait:
			return step[B]{kind: stepWait, wait: waitPayload[B]{
				after: st.wait.after,
				next:  Bind(st.wait.next, k),
			}}
		case stepAcquireLock:
			prevLock := st.lock
			return step[B]{kind: stepAcquireLock, lock: func(m Mutex) Task[B] {
				return Bind(prevLock(m), k)
			}}
		default:
			panic(fmt.Sprintf("taskrt: unreachable step kind %d", st.kind))
		}
	}
}

// Then sequences source and next, discarding source's result. It is a
// convenience wrapper around Bind for the common case where the first
// task's value carries no information.
func Then[A, B any](source Task[A], next Task[B]) Task[B] {
	return Bind(source, func(A) Task[B] { return next })
}

// Map transforms a Task's result with a pure function.
func Map[A, B any](f func(A) B, t Task[A]) Task[B] {
	return Bind(t, func(a A) Task[B] { return Return(f(a)) })
}

// Fork spawns child as a sibling continuation and yields struct{}{} itself,
// i.e. it steps to Fork(child, Done(unit)).
func Fork(child Task[struct{}]) Task[struct{}] {
	return func() step[struct{}] {
		return step[struct{}]{kind: stepFork, fork: forkPayload[struct{}]{
			child: child,
			next:  Return(struct{}{}),
		}}
	}
}

// YieldOnce voluntarily relinquishes control for one scheduler tick.
var YieldOnce Task[struct{}] = func() step[struct{}] {
	return step[struct{}]{kind: stepYield, yield: Return(struct{}{})}
}

// Wait resumes no earlier than d from now, meanwhile passing control to
// other ready work.
func Wait(d time.Duration) Task[struct{}] {
	return func() step[struct{}] {
		return step[struct{}]{kind: stepWait, wait: waitPayload[struct{}]{
			after: d,
			next:  Return(struct{}{}),
		}}
	}
}

// RequestLock asks the scheduler to construct a fresh [Mutex] and hand it
// back. The concrete Mutex implementation is chosen by whichever
// interpreter (Run or RunParallel) services the request.
var RequestLock Task[Mutex] = func() step[Mutex] {
	return step[Mutex]{kind: stepAcquireLock, lock: func(m Mutex) Task[Mutex] {
		return Return[Mutex](m)
	}}
}

// TryWith steps body, and, if evaluating body or any of the continuations it
// emits raises a failure, recovers it and steps into handler(err) instead.
// TryWith is pushed transparently into every scheduling node body emits, so
// a failure raised many scheduler ticks after body was first stepped is
// still caught by the same TryWith.
func TryWith[A any](body Task[A], handler func(error) Task[A]) Task[A] {
	return func() (result step[A]) {
		defer func() {
			if r := recover(); r != nil {
				result = handler(failureFromPanic(r))()
			}
		}()
		st := body()
		switch st.kind {
		case stepDone:
			return st
		case stepFork:
			return step[A]{kind: stepFork, fork: forkPayload[A]{
				child: st.fork.child,
				next:  TryWith(st.fork.next, handler),
			}}
		case stepYield:
			return step[A]{kind: stepYield, yield: TryWith(st.yield, handler)}
		case stepWait:
			return step[A]{kind: stepWait, wait: waitPayload[A]{
				after: st.wait.after,
				next:  TryWith(st.wait.next, handler),
			}}
		case stepAcquireLock:
			prevLock := st.lock
			return step[A]{kind: stepAcquireLock, lock: func(m Mutex) Task[A] {
				return TryWith(prevLock(m), handler)
			}}
		default:
			panic(fmt.Sprintf("taskrt: unreachable step kind %d", st.kind))
		}
	}
}

// TryFinally runs finalizer exactly once after body completes, whether body
// steps to Done or raises a failure. On failure, finalizer runs and then the
// original failure is re-raised; on success, finalizer runs and then body's
// value is returned.
func TryFinally[A any](body Task[A], finalizer Task[struct{}]) Task[A] {
	succeeded := Bind(body, func(a A) Task[A] {
		return Bind(finalizer, func(struct{}) Task[A] { return Return(a) })
	})
	return TryWith(succeeded, func(err error) Task[A] {
		return Bind(finalizer, func(struct{}) Task[A] {
			return Delay(func() Task[A] { panic(err) })
		})
	})
}

// Using runs body(resource) and guarantees resource.Release() runs exactly
// once afterward, on both the success and failure path.
func Using[R Releasable, A any](resource R, body func(R) Task[A]) Task[A] {
	return TryFinally(body(resource), resource.Release())
}

// While repeatedly runs body as long as pred returns true, checked before
// each iteration.
func While(pred func() bool, body Task[struct{}]) Task[struct{}] {
	return Delay(func() Task[struct{}] {
		if !pred() {
			return Return(struct{}{})
		}
		return Bind(body, func(struct{}) Task[struct{}] { return While(pred, body) })
	})
}

// For runs fn once for each element of seq, in order.
func For[T any](seq []T, fn func(T) Task[struct{}]) Task[struct{}] {
	return Delay(func() Task[struct{}] {
		if len(seq) == 0 {
			return Return(struct{}{})
		}
		head, rest := seq[0], seq[1:]
		return Bind(fn(head), func(struct{}) Task[struct{}] { return For(rest, fn) })
	})
}

func failureFromPanic(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("taskrt: panic: %v\n%s", r, string(debug.Stack()))
}
