package taskrt

import (
	"runtime"
	"sync"
)

// A Channel is a synchronous rendezvous point, modeled on CSP/Go channels
// but strictly capacity zero: a Send and a Receive complete together in a
// single coordinated step, or not at all. Send and Receive return [Signal]
// values; nothing happens until one is run through [Sync] (possibly as part
// of a larger [Select]).
//
// A Channel holds only its two queues and the mutex that guards them; all
// matching logic lives in the Send/Receive signals themselves.
type Channel[A any] struct {
	mu        sync.Mutex
	senders   []*senderEntry[A]
	receivers []*receiverEntry[A]
}

type senderEntry[A any] struct {
	claim  *Claim
	notify func()
	value  A
}

type receiverEntry[A any] struct {
	claim   *Claim
	deliver func(A)
}

// NewChannel returns a new, empty rendezvous channel.
func NewChannel[A any]() *Channel[A] { return new(Channel[A]) }

// Send returns a Signal that rendezvous with a matching Receive, handing it
// value. Like every Signal a Channel produces, it is single-use: Syncing it
// results in exactly one rendezvous.
func (c *Channel[A]) Send(value A) Signal[struct{}] {
	return &sendSignal[A]{ch: c, value: value}
}

// Receive returns a Signal that rendezvous with a matching Send, delivering
// the value the sender offered.
func (c *Channel[A]) Receive() Signal[A] {
	return &recvSignal[A]{ch: c}
}

type sendSignal[A any] struct {
	ch    *Channel[A]
	value A
}

func (s *sendSignal[A]) Poll() bool {
	s.ch.mu.Lock()
	defer s.ch.mu.Unlock()
	return len(s.ch.receivers) > 0
}

func (s *sendSignal[A]) Commit() Task[Option[struct{}]] {
	return Delay(func() Task[Option[struct{}]] {
		s.ch.mu.Lock()
		defer s.ch.mu.Unlock()

		for len(s.ch.receivers) > 0 {
			r := s.ch.receivers[0]
			switch {
			case r.claim.commitWaiting():
				s.ch.receivers = s.ch.receivers[1:]
				r.deliver(s.value)
				return Return(Some(struct{}{}))
			case r.claim.Synced():
				// Already claimed by another sender; drop and keep scanning.
				s.ch.receivers = s.ch.receivers[1:]
			default:
				// Transiently Claimed by a concurrent Block scan: retry.
				runtime.Gosched()
			}
		}
		return Return(None[struct{}]())
	})
}

func (s *sendSignal[A]) Block(myClaim *Claim, notifySender func(struct{})) Task[struct{}] {
	return Delay(func() Task[struct{}] {
		s.ch.mu.Lock()
		defer s.ch.mu.Unlock()

		if !myClaim.isWaiting() {
			// Someone already claimed us (e.g. our own Choose sibling won).
			return Return(struct{}{})
		}

		i := 0
		for i < len(s.ch.receivers) {
			r := s.ch.receivers[i]
			if r.claim == myClaim {
				i++
				continue
			}
			switch attemptRendezvous(myClaim, r.claim) {
			case rendezvousFired:
				s.ch.receivers = removeAt(s.ch.receivers, i)
				notifySender(struct{}{})
				r.deliver(s.value)
				return Return(struct{}{})
			case rendezvousDrop:
				s.ch.receivers = removeAt(s.ch.receivers, i)
			case rendezvousAbandon:
				return Return(struct{}{})
			}
		}

		s.ch.senders = append(s.ch.senders, &senderEntry[A]{
			claim:  myClaim,
			notify: func() { notifySender(struct{}{}) },
			value:  s.value,
		})
		return Return(struct{}{})
	})
}

type recvSignal[A any] struct {
	ch *Channel[A]
}

func (r *recvSignal[A]) Poll() bool {
	r.ch.mu.Lock()
	defer r.ch.mu.Unlock()
	return len(r.ch.senders) > 0
}

func (r *recvSignal[A]) Commit() Task[Option[A]] {
	return Delay(func() Task[Option[A]] {
		r.ch.mu.Lock()
		defer r.ch.mu.Unlock()

		for len(r.ch.senders) > 0 {
			s := r.ch.senders[0]
			switch {
			case s.claim.commitWaiting():
				r.ch.senders = r.ch.senders[1:]
				s.notify()
				return Return(Some(s.value))
			case s.claim.Synced():
				r.ch.senders = r.ch.senders[1:]
			default:
				runtime.Gosched()
			}
		}
		return Return(None[A]())
	})
}

func (r *recvSignal[A]) Block(myClaim *Claim, deliver func(A)) Task[struct{}] {
	return Delay(func() Task[struct{}] {
		r.ch.mu.Lock()
		defer r.ch.mu.Unlock()

		if !myClaim.isWaiting() {
			return Return(struct{}{})
		}

		i := 0
		for i < len(r.ch.senders) {
			s := r.ch.senders[i]
			if s.claim == myClaim {
				i++
				continue
			}
			switch attemptRendezvous(myClaim, s.claim) {
			case rendezvousFired:
				r.ch.senders = removeAt(r.ch.senders, i)
				s.notify()
				deliver(s.value)
				return Return(struct{}{})
			case rendezvousDrop:
				r.ch.senders = removeAt(r.ch.senders, i)
			case rendezvousAbandon:
				return Return(struct{}{})
			}
		}

		r.ch.receivers = append(r.ch.receivers, &receiverEntry[A]{claim: myClaim, deliver: deliver})
		return Return(struct{}{})
	})
}

func removeAt[T any](s []T, i int) []T {
	return append(s[:i], s[i+1:]...)
}
