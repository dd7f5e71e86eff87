package taskrt

import "sync/atomic"

// A Claim is a shared, atomically-updatable cell coordinating which
// subscription on a signal actually fires when more than one party may be
// racing to deliver a value to it. It has three states:
//
//   - Waiting: the initial state. No party has committed to firing yet.
//   - Claimed: a transient lock — some party is in the middle of attempting
//     to fire this subscription. Must be released back to Waiting (the
//     attempt failed) or forwarded to Synced (the attempt won).
//   - Synced: terminal. The subscription has fired; no further delivery may
//     occur against this claim.
//
// All transitions are compare-and-swap only, which is what lets a single
// Claim be shared safely by both branches of a [Choose]: only one of the two
// branches can ever win the race to Synced.
//
// A zero Claim is ready for use, in the Waiting state.
type Claim struct {
	state atomic.Int32
}

const (
	claimWaiting int32 = iota
	claimClaimed
	claimSynced
)

// NewClaim returns a fresh Claim in the Waiting state.
func NewClaim() *Claim { return new(Claim) }

// isWaiting reports whether c is currently in the Waiting state.
func (c *Claim) isWaiting() bool { return c.state.Load() == claimWaiting }

// Synced reports whether c has reached the terminal Synced state.
func (c *Claim) Synced() bool { return c.state.Load() == claimSynced }

// tryClaim attempts Waiting -> Claimed. It reports whether it succeeded.
func (c *Claim) tryClaim() bool { return c.state.CompareAndSwap(claimWaiting, claimClaimed) }

// rollback attempts Claimed -> Waiting, abandoning a failed claim attempt.
func (c *Claim) rollback() { c.state.CompareAndSwap(claimClaimed, claimWaiting) }

// commitClaimed attempts Claimed -> Synced, the "win" transition following a
// successful tryClaim.
func (c *Claim) commitClaimed() bool { return c.state.CompareAndSwap(claimClaimed, claimSynced) }

// commitWaiting attempts Waiting -> Synced directly, the fast-path
// transition used when no Claimed intermediate step is needed (e.g. firing
// against a plain, unclaimed subscription).
func (c *Claim) commitWaiting() bool { return c.state.CompareAndSwap(claimWaiting, claimSynced) }

// rendezvousResult is the outcome of attemptRendezvous, the double-CAS
// protocol shared by Channel's Send.Block and Receive.Block.
type rendezvousResult int

const (
	// rendezvousFired means both claims transitioned and the rendezvous is
	// complete: the caller should deliver values to both sides now.
	rendezvousFired rendezvousResult = iota
	// rendezvousDrop means the other side's claim was already Synced by an
	// unrelated party; the caller should discard that queue entry and keep
	// scanning.
	rendezvousDrop
	// rendezvousAbandon means mine is no longer Waiting (a concurrent party
	// already claimed us, most likely the other branch of our own Choose);
	// the caller must stop scanning and leave any candidate queue entry in
	// place.
	rendezvousAbandon
)

// attemptRendezvous runs the double-CAS protocol shared by every channel
// operation: mine is the scanning party's own claim, other is the candidate
// counterpart's claim. It loops internally past transient Claimed
// observations on other (another scan elsewhere racing for the same
// counterpart) until a definitive outcome is reached.
func attemptRendezvous(mine, other *Claim) rendezvousResult {
	for {
		if !mine.isWaiting() {
			return rendezvousAbandon
		}
		if !mine.tryClaim() {
			// Lost a race to move mine out of Waiting; recheck above.
			continue
		}
		switch {
		case other.commitWaiting():
			mine.commitClaimed()
			return rendezvousFired
		case other.Synced():
			mine.rollback()
			return rendezvousDrop
		default: // other is transiently Claimed by some other attempt.
			mine.rollback()
		}
	}
}
