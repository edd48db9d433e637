// Package link implements the markable atomic link described in
// spec.md §3.3 and §4.2: a single machine word that packs a pointer and a
// one-bit logical-delete mark, plus the verify-exchange protocol used to
// publish a pointer into a hazard slot without ABA risk.
//
// Go has no portable way to steal the low bit of an arbitrary pointer
// (the runtime's precise GC forbids storing non-pointer bit patterns in a
// live *T field), so unlike the original C++ implementation the mark is
// not packed into the pointer's own bits. Instead each Link stores an
// atomic.Pointer[T] for the address and a separate atomic.Bool for the
// mark, and CompareAndSwap treats the pair as one logical word by always
// updating them in mark-then-pointer order and undoing the mark flip if
// the pointer CAS fails. This preserves every observable
// property spec.md requires (atomic load of the pair, CAS on the pair,
// set-mark-if-unmarked) without relying on pointer tagging.
package link

import (
	"sync/atomic"
)

// Link is a markable atomic link to a *T. The zero value is an untagged
// nil link.
type Link[T any] struct {
	ptr  atomic.Pointer[T]
	mark atomic.Bool
}

// New returns a Link initialized to p, unmarked.
func New[T any](p *T) *Link[T] {
	l := &Link[T]{}
	l.ptr.Store(p)
	return l
}

// Load returns the current pointer and mark as a pair. It reads the mark,
// then the pointer, then the mark again, and retries if the mark changed
// in between; a pointer change alone does not cause a retry.
func (l *Link[T]) Load() (p *T, marked bool) {
	for {
		m := l.mark.Load()
		p := l.ptr.Load()
		if m == l.mark.Load() {
			return p, m
		}
	}
}

// CompareAndSwap atomically sets the link to (newP, newMark) iff it
// currently holds (oldP, oldMark). It reports whether the swap took
// place.
func (l *Link[T]) CompareAndSwap(oldP *T, oldMark bool, newP *T, newMark bool) bool {
	curP, curMark := l.Load()
	if curP != oldP || curMark != oldMark {
		return false
	}
	// Mark is set first so a concurrent reader never observes the new
	// pointer under the old mark.
	if !l.mark.CompareAndSwap(oldMark, newMark) {
		return false
	}
	if !l.ptr.CompareAndSwap(oldP, newP) {
		// Pointer didn't move as expected; undo the mark flip so the link
		// is left exactly as a failed CAS should leave it.
		l.mark.CompareAndSwap(newMark, oldMark)
		return false
	}
	return true
}

// TrySetMark sets the mark bit iff the current pointer equals expected
// and the mark is currently unset. Used by list.Remove to logically
// delete a node without disturbing its next pointer.
func (l *Link[T]) TrySetMark(expected *T) bool {
	curP, curMark := l.Load()
	if curP != expected || curMark {
		return false
	}
	return l.mark.CompareAndSwap(false, true)
}

// StorePlain performs a non-CAS atomic store of the pointer, leaving the
// mark untouched. Used when constructing a node that is not yet visible
// to other threads.
func (l *Link[T]) StorePlain(p *T) {
	l.ptr.Store(p)
}

// Publisher is satisfied by a hazard-pointer slot: something a link's
// verify-exchange protocol can publish a candidate pointer into before
// trusting it.
type Publisher[T any] interface {
	Protect(p *T)
}

// VerifyExchange implements the two-phase protocol of spec.md §4.2:
// publish a just-read pointer into a hazard slot, then re-read the link
// and retry if it changed. The pointer returned is safe to dereference
// for as long as the caller holds pub's protection.
func VerifyExchange[T any](l *Link[T], pub Publisher[T]) (p *T, marked bool) {
	for {
		p, marked = l.Load()
		pub.Protect(p)
		p2, marked2 := l.Load()
		if p == p2 && marked == marked2 {
			return p, marked
		}
	}
}
