// Package list implements the Harris/Michael lock-free ordered list of
// spec.md §4.5: logical deletion via a mark bit on the deleted node's own
// next link, followed by best-effort physical unlink, with every
// traverser obliged to help unlink any marked node it encounters.
//
// Grounded on od_node_list_lockfree_base (the hazard-protected
// get-then-CAS read/advance loop) generalized with the markable link
// from the link package for the delete-mark half of the algorithm that
// FIFO/stack do not need.
package list

import (
	"unsafe"

	"alconcurrent/errs"
	"alconcurrent/hazard"
	"alconcurrent/logger"
	"alconcurrent/node"
)

// Node is one list link: a markable, hazard-protected next pointer plus
// a value carrier.
type Node[T any] struct {
	node.MarkableHazardLink[Node[T]]
	node.Value[T]
}

// List is a Harris-style ordered singly-linked list. Construct with New.
type List[T any] struct {
	reg  *hazard.Registry
	pool *node.Pool[Node[T]]
	head *Node[T] // permanent sentinel, never user-visible
}

// New constructs an empty List.
func New[T any](reg *hazard.Registry, pool *node.Pool[Node[T]]) *List[T] {
	h := pool.Get()
	h.StorePlain(nil)
	return &List[T]{reg: reg, pool: pool, head: h}
}

func (l *List[T]) ctx() *hazard.Context { return l.reg.ContextForCurrentGoroutine() }

// FindIf traverses from head, physically unlinking any mark-observed
// node along the way, and returns the first (prev, curr) pair where
// pred(curr's value) is true. If no node satisfies pred, curr is nil. On
// any CAS loss while helping unlink, the traversal restarts from head,
// per spec.md §4.5. Callers must release both returned tokens.
func (l *List[T]) FindIf(pred func(T) bool) (prev, curr *Node[T], prevTok, currTok *hazard.Token) {
	ctx := l.ctx()
	for {
		prev = l.head
		prevTok = ctx.Acquire(unsafe.Pointer(prev))
		c, _, cTok := prev.ProtectLoad(ctx)
		curr, currTok = c, cTok

		restart := false
		for curr != nil {
			next, marked, nextTok := curr.ProtectLoad(ctx)
			if marked {
				if prev.CompareAndSwap(curr, false, next, false) {
					l.pool.Put(curr)
					currTok.Release()
					curr, currTok = next, nextTok
					continue
				}
				nextTok.Release()
				currTok.Release()
				prevTok.Release()
				restart = true
				break
			}
			if pred(curr.Get()) {
				nextTok.Release()
				return prev, curr, prevTok, currTok
			}
			prevTok.Release()
			prev, prevTok = curr, currTok
			curr, currTok = next, nextTok
		}
		if restart {
			continue
		}
		return prev, curr, prevTok, currTok
	}
}

// InsertToNextOfPrev links newNode between prev and curr: newNode.next is
// pre-set to curr, then prev.next is CASed from curr (unmarked) to
// newNode (unmarked). Returns false if prev has since become mark-marked
// or its next no longer equals curr; the caller must re-search via
// FindIf.
func (l *List[T]) InsertToNextOfPrev(newNode *Node[T], prev, curr *Node[T]) bool {
	newNode.StorePlain(curr)
	return prev.CompareAndSwap(curr, false, newNode, false)
}

// Remove logically deletes curr (try_set_mark), then best-effort
// physically unlinks it from prev. It returns false if curr was already
// marked by another goroutine, or if curr's next link changed before the
// mark could be set.
func (l *List[T]) Remove(prev, curr *Node[T]) bool {
	next, marked := curr.Load()
	if marked {
		return false
	}
	if !curr.TrySetMark(next) {
		return false
	}
	if prev.CompareAndSwap(curr, false, next, false) {
		l.pool.Put(curr)
	}
	return true
}

// RemoveMarkHead removes and returns the first live node's value, the
// convenience wrapper spec.md §4.5 calls remove_mark_head.
func (l *List[T]) RemoveMarkHead() (value T, ok bool) {
	for {
		prev, curr, prevTok, currTok := l.FindIf(func(T) bool { return true })
		if curr == nil {
			prevTok.Release()
			var zero T
			return zero, false
		}
		v := curr.Get()
		removed := l.Remove(prev, curr)
		prevTok.Release()
		currTok.Release()
		if removed {
			return v, true
		}
	}
}

// RemoveMarkTail removes and returns the last live node's value
// (remove_mark_tail in spec.md §4.5).
func (l *List[T]) RemoveMarkTail() (value T, ok bool) {
	ctx := l.ctx()
	for {
		prev := l.head
		prevTok := ctx.Acquire(unsafe.Pointer(prev))
		curr, _, currTok := prev.ProtectLoad(ctx)

		if curr == nil {
			prevTok.Release()
			var zero T
			return zero, false
		}

		restart := false
		for {
			next, marked, nextTok := curr.ProtectLoad(ctx)
			if marked {
				if prev.CompareAndSwap(curr, false, next, false) {
					l.pool.Put(curr)
					currTok.Release()
					curr, currTok = next, nextTok
					if curr == nil {
						// The unlinked node was last; prev may be the live
						// tail, so walk again from head.
						restart = true
						break
					}
					continue
				}
				nextTok.Release()
				restart = true
				break
			}
			if next == nil {
				// curr is the last live node.
				v := curr.Get()
				removed := l.Remove(prev, curr)
				nextTok.Release()
				prevTok.Release()
				currTok.Release()
				if removed {
					return v, true
				}
				restart = true
				break
			}
			prevTok.Release()
			prev, prevTok = curr, currTok
			curr, currTok = next, nextTok
		}
		if restart {
			prevTok.Release()
			continue
		}
	}
}

// ForEach traverses live (unmarked) nodes in list order, invoking f on
// each value. No exclusion is held across f, so f must be safe to call
// re-entrantly against concurrent mutation of the list (spec.md §4.5).
func (l *List[T]) ForEach(f func(T)) {
	ctx := l.ctx()
	curr := l.head
	for {
		next, _ := curr.Load()
		if next == nil {
			return
		}
		tok := ctx.Acquire(unsafe.Pointer(next))
		_, nextMarked := next.Load()
		if !nextMarked {
			f(next.Get())
		}
		curr = next
		tok.Release()
	}
}

// Size approximates the number of live nodes by traversal (spec.md
// §4.5); it is not a constant-time operation and is not linearizable
// against concurrent mutation.
func (l *List[T]) Size() int {
	n := 0
	l.ForEach(func(T) { n++ })
	return n
}

// Swap exchanges the contents of l and other. Documented, as spec.md
// §4.5 requires, as not thread-safe: callers must externally synchronize
// against concurrent readers/writers of either list.
func (l *List[T]) Swap(other *List[T]) {
	l.head, other.head = other.head, l.head
}

// Close tears the list down: the sentinel plus any live or
// marked-but-not-yet-unlinked node is returned to the node pool
// (Pool.Put, which defers to the retire manager if a hazard pointer
// still observes a node) rather than left for the caller to leak. If
// any node besides the sentinel remained (live or marked), spec.md §7's
// DestructorRemainingNodes is recorded with a WARN before that fallback
// disposal runs. Close is not
// thread-safe, the same discipline Swap requires.
func (l *List[T]) Close() {
	curr := l.head
	var n int
	for {
		next, _ := curr.Load()
		l.pool.Put(curr)
		if next == nil {
			break
		}
		curr = next
		n++
	}
	if n > 0 {
		d := errs.Record(errs.DestructorRemainingNodes, "list: %d node(s) still linked at Close, returned to the node pool", n)
		logger.Warn("%s", d)
	}
	l.head = nil
}
