// Package fifo implements the Michael–Scott lock-free queue of spec.md
// §4.3: a sentinel-headed singly-linked list with hazard-protected
// head/tail reads, helping on a stale tail, and a pop-time callback that
// is the sole point at which a payload may be extracted under hazard
// protection.
//
// Grounded on od_node_list_lockfree_base's push_front/pop_front from the
// original library's od_node_base.hpp (the hazard_ptr<T> get-then-CAS
// loop) generalized to a two-ended queue, and on spec.md §4.3's explicit
// six-step push_back/pop_front algorithm.
package fifo

import (
	"sync/atomic"
	"unsafe"

	"alconcurrent/errs"
	"alconcurrent/hazard"
	"alconcurrent/logger"
	"alconcurrent/node"
)

// Node is one FIFO link: a hazard-protected next pointer plus a value
// carrier. The sentinel node's carrier is never populated.
type Node[T any] struct {
	node.HazardLink[Node[T]]
	node.Value[T]
}

// Queue is a Michael–Scott FIFO. The zero value is not usable; construct
// with New.
type Queue[T any] struct {
	reg  *hazard.Registry
	pool *node.Pool[Node[T]]

	head atomic.Pointer[Node[T]]
	tail atomic.Pointer[Node[T]]

	released atomic.Bool
}

// New constructs an empty Queue with a fresh sentinel node, so head is
// never nil (spec.md §4.3's invariant (i)).
func New[T any](reg *hazard.Registry, pool *node.Pool[Node[T]]) *Queue[T] {
	sentinel := pool.Get()
	sentinel.Store(nil)
	q := &Queue[T]{reg: reg, pool: pool}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)
	return q
}

func (q *Queue[T]) ctx() *hazard.Context { return q.reg.ContextForCurrentGoroutine() }

// protect publishes the value currently held by ptr into a fresh hazard
// token via verify-exchange (spec.md §4.2) and returns both.
func protect[T any](ctx *hazard.Context, ptr *atomic.Pointer[T]) (*T, *hazard.Token) {
	for {
		p := ptr.Load()
		tok := ctx.Acquire(unsafe.Pointer(p))
		if ptr.Load() == p {
			return p, tok
		}
		tok.Release()
	}
}

// PushBack appends v to the tail of the queue.
func (q *Queue[T]) PushBack(v T) {
	n := q.pool.Get()
	n.Store(nil)
	n.Set(v)

	ctx := q.ctx()
	for {
		tail, tailTok := protect(ctx, &q.tail)
		next := tail.Load()
		if next != nil {
			// Another thread already appended; help advance tail and retry.
			q.tail.CompareAndSwap(tail, next)
			tailTok.Release()
			continue
		}
		if tail.CompareAndSwap(nil, n) {
			// Best-effort tail advance; failure here is self-healing, per
			// spec.md §4.3 step 3.
			q.tail.CompareAndSwap(tail, n)
			tailTok.Release()
			return
		}
		tailTok.Release()
	}
}

// PopFront removes and returns the value at the head of the queue. ok is
// false iff the queue was empty.
func (q *Queue[T]) PopFront() (value T, ok bool) {
	ctx := q.ctx()
	for {
		head, headTok := protect(ctx, &q.head)
		next := head.Load()
		if next == nil {
			headTok.Release()
			var zero T
			return zero, false
		}
		if head == q.tail.Load() {
			// Stale tail: help advance and retry.
			q.tail.CompareAndSwap(head, next)
			headTok.Release()
			continue
		}
		nextTok := ctx.Acquire(unsafe.Pointer(next))
		if head != q.head.Load() {
			nextTok.Release()
			headTok.Release()
			continue
		}
		// The callback (Get) is the sole point at which the payload may
		// be extracted, before head is swung, per spec.md §4.3 step 5.
		value = next.Get()
		swung := q.head.CompareAndSwap(head, next)
		nextTok.Release()
		headTok.Release()
		if swung {
			q.pool.Put(head)
			return value, true
		}
	}
}

// PushFront prepends a payload node at the head, per spec.md §4.3's rare
// helper: if the queue is empty this degrades to PushBack; otherwise the
// sentinel is swapped for a newly allocated one, whose next chains to
// value ahead of the former head.next.
func (q *Queue[T]) PushFront(value T) {
	valueNode := q.pool.Get()
	valueNode.Store(nil)
	valueNode.Set(value)
	newSentinel := q.pool.Get()
	newSentinel.Store(nil)

	ctx := q.ctx()
	for {
		head, headTok := protect(ctx, &q.head)
		next := head.Load()
		if next == nil {
			// Empty queue: converting to a push_back that installs
			// value_node directly, per spec.md §4.3.
			if head.CompareAndSwap(nil, valueNode) {
				q.tail.CompareAndSwap(head, valueNode)
				q.pool.Put(newSentinel)
				headTok.Release()
				return
			}
			headTok.Release()
			continue
		}
		valueNode.Store(next)
		newSentinel.Store(valueNode)
		swung := q.head.CompareAndSwap(head, newSentinel)
		headTok.Release()
		if swung {
			q.pool.Put(head)
			return
		}
	}
}

// IsEmpty reports whether the queue currently has no payload nodes.
func (q *Queue[T]) IsEmpty() bool {
	return q.head.Load().Load() == nil
}

// Close tears the queue down: the sentinel plus any payload nodes still
// linked are returned to the node pool (Pool.Put, which defers to the
// retire manager if a hazard pointer still observes a node) rather than
// left for the caller to leak. If any payload nodes remained, spec.md
// §7's DestructorRemainingNodes is recorded with a WARN before that
// fallback disposal runs. Close is not thread-safe: callers must ensure
// no concurrent PushBack/PushFront/PopFront is in flight.
func (q *Queue[T]) Close() {
	head := q.head.Load()
	var n int
	for {
		next := head.Load()
		q.pool.Put(head)
		if next == nil {
			break
		}
		head = next
		n++
	}
	if n > 0 {
		d := errs.Record(errs.DestructorRemainingNodes, "fifo: %d node(s) still queued at Close, returned to the node pool", n)
		logger.Warn("%s", d)
	}
	q.head.Store(nil)
	q.tail.Store(nil)
}

// ReleaseSentinelNode is a test-teardown-only operation (spec.md §4.3):
// it requires the queue be empty and returns the sentinel node for
// diagnostic purposes. A second call is a precondition violation: it
// logs an ERROR and returns nil, per spec.md §7's PrecondViolation kind.
func (q *Queue[T]) ReleaseSentinelNode() *Node[T] {
	if !q.released.CompareAndSwap(false, true) {
		d := errs.Record(errs.PrecondViolation, "ReleaseSentinelNode called a second time on this queue")
		logger.Error("%s", d)
		return nil
	}
	head := q.head.Load()
	if head.Load() != nil {
		d := errs.Record(errs.PrecondViolation, "ReleaseSentinelNode called on a non-empty FIFO")
		logger.Error("%s", d)
		return head
	}
	return head
}
