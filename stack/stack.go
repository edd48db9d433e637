// Package stack implements the CAS-based lock-free LIFO of spec.md §4.4:
// push by CAS-ing a new head onto the old one, pop by hazard-protecting
// the head before swinging it away.
//
// Grounded on the same od_node_list_lockfree_base push_front/pop_front
// idiom as the fifo package, specialized to a single-ended structure.
package stack

import (
	"sync/atomic"
	"unsafe"

	"alconcurrent/errs"
	"alconcurrent/hazard"
	"alconcurrent/logger"
	"alconcurrent/node"
)

// Node is one stack link: a hazard-protected next pointer plus a value
// carrier.
type Node[T any] struct {
	node.HazardLink[Node[T]]
	node.Value[T]
}

// Stack is a CAS-based LIFO. The zero value is not usable; construct
// with New.
type Stack[T any] struct {
	reg        *hazard.Registry
	pool       *node.Pool[Node[T]]
	head       atomic.Pointer[Node[T]]
	count      atomic.Int64
	collisions atomic.Uint64
}

// New constructs an empty Stack.
func New[T any](reg *hazard.Registry, pool *node.Pool[Node[T]]) *Stack[T] {
	return &Stack[T]{reg: reg, pool: pool}
}

func (s *Stack[T]) ctx() *hazard.Context { return s.reg.ContextForCurrentGoroutine() }

// PushFront pushes v onto the top of the stack.
func (s *Stack[T]) PushFront(v T) {
	n := s.pool.Get()
	n.Set(v)
	for {
		head := s.head.Load()
		n.Store(head)
		if s.head.CompareAndSwap(head, n) {
			s.count.Add(1)
			return
		}
		s.collisions.Add(1)
	}
}

// PopFront removes and returns the value at the top of the stack. ok is
// false iff the stack was empty.
func (s *Stack[T]) PopFront() (value T, ok bool) {
	ctx := s.ctx()
	for {
		head := s.head.Load()
		if head == nil {
			var zero T
			return zero, false
		}
		tok := ctx.Acquire(unsafe.Pointer(head))
		if s.head.Load() != head {
			tok.Release()
			continue
		}
		next := head.Load()
		value = head.Get()
		swung := s.head.CompareAndSwap(head, next)
		tok.Release()
		if swung {
			s.count.Add(-1)
			s.pool.Put(head)
			return value, true
		}
		s.collisions.Add(1)
	}
}

// CountSize returns the approximate number of elements currently on the
// stack, maintained incrementally rather than by traversal.
func (s *Stack[T]) CountSize() int64 { return s.count.Load() }

// CollisionCount returns the number of CAS retries observed so far,
// spec.md §4.6's diagnostic collision counter.
func (s *Stack[T]) CollisionCount() uint64 { return s.collisions.Load() }

// IsEmpty reports whether the stack currently holds no elements.
func (s *Stack[T]) IsEmpty() bool { return s.head.Load() == nil }

// Close tears the stack down: any node still linked is unlinked and
// returned to the node pool (Pool.Put, which defers to the retire
// manager if a hazard pointer still observes it) rather than left for
// the caller to leak. If any node remained, spec.md §7's
// DestructorRemainingNodes is recorded with a WARN before that fallback
// disposal runs. Close is not thread-safe: callers must ensure no
// concurrent Push/Pop is in flight, the same discipline list.Swap
// requires.
func (s *Stack[T]) Close() {
	var n int
	for {
		head := s.head.Load()
		if head == nil {
			break
		}
		s.head.Store(head.Load())
		s.pool.Put(head)
		n++
	}
	if n > 0 {
		d := errs.Record(errs.DestructorRemainingNodes, "stack: %d node(s) still linked at Close, returned to the node pool", n)
		logger.Warn("%s", d)
	}
	s.count.Store(0)
}
