// Package container provides the typed, config-constructed adapter
// surface of spec.md §6: new C<T>(config) for each of the three
// underlying lock-free shapes, wiring hazard protection and node
// pooling so a caller never has to build those by hand.
package container

import (
	"alconcurrent/fifo"
	"alconcurrent/hazard"
	"alconcurrent/list"
	"alconcurrent/node"
	"alconcurrent/retire"
	"alconcurrent/stack"
)

// Config bundles the shared infrastructure every container needs: a
// hazard registry and the retire manager backing its node pool's
// deferred reclamation.
type Config struct {
	Registry *hazard.Registry
	Retire   *retire.Manager
	Profile  bool // node_pool_profile, spec.md §6
}

// FIFO adapts fifo.Queue behind the container surface.
type FIFO[T any] struct{ q *fifo.Queue[T] }

// NewFIFO constructs a FIFO container.
func NewFIFO[T any](cfg Config) *FIFO[T] {
	pool := node.NewPool[fifo.Node[T]](func() *fifo.Node[T] { return &fifo.Node[T]{} }, cfg.Registry, cfg.Retire, cfg.Profile)
	return &FIFO[T]{q: fifo.New[T](cfg.Registry, pool)}
}

func (f *FIFO[T]) PushBack(v T)           { f.q.PushBack(v) }
func (f *FIFO[T]) PushFront(v T)          { f.q.PushFront(v) }
func (f *FIFO[T]) PopFront() (T, bool)    { return f.q.PopFront() }
func (f *FIFO[T]) IsEmpty() bool          { return f.q.IsEmpty() }
func (f *FIFO[T]) Underlying() *fifo.Queue[T] { return f.q }

// Close tears the container down; see fifo.Queue.Close.
func (f *FIFO[T]) Close() { f.q.Close() }

// Stack adapts stack.Stack behind the container surface.
type Stack[T any] struct{ s *stack.Stack[T] }

// NewStack constructs a Stack container.
func NewStack[T any](cfg Config) *Stack[T] {
	pool := node.NewPool[stack.Node[T]](func() *stack.Node[T] { return &stack.Node[T]{} }, cfg.Registry, cfg.Retire, cfg.Profile)
	return &Stack[T]{s: stack.New[T](cfg.Registry, pool)}
}

func (s *Stack[T]) PushFront(v T)      { s.s.PushFront(v) }
func (s *Stack[T]) PopFront() (T, bool) { return s.s.PopFront() }
func (s *Stack[T]) IsEmpty() bool       { return s.s.IsEmpty() }
func (s *Stack[T]) SizeApprox() int64   { return s.s.CountSize() }

// Close tears the container down; see stack.Stack.Close.
func (s *Stack[T]) Close() { s.s.Close() }

// List adapts list.List behind the container surface.
type List[T any] struct{ l *list.List[T] }

// NewList constructs a List container.
func NewList[T any](cfg Config) *List[T] {
	pool := node.NewPool[list.Node[T]](func() *list.Node[T] { return &list.Node[T]{} }, cfg.Registry, cfg.Retire, cfg.Profile)
	return &List[T]{l: list.New[T](cfg.Registry, pool)}
}

// PushFront inserts v at the head of the list.
func (l *List[T]) PushFront(v T) {
	for {
		prev, curr, prevTok, currTok := l.l.FindIf(func(T) bool { return true })
		n := &list.Node[T]{}
		n.Set(v)
		ok := l.l.InsertToNextOfPrev(n, prev, curr)
		prevTok.Release()
		if currTok != nil {
			currTok.Release()
		}
		if ok {
			return
		}
	}
}

func (l *List[T]) PopFront() (T, bool)          { return l.l.RemoveMarkHead() }
func (l *List[T]) PopBack() (T, bool)           { return l.l.RemoveMarkTail() }
func (l *List[T]) IsEmpty() bool                { return l.l.Size() == 0 }
func (l *List[T]) SizeApprox() int              { return l.l.Size() }
func (l *List[T]) ForEach(f func(T))            { l.l.ForEach(f) }

// Close tears the container down; see list.List.Close.
func (l *List[T]) Close() { l.l.Close() }

// FindIf reports whether any live element satisfies pred. It returns no
// handle to the element, so it cannot be used to remove it.
func (l *List[T]) FindIf(pred func(T) bool) (found bool) {
	prev, curr, prevTok, currTok := l.l.FindIf(pred)
	prevTok.Release()
	if currTok != nil {
		currTok.Release()
	}
	return curr != nil
}
