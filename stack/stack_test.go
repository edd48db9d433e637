package stack

import (
	"sync"
	"testing"

	"alconcurrent/hazard"
	"alconcurrent/node"
)

func newTestStack(t *testing.T) *Stack[int] {
	t.Helper()
	reg := hazard.NewRegistry(hazard.MinGroupSlots)
	pool := node.NewPool[Node[int]](func() *Node[int] { return &Node[int]{} }, reg, nil, false)
	return New[int](reg, pool)
}

func TestLIFOOrder(t *testing.T) {
	s := newTestStack(t)
	s.PushFront(1)
	s.PushFront(2)
	s.PushFront(3)

	for _, want := range []int{3, 2, 1} {
		got, ok := s.PopFront()
		if !ok || got != want {
			t.Fatalf("PopFront() = (%d, %v), want (%d, true)", got, ok, want)
		}
	}
	if !s.IsEmpty() {
		t.Fatal("expected stack to be empty after draining")
	}
	if _, ok := s.PopFront(); ok {
		t.Fatal("expected PopFront on empty stack to return ok=false")
	}
}

func TestCountSizeTracksPushPop(t *testing.T) {
	s := newTestStack(t)
	if s.CountSize() != 0 {
		t.Fatalf("expected 0, got %d", s.CountSize())
	}
	s.PushFront(1)
	s.PushFront(2)
	if s.CountSize() != 2 {
		t.Fatalf("expected 2, got %d", s.CountSize())
	}
	s.PopFront()
	if s.CountSize() != 1 {
		t.Fatalf("expected 1, got %d", s.CountSize())
	}
}

func TestConcurrentPushPopConservesCount(t *testing.T) {
	s := newTestStack(t)
	const goroutines = 16
	const iterations = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				s.PushFront(i)
			}
		}()
	}
	wg.Wait()
	if got := s.CountSize(); got != goroutines*iterations {
		t.Fatalf("expected CountSize %d after pushes, got %d", goroutines*iterations, got)
	}

	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				if _, ok := s.PopFront(); !ok {
					t.Error("unexpected empty stack during drain")
				}
			}
		}()
	}
	wg.Wait()
	if !s.IsEmpty() {
		t.Fatalf("expected stack empty after draining, CountSize=%d", s.CountSize())
	}
}
