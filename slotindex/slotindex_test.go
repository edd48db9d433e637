package slotindex

import (
	"testing"

	"alconcurrent/hazard"
	"alconcurrent/node"
	"alconcurrent/stack"
)

func newTestManager(t *testing.T, capacity int) *Manager {
	t.Helper()
	reg := hazard.NewRegistry(hazard.MinGroupSlots)
	pool := node.NewPool[stack.Node[int]](func() *stack.Node[int] { return &stack.Node[int]{} }, reg, nil, false)
	return NewManager(reg, pool, capacity)
}

func TestPopReturnsAllInitialIndices(t *testing.T) {
	m := newTestManager(t, 4)
	seen := map[int]bool{}
	for i := 0; i < 4; i++ {
		idx, ok := m.Pop()
		if !ok {
			t.Fatalf("expected Pop to succeed on iteration %d", i)
		}
		if seen[idx] {
			t.Fatalf("index %d returned twice", idx)
		}
		seen[idx] = true
	}
	if _, ok := m.Pop(); ok {
		t.Fatal("expected Pop to fail once the manager is exhausted")
	}
}

func TestPushMakesIndexAvailableAgain(t *testing.T) {
	m := newTestManager(t, 1)
	idx, ok := m.Pop()
	if !ok {
		t.Fatal("expected initial Pop to succeed")
	}
	if _, ok := m.Pop(); ok {
		t.Fatal("expected manager exhausted after single Pop")
	}
	m.Push(idx)
	got, ok := m.Pop()
	if !ok || got != idx {
		t.Fatalf("Pop() after Push = (%d, %v), want (%d, true)", got, ok, idx)
	}
}

func TestMergeFeedsReceivingList(t *testing.T) {
	m := newTestManager(t, 0)
	if _, ok := m.Pop(); ok {
		t.Fatal("expected empty manager to fail Pop")
	}
	m.Merge([]int{5, 6, 7})
	if got := m.Available(); got != 3 {
		t.Fatalf("expected Available() == 3 after Merge, got %d", got)
	}
	seen := map[int]bool{}
	for i := 0; i < 3; i++ {
		idx, ok := m.Pop()
		if !ok {
			t.Fatalf("expected Pop to succeed on iteration %d", i)
		}
		seen[idx] = true
	}
	if !seen[5] || !seen[6] || !seen[7] {
		t.Fatalf("expected to pop 5,6,7 from receiving list, got %v", seen)
	}
}
