package list

import (
	"testing"

	"alconcurrent/hazard"
	"alconcurrent/node"
)

func newTestList(t *testing.T) *List[int] {
	t.Helper()
	reg := hazard.NewRegistry(hazard.MinGroupSlots)
	pool := node.NewPool[Node[int]](func() *Node[int] { return &Node[int]{} }, reg, nil, false)
	return New[int](reg, pool)
}

func insertFront(t *testing.T, l *List[int], v int) {
	t.Helper()
	for {
		prev, curr, prevTok, currTok := l.FindIf(func(int) bool { return true })
		n := &Node[int]{}
		n.Set(v)
		ok := l.InsertToNextOfPrev(n, prev, curr)
		prevTok.Release()
		currTok.Release()
		if ok {
			return
		}
	}
}

func collect(l *List[int]) []int {
	var got []int
	l.ForEach(func(v int) { got = append(got, v) })
	return got
}

func TestInsertFindRemove(t *testing.T) {
	l := newTestList(t)

	insertFront(t, l, 3)
	insertFront(t, l, 1) // now: 1, 3 (most recent insert is at head)

	_, curr, prevTok, currTok := l.FindIf(func(v int) bool { return v%2 == 0 })
	prevTok.Release()
	currTok.Release()
	if curr != nil {
		t.Fatalf("expected no even element, found %v", curr.Get())
	}

	insertFront(t, l, 2) // now: 2, 1, 3

	if got := collect(l); !equalInts(got, []int{2, 1, 3}) {
		t.Fatalf("ForEach order = %v, want [2 1 3]", got)
	}

	prev, curr, prevTok, currTok := l.FindIf(func(v int) bool { return v == 3 })
	if curr == nil {
		t.Fatal("expected to find 3")
	}
	if !l.Remove(prev, curr) {
		t.Fatal("expected Remove to succeed")
	}
	prevTok.Release()
	currTok.Release()

	if got := collect(l); !equalInts(got, []int{2, 1}) {
		t.Fatalf("ForEach order after remove = %v, want [2 1]", got)
	}
}

func TestRemoveMarkHeadAndTail(t *testing.T) {
	l := newTestList(t)
	insertFront(t, l, 3)
	insertFront(t, l, 2)
	insertFront(t, l, 1) // 1, 2, 3

	head, ok := l.RemoveMarkHead()
	if !ok || head != 1 {
		t.Fatalf("RemoveMarkHead() = (%d, %v), want (1, true)", head, ok)
	}
	tail, ok := l.RemoveMarkTail()
	if !ok || tail != 3 {
		t.Fatalf("RemoveMarkTail() = (%d, %v), want (3, true)", tail, ok)
	}
	if got := collect(l); !equalInts(got, []int{2}) {
		t.Fatalf("expected [2] remaining, got %v", got)
	}
}

func TestSizeApprox(t *testing.T) {
	l := newTestList(t)
	if l.Size() != 0 {
		t.Fatalf("expected empty list size 0, got %d", l.Size())
	}
	insertFront(t, l, 1)
	insertFront(t, l, 2)
	if l.Size() != 2 {
		t.Fatalf("expected size 2, got %d", l.Size())
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
