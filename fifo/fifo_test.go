package fifo

import (
	"sync"
	"testing"

	"alconcurrent/hazard"
	"alconcurrent/node"
)

func newTestQueue(t *testing.T) *Queue[int] {
	t.Helper()
	reg := hazard.NewRegistry(hazard.MinGroupSlots)
	pool := node.NewPool[Node[int]](func() *Node[int] { return &Node[int]{} }, reg, nil, false)
	return New[int](reg, pool)
}

func TestPushPopSingleThreaded(t *testing.T) {
	q := newTestQueue(t)
	if !q.IsEmpty() {
		t.Fatal("expected new queue to be empty")
	}
	q.PushBack(1)
	q.PushBack(2)
	q.PushBack(3)

	for _, want := range []int{1, 2, 3} {
		got, ok := q.PopFront()
		if !ok || got != want {
			t.Fatalf("PopFront() = (%d, %v), want (%d, true)", got, ok, want)
		}
	}
	if !q.IsEmpty() {
		t.Fatal("expected queue to be empty after draining")
	}
	if _, ok := q.PopFront(); ok {
		t.Fatal("expected PopFront on empty queue to return ok=false")
	}
}

func TestPushFrontOnEmptyDegradesToPushBack(t *testing.T) {
	q := newTestQueue(t)
	q.PushFront(10)
	got, ok := q.PopFront()
	if !ok || got != 10 {
		t.Fatalf("PopFront() = (%d, %v), want (10, true)", got, ok)
	}
}

func TestPushFrontPrepends(t *testing.T) {
	q := newTestQueue(t)
	q.PushBack(2)
	q.PushFront(1)

	first, _ := q.PopFront()
	second, _ := q.PopFront()
	if first != 1 || second != 2 {
		t.Fatalf("expected order [1 2], got [%d %d]", first, second)
	}
}

func TestReleaseSentinelNodeTwiceLogsAndReturnsNil(t *testing.T) {
	q := newTestQueue(t)
	if n := q.ReleaseSentinelNode(); n == nil {
		t.Fatal("expected first ReleaseSentinelNode to return the sentinel")
	}
	if n := q.ReleaseSentinelNode(); n != nil {
		t.Fatal("expected second ReleaseSentinelNode to return nil")
	}
}

func TestConcurrentPushPopParity(t *testing.T) {
	q := newTestQueue(t)

	const goroutines = 32
	const iterations = 2000

	var wg sync.WaitGroup
	sums := make([]int64, goroutines)

	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(idx int) {
			defer wg.Done()
			v := 0
			for i := 0; i < iterations; i++ {
				q.PushBack(v)
				popped, ok := q.PopFront()
				if !ok {
					// Another goroutine's concurrent pop may have taken this
					// value; retry until we get one back so v keeps advancing
					// deterministically for this goroutine's own count.
					for {
						popped, ok = q.PopFront()
						if ok {
							break
						}
					}
				}
				v = popped + 1
			}
			sums[idx] = int64(v)
		}(g)
	}
	wg.Wait()

	var total int64
	for _, s := range sums {
		total += s
	}
	want := int64(goroutines * iterations)
	if total != want {
		t.Fatalf("sum of final v across goroutines = %d, want %d", total, want)
	}
}
