package node

import (
	"testing"
	"time"
	"unsafe"

	"alconcurrent/hazard"
	"alconcurrent/retire"
)

type testNode struct {
	HazardLink[testNode]
	Value[int]
}

func TestValueGetTakeSet(t *testing.T) {
	var v Value[string]
	v.Set("hello")
	if got := v.Get(); got != "hello" {
		t.Fatalf("Get() = %q, want hello", got)
	}
	if got := v.Get(); got != "hello" {
		t.Fatalf("Get() should not clear the carrier, got %q", got)
	}
	if got := v.Take(); got != "hello" {
		t.Fatalf("Take() = %q, want hello", got)
	}
	if got := v.Get(); got != "" {
		t.Fatalf("expected carrier cleared after Take, got %q", got)
	}
}

func TestHazardLinkProtectLoad(t *testing.T) {
	reg := hazard.NewRegistry(hazard.MinGroupSlots)
	ctx := reg.NewContext()
	defer ctx.Release()

	var a, b testNode
	a.Store(&b)

	p, tok := a.ProtectLoad(ctx)
	defer tok.Release()
	if p != &b {
		t.Fatalf("expected ProtectLoad to return &b, got %v", p)
	}
}

func TestPoolGetReusesAfterPut(t *testing.T) {
	pool := NewPool[testNode](func() *testNode { return &testNode{} }, nil, nil, false)
	n := pool.Get()
	n.Set(5)
	pool.Put(n)

	n2 := pool.Get()
	if n2 != n {
		t.Fatal("expected pool to reuse the same node when nothing else references it")
	}
}

func TestPoolDefersWhileHazardous(t *testing.T) {
	reg := hazard.NewRegistry(hazard.MinGroupSlots)
	mgr := retire.NewManager(reg, 5*time.Millisecond)
	defer mgr.Stop()

	pool := NewPool[testNode](func() *testNode { return &testNode{} }, reg, mgr, true)
	n := pool.Get()

	ctx := reg.NewContext()
	tok := ctx.Acquire(unsafe.Pointer(n))

	pool.Put(n)
	stats := pool.Stats()
	if stats.Deferred != 1 {
		t.Fatalf("expected Put to defer a hazard-protected node, deferred=%d", stats.Deferred)
	}

	tok.Release()
	ctx.Release()
}
