package retire

import (
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"alconcurrent/hazard"
)

func TestRetireDisposesOnceNotHazardous(t *testing.T) {
	reg := hazard.NewRegistry(hazard.MinGroupSlots)
	mgr := NewManager(reg, 5*time.Millisecond)
	defer mgr.Stop()

	v := 1
	var disposed atomic.Int32
	mgr.Retire(unsafe.Pointer(&v), func(unsafe.Pointer) { disposed.Add(1) })

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if disposed.Load() == 1 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected deleter to run exactly once, ran %d times", disposed.Load())
}

func TestRetireWaitsWhileHazardous(t *testing.T) {
	reg := hazard.NewRegistry(hazard.MinGroupSlots)
	mgr := NewManager(reg, 5*time.Millisecond)
	defer mgr.Stop()

	ctx := reg.NewContext()
	v := 1
	tok := ctx.Acquire(unsafe.Pointer(&v))

	var disposed atomic.Int32
	mgr.Retire(unsafe.Pointer(&v), func(unsafe.Pointer) { disposed.Add(1) })

	time.Sleep(50 * time.Millisecond)
	if disposed.Load() != 0 {
		t.Fatal("deleter must not run while the address is still hazard-protected")
	}

	tok.Release()
	ctx.Release()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if disposed.Load() == 1 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("expected deleter to run after hazard slot was released")
}

func TestStopDrainsRemainingNodes(t *testing.T) {
	reg := hazard.NewRegistry(hazard.MinGroupSlots)
	mgr := NewManager(reg, time.Hour) // daemon effectively never ticks on its own

	ctx := reg.NewContext()
	v := 1
	tok := ctx.Acquire(unsafe.Pointer(&v))

	var disposed atomic.Int32
	mgr.Retire(unsafe.Pointer(&v), func(unsafe.Pointer) { disposed.Add(1) })

	tok.Release()
	ctx.Release()

	mgr.Stop()
	if disposed.Load() != 1 {
		t.Fatalf("expected Stop to drain and dispose the pending node, disposed=%d", disposed.Load())
	}
}
