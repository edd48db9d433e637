package slab

import (
	"testing"
	"unsafe"

	"alconcurrent/config"
	"alconcurrent/hazard"
)

func newTestAllocator(t *testing.T, classes []config.SizeClass) *Allocator {
	t.Helper()
	reg := hazard.NewRegistry(hazard.MinGroupSlots)
	cfg := &config.Config{SizeClasses: classes, DetailStats: true}
	return NewAllocator(cfg, reg)
}

func TestSizeClassSelection(t *testing.T) {
	a := newTestAllocator(t, []config.SizeClass{
		{SlotBytes: 16, InitialSlotsPerChunk: 20},
		{SlotBytes: 64, InitialSlotsPerChunk: 20},
		{SlotBytes: 256, InitialSlotsPerChunk: 20},
	})

	b := a.Allocate(30, "test-site")
	if cap(b) != 64 {
		t.Fatalf("expected a slot from the 64-byte class (cap 64), got cap %d", cap(b))
	}

	stats := a.Statistics()
	var found bool
	for _, s := range stats {
		if s.SlotBytes == 64 && s.ConsumCnt == 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the 64-byte class to report 1 in-use slot, stats=%+v", stats)
	}
}

func TestAllocateDeallocateRoundTrip(t *testing.T) {
	a := newTestAllocator(t, []config.SizeClass{{SlotBytes: 16, InitialSlotsPerChunk: 4}})

	p := a.Allocate(8, "alloc-site")
	if len(p) != 8 {
		t.Fatalf("expected length 8, got %d", len(p))
	}
	if !a.Deallocate(p, "free-site") {
		t.Fatal("expected first Deallocate to succeed")
	}

	stats := a.Statistics()[0]
	if stats.ConsumCnt != 0 {
		t.Fatalf("expected ConsumCnt back to 0 after round trip, got %d", stats.ConsumCnt)
	}
}

func TestDoubleFreeDetection(t *testing.T) {
	a := newTestAllocator(t, []config.SizeClass{{SlotBytes: 16, InitialSlotsPerChunk: 4}})

	p := a.Allocate(16, "alloc-site")
	first := a.Deallocate(p, "free-1")
	if !first {
		t.Fatal("expected first Deallocate to return true")
	}
	statsBefore := a.Statistics()[0]
	if statsBefore.DeallocErrCnt != 0 {
		t.Fatalf("expected 0 dealloc errors after first free, got %d", statsBefore.DeallocErrCnt)
	}

	second := a.Deallocate(p, "free-2")
	if !second {
		t.Fatal("expected double-free to be absorbed (return true)")
	}
	statsAfter := a.Statistics()[0]
	if statsAfter.DeallocErrCnt != 1 {
		t.Fatalf("expected exactly 1 dealloc error after double free, got %d", statsAfter.DeallocErrCnt)
	}
}

func TestOversizeAllocationHasNoOwningChunk(t *testing.T) {
	a := newTestAllocator(t, []config.SizeClass{{SlotBytes: 16, InitialSlotsPerChunk: 4}})

	p := a.Allocate(1024, "oversize-site")
	if len(p) != 1024 {
		t.Fatalf("expected 1024 bytes, got %d", len(p))
	}
	addr := uintptr(unsafe.Pointer(&p[0]))
	if _, tracked := a.oversize.Load(addr); !tracked {
		t.Fatal("expected oversize allocation to be tracked")
	}
	if !a.Deallocate(p, "oversize-free") {
		t.Fatal("expected oversize Deallocate to succeed")
	}
	if _, tracked := a.oversize.Load(addr); tracked {
		t.Fatal("expected oversize bookkeeping to be cleared after Deallocate")
	}
}

func TestGrowthMarksOlderChunksForDeletion(t *testing.T) {
	a := newTestAllocator(t, []config.SizeClass{{SlotBytes: 16, InitialSlotsPerChunk: 1}})
	cl := a.lists[0]

	first := a.Allocate(8, "a")
	_ = first
	// the single-slot chunk is now full; the next allocation must grow.
	second := a.Allocate(8, "b")
	_ = second

	var normal, reserved int
	cl.ForEachChunk(func(c *Chunk) {
		switch Status(c.status.Load()) {
		case Normal:
			normal++
		case ReservedDeletion:
			reserved++
		}
	})
	if normal != 1 {
		t.Fatalf("expected exactly 1 NORMAL chunk after growth, got %d", normal)
	}
	if reserved == 0 {
		t.Fatal("expected the older, now-full chunk to be marked RESERVED_DELETION")
	}
}

func TestPruneReclaimsFullyFreedReservedChunk(t *testing.T) {
	a := newTestAllocator(t, []config.SizeClass{{SlotBytes: 16, InitialSlotsPerChunk: 1}})
	cl := a.lists[0]

	p := a.Allocate(8, "a")
	// force growth so the original chunk becomes RESERVED_DELETION
	a.Allocate(8, "b")

	a.Deallocate(p, "free-a")
	a.Prune()

	var reserved int
	cl.ForEachChunk(func(c *Chunk) {
		if Status(c.status.Load()) == ReservedDeletion {
			reserved++
		}
	})
	if reserved != 0 {
		t.Fatalf("expected the drained chunk to leave RESERVED_DELETION after Prune, got %d still reserved", reserved)
	}
}
