package slab

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"unsafe"

	"alconcurrent/config"
	"alconcurrent/errs"
	"alconcurrent/hazard"
	"alconcurrent/logger"
	"alconcurrent/node"
	"alconcurrent/retire"
	"alconcurrent/stack"
)

// Statistics is the chunk_statistics record of spec.md §6: one
// aggregated row per size class.
type Statistics struct {
	SlotBytes           int
	ChunkNum            int64
	ValidChunkNum       int64
	TotalSlotCnt        int64
	FreeSlotCnt         int64
	ConsumCnt           int64
	MaxConsumCnt        int64
	AllocReqCnt         uint64
	AllocErrCnt         uint64
	DeallocReqCnt       uint64
	DeallocErrCnt       uint64
	AllocCollisionCnt   uint64
	DeallocCollisionCnt uint64
}

// String renders a one-line representation suitable for logs, per
// spec.md §6's print() requirement.
func (s Statistics) String() string {
	return fmt.Sprintf(
		"slot_bytes=%d chunks=%d/%d slots=%d free=%d inuse=%d max_inuse=%d alloc(req=%d err=%d coll=%d) dealloc(req=%d err=%d coll=%d)",
		s.SlotBytes, s.ValidChunkNum, s.ChunkNum, s.TotalSlotCnt, s.FreeSlotCnt, s.ConsumCnt, s.MaxConsumCnt,
		s.AllocReqCnt, s.AllocErrCnt, s.AllocCollisionCnt,
		s.DeallocReqCnt, s.DeallocErrCnt, s.DeallocCollisionCnt,
	)
}

// Allocator is the general allocator of spec.md §4.8: one ChunkList per
// size class plus an oversize fallback path.
type Allocator struct {
	classes []config.SizeClass
	lists   []*ChunkList

	oversize sync.Map // uintptr(addr) -> *oversizeRecord

	pruning atomic.Bool

	recordBacktrace           bool
	recordBacktraceDoubleFree bool
	nonReuseSlot              bool
}

type oversizeRecord struct {
	buf  []byte
	site string
}

// NewAllocator constructs an Allocator. classes need not be
// pre-sorted; NewAllocator sorts a copy ascending by SlotBytes, per
// spec.md §3.5.
func NewAllocator(cfg *config.Config, reg *hazard.Registry) *Allocator {
	classes := append([]config.SizeClass(nil), cfg.SizeClasses...)
	sort.Slice(classes, func(i, j int) bool { return classes[i].SlotBytes < classes[j].SlotBytes })

	retireMgr := retire.NewManager(reg, cfg.PruneInterval)
	idxPool := node.NewPool[stack.Node[int]](func() *stack.Node[int] { return &stack.Node[int]{} }, reg, retireMgr, cfg.NodePoolProfile)

	// RecordBacktraceDoubleFree implies RecordBacktrace (config.Config's
	// documented relationship between the two flags).
	recordBacktrace := cfg.RecordBacktrace || cfg.RecordBacktraceDoubleFree

	a := &Allocator{
		classes:                   classes,
		recordBacktrace:           recordBacktrace,
		recordBacktraceDoubleFree: cfg.RecordBacktraceDoubleFree,
		nonReuseSlot:              cfg.NonReuseSlot,
	}
	for _, c := range classes {
		a.lists = append(a.lists, NewChunkList(reg, idxPool, c.SlotBytes, c.InitialSlotsPerChunk, recordBacktrace, cfg.RecordBacktraceDoubleFree, cfg.NonReuseSlot, cfg.DetailStats))
	}
	return a
}

// Allocate returns a slice of length n drawn from the smallest size
// class able to hold it, or from the system allocator if n exceeds
// every configured class (spec.md §4.8).
//
// Open Question 2: Go's make([]byte, n) guarantees only natural slice
// alignment. Callers needing alignment beyond that for an oversize
// request must post-process the returned slice themselves; this
// allocator does not attempt an aligned-allocation path, matching the
// "document the gap" resolution spec.md §9 OQ2 offers as an
// alternative to a silent, partial alignment guarantee.
func (a *Allocator) Allocate(n int, site string) []byte {
	if n <= 0 {
		n = 1
	}
	for _, cl := range a.lists {
		if n <= cl.slotBytes {
			if b, ok := cl.AllocateSlot(n, site); ok {
				return b
			}
		}
	}
	return a.allocateOversize(n, site)
}

func (a *Allocator) allocateOversize(n int, site string) []byte {
	buf := make([]byte, n)
	addr := uintptr(unsafe.Pointer(&buf[0]))
	a.oversize.Store(addr, &oversizeRecord{buf: buf, site: site})
	return buf
}

// Deallocate frees the slot owning p. It returns false only when p is
// empty; every other outcome, including a corrupt header or an address
// this allocator never issued, is logged and absorbed per spec.md §7's
// "avoid cascades" recovery policy rather than propagated to the caller.
// An address not geometrically owned by any chunk is logged as
// UnknownAddress only after every size class's chunk list has been
// scanned in full, then absorbed as a system-free fallback with a WARN.
func (a *Allocator) Deallocate(p []byte, site string) bool {
	if len(p) == 0 {
		return false
	}
	addr := uintptr(unsafe.Pointer(&p[0]))

	if _, ok := a.oversize.LoadAndDelete(addr); ok {
		return true
	}

	for _, cl := range a.lists {
		if freed, owned := cl.RecycleSlot(addr, a.nonReuseSlot, site); owned {
			return freed
		}
	}

	d := errs.Record(errs.UnknownAddress, "slab: deallocate called on address owned by no chunk after a full chunk-list scan, site=%q", site)
	logger.Error("%s", d)
	logger.Warn("slab: address %#x unrecoverable, absorbing as a system free, site=%q", addr, site)
	return true
}

// Prune drives every RESERVED_DELETION chunk toward EMPTY where safe.
// Concurrent calls collapse to a single pass, per spec.md §4.8's
// process-wide non-reentrant flag.
func (a *Allocator) Prune() {
	if !a.pruning.CompareAndSwap(false, true) {
		return
	}
	defer a.pruning.Store(false)
	for _, cl := range a.lists {
		cl.Prune()
	}
}

// Statistics returns one record per configured size class, in ascending
// SlotBytes order.
func (a *Allocator) Statistics() []Statistics {
	out := make([]Statistics, 0, len(a.lists))
	for _, cl := range a.lists {
		out = append(out, cl.Statistics())
	}
	return out
}

// ForEachChunk invokes f once per chunk across every size class, in
// ascending SlotBytes order. It is a diagnostics hook, not part of
// spec.md's original surface: it exposes individual chunk state across
// every size class without reaching into the per-class ChunkLists.
func (a *Allocator) ForEachChunk(f func(slotBytes int, c *Chunk)) {
	for _, cl := range a.lists {
		cl.ForEachChunk(func(c *Chunk) { f(cl.slotBytes, c) })
	}
}
