package slab

import (
	"sync/atomic"

	"alconcurrent/hazard"
	"alconcurrent/node"
	"alconcurrent/stack"
)

// ChunkList is a lock-free, push-only list of chunks for one size class
// (spec.md §3.5). Chunks never leave the list; they cycle through the
// status state machine of chunk.go and are reused in place.
type ChunkList struct {
	reg       *hazard.Registry
	idxPool   *node.Pool[stack.Node[int]]
	slotBytes int

	top        atomic.Pointer[Chunk]
	nextPieces atomic.Int64
	hint       atomic.Pointer[Chunk]
	chunkCount atomic.Int64
	maxConsum  atomic.Int64

	recordBacktrace           bool
	recordBacktraceDoubleFree bool
	nonReuseSlot              bool
	detailStats               bool
}

// NewChunkList constructs an empty ChunkList for the given per-slot size
// and initial chunk capacity.
func NewChunkList(reg *hazard.Registry, idxPool *node.Pool[stack.Node[int]], slotBytes, initialSlots int, recordBacktrace, recordBacktraceDoubleFree, nonReuseSlot, detailStats bool) *ChunkList {
	cl := &ChunkList{
		reg:                       reg,
		idxPool:                   idxPool,
		slotBytes:                 slotBytes,
		recordBacktrace:           recordBacktrace,
		recordBacktraceDoubleFree: recordBacktraceDoubleFree,
		nonReuseSlot:              nonReuseSlot,
		detailStats:               detailStats,
	}
	cl.nextPieces.Store(int64(initialSlots))
	return cl
}

func (cl *ChunkList) pushChunk(c *Chunk) {
	for {
		top := cl.top.Load()
		c.next.Store(top)
		if cl.top.CompareAndSwap(top, c) {
			cl.chunkCount.Add(1)
			return
		}
	}
}

// AllocateSlot returns a slot of at least n bytes, trying the
// last-successful-chunk hint first (a shared cache standing in for the
// original's per-thread hint pointer), then scanning the list, growing
// with a freshly doubled chunk only if every existing chunk is full or
// unavailable.
func (cl *ChunkList) AllocateSlot(n int, site string) ([]byte, bool) {
	if h := cl.hint.Load(); h != nil {
		if b, ok := h.allocateSlot(n, cl.recordBacktrace, cl.recordBacktraceDoubleFree, site); ok {
			cl.bumpConsum(h)
			return b, true
		}
	}
	for c := cl.top.Load(); c != nil; c = c.next.Load() {
		if b, ok := c.allocateSlot(n, cl.recordBacktrace, cl.recordBacktraceDoubleFree, site); ok {
			cl.hint.Store(c)
			cl.bumpConsum(c)
			return b, true
		}
	}
	return cl.growAndAllocate(n, site)
}

func (cl *ChunkList) bumpConsum(c *Chunk) {
	cc := c.counts()
	for {
		cur := cl.maxConsum.Load()
		if cc.inUse <= cur {
			return
		}
		if cl.maxConsum.CompareAndSwap(cur, cc.inUse) {
			return
		}
	}
}

// growAndAllocate implements spec.md §4.7's growth policy: the next
// chunk's slot count is the current nextPieces value, saturating on
// overflow doubling for the chunk *after* that, and every other Normal
// chunk is marked RESERVED_DELETION so it drains rather than continuing
// to serve new allocations. An EMPTY chunk already in the list is
// reinstalled in place before a new chunk is pushed.
func (cl *ChunkList) growAndAllocate(n int, site string) ([]byte, bool) {
	pieces := cl.nextPieces.Load()
	if pieces <= 0 {
		pieces = 1
	}

	var fresh *Chunk
	for c := cl.top.Load(); c != nil; c = c.next.Load() {
		if Status(c.status.Load()) == Empty && c.claimAndInstall(cl.slotBytes, int(pieces), cl.reg, cl.idxPool) {
			fresh = c
			break
		}
	}
	reused := fresh != nil
	if !reused {
		fresh = newChunk()
		if !fresh.claimAndInstall(cl.slotBytes, int(pieces), cl.reg, cl.idxPool) {
			return nil, false
		}
	}
	newChunk := fresh

	for c := cl.top.Load(); c != nil; c = c.next.Load() {
		if c != newChunk {
			c.setDeleteReservation()
		}
	}

	if !reused {
		cl.pushChunk(newChunk)
	}
	cl.hint.Store(newChunk)

	doubled := pieces * 2
	if doubled <= pieces { // overflow
		doubled = pieces
	}
	cl.nextPieces.Store(doubled)

	b, ok := newChunk.allocateSlot(n, cl.recordBacktrace, cl.recordBacktraceDoubleFree, site)
	if ok {
		cl.bumpConsum(newChunk)
	}
	return b, ok
}

// RecycleSlot scans chunks for the one owning addr and frees its slot.
// owned is false if no chunk's buffer contains addr at all.
func (cl *ChunkList) RecycleSlot(addr uintptr, nonReuse bool, site string) (freed, owned bool) {
	for c := cl.top.Load(); c != nil; c = c.next.Load() {
		if freed, owned := c.recycleSlot(addr, nonReuse, cl.recordBacktraceDoubleFree, site); owned {
			return freed, true
		}
	}
	return false, false
}

// Prune attempts the RESERVED_DELETION → EMPTY transition on every
// chunk currently eligible, per spec.md §4.8.
func (cl *ChunkList) Prune() {
	for c := cl.top.Load(); c != nil; c = c.next.Load() {
		if Status(c.status.Load()) == ReservedDeletion {
			c.tryExecDeletion()
		}
	}
}

// ForEachChunk invokes f once per chunk currently in the list, in
// most-recently-pushed-first order.
func (cl *ChunkList) ForEachChunk(f func(*Chunk)) {
	for c := cl.top.Load(); c != nil; c = c.next.Load() {
		f(c)
	}
}

// Statistics summarizes this chunk list's current state, matching
// spec.md §6's chunk_statistics record. Per-class collision and error
// counters are only aggregated when DetailStats is enabled; with it
// off, AllocErrCnt/DeallocErrCnt/AllocCollisionCnt/DeallocCollisionCnt
// report zero and the extra chunk walk to compute them is skipped.
func (cl *ChunkList) Statistics() Statistics {
	s := Statistics{SlotBytes: cl.slotBytes}
	var allocReq, allocErr, deallocReq, deallocErr uint64
	cl.ForEachChunk(func(c *Chunk) {
		s.ChunkNum++
		if Status(c.status.Load()) == Normal {
			s.ValidChunkNum++
		}
		cc := c.counts()
		s.TotalSlotCnt += cc.total
		s.FreeSlotCnt += cc.free
		s.ConsumCnt += cc.inUse
		allocReq += c.allocReqCnt.Load()
		deallocReq += c.deallocReqCnt.Load()
		if cl.detailStats {
			allocErr += c.allocErrCnt.Load()
			deallocErr += c.deallocErrCnt.Load()
		}
	})
	s.AllocReqCnt = allocReq
	s.DeallocReqCnt = deallocReq
	s.MaxConsumCnt = cl.maxConsum.Load()
	if cl.detailStats {
		s.AllocErrCnt = allocErr
		s.DeallocErrCnt = deallocErr
		var collisions uint64
		cl.ForEachChunk(func(c *Chunk) { collisions += c.idxCollisions() })
		s.AllocCollisionCnt = collisions
		s.DeallocCollisionCnt = collisions
	}
	return s
}
