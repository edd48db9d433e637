// Package slab implements the semi-lock-free slab allocator of spec.md
// §3.5/§4.7/§4.8: one push-only chunk list per size class, each chunk a
// flat byte buffer sliced into uniformly sized slots tracked by a
// slotindex.Manager, with a CAS-driven chunk status state machine
// (EMPTY → RESERVED_ALLOCATION → NORMAL → RESERVED_DELETION →
// ANNOUNCEMENT_DELETION → DELETION → EMPTY).
//
// Grounded on lf_mem_alloc.hpp/.cpp's chunk_header_multi_slot and
// chunk_list, generalized per spec.md Open Question 1 to use the newer
// index-manager design (§3.6) in place of the legacy stack_list<void*>
// free-slot stack. A C slot header lives immediately before its
// payload in memory; Go's precise GC cannot safely scan a pointer-typed
// header embedded in a raw byte buffer, so this implementation keeps an
// equivalent parallel metadata array per chunk (headers), indexed by
// the same buffer-offset arithmetic the original uses to recover a
// slot's header from its payload pointer.
package slab

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/crypto/blake2b"

	"alconcurrent/errs"
	"alconcurrent/hazard"
	"alconcurrent/logger"
	"alconcurrent/node"
	"alconcurrent/slotindex"
	"alconcurrent/stack"
)

// Status is a chunk's position in the state machine of spec.md §4.7.
type Status int32

const (
	Empty Status = iota
	ReservedAllocation
	Normal
	ReservedDeletion
	AnnouncementDeletion
	Deletion
)

func (s Status) String() string {
	switch s {
	case Empty:
		return "EMPTY"
	case ReservedAllocation:
		return "RESERVED_ALLOCATION"
	case Normal:
		return "NORMAL"
	case ReservedDeletion:
		return "RESERVED_DELETION"
	case AnnouncementDeletion:
		return "ANNOUNCEMENT_DELETION"
	case Deletion:
		return "DELETION"
	default:
		return "UNKNOWN"
	}
}

// slotState is the per-slot entry in a chunk's status array.
type slotState int32

const (
	slotFree slotState = iota
	slotInUse
	slotDiscarded
)

// Header is the logical slot header of spec.md §3.5: owner identity,
// checksum, and optional diagnostics. OwnerAddr 0 marks an
// oversize-fallback allocation (no owning chunk).
//
// CallerFingerprint is the optional caller-context record of spec.md
// §3.5(c): a BLAKE2b-128 digest of the allocation site string, computed
// only when RecordBacktrace is enabled. A fixed-size digest is cheaper
// to carry per-slot than the variable-length site string it
// summarizes, and collapses collisions across call sites the same way
// the chunk's own checksum collapses owner identity into one word.
type Header struct {
	OwnerAddr         uintptr
	Checksum          uintptr
	Index             int
	AllocSite         string
	FreeSite          string
	CallerFingerprint [16]byte

	// SiteHistory is the last few alloc/free call sites this slot has
	// cycled through, populated only when RecordBacktraceDoubleFree is
	// enabled (spec.md §6), so a double-free report can show more than
	// just the single most recent free site.
	SiteHistory []string
}

// maxSiteHistory bounds Header.SiteHistory so a long-lived, frequently
// reused slot does not grow its history unboundedly.
const maxSiteHistory = 8

func (h *Header) recordHistory(enabled bool, tag, site string) {
	if !enabled {
		return
	}
	h.SiteHistory = append(h.SiteHistory, tag+":"+site)
	if len(h.SiteHistory) > maxSiteHistory {
		h.SiteHistory = h.SiteHistory[len(h.SiteHistory)-maxSiteHistory:]
	}
}

// fingerprintSite computes the BLAKE2b-128 digest of an allocation site
// string. blake2b.New accepts a variable digest size (1-64 bytes);
// unlike blake2b.Sum256 it is not fixed at 32 bytes, so this is the
// entry point used for a 128-bit fingerprint.
func fingerprintSite(site string) [16]byte {
	h, err := blake2b.New(16, nil)
	if err != nil {
		// Only returns an error for an out-of-range size or bad key,
		// neither of which applies to the fixed arguments above.
		panic(err)
	}
	h.Write([]byte(site))
	var out [16]byte
	copy(out[:], h.Sum(nil))
	return out
}

// validFor reports whether h's checksum is consistent with owner, the
// invariant spec.md §8 calls checksum = -owner_addr-1 (equivalently, in
// two's complement, the bitwise complement of owner_addr).
func (h *Header) validFor(owner uintptr) bool {
	return h.OwnerAddr == owner && h.Checksum == ^owner
}

// Chunk owns one flat buffer partitioned into equally sized slots.
type Chunk struct {
	next atomic.Pointer[Chunk]

	status    atomic.Int32
	accessors atomic.Int32

	slotBytes int
	buf       []byte
	headers   []Header
	slotSt    []atomic.Int32
	idx       *slotindex.Manager

	allocReqCnt, allocErrCnt     atomic.Uint64
	deallocReqCnt, deallocErrCnt atomic.Uint64
}

// newChunk allocates an EMPTY chunk header; its buffer is installed
// later by claimAndInstall.
func newChunk() *Chunk {
	return &Chunk{}
}

// claimAndInstall performs the EMPTY → RESERVED_ALLOCATION → NORMAL
// transition. If buffer installation fails after the status has already
// moved to RESERVED_ALLOCATION, it rolls back to EMPTY rather than
// leaving the chunk stuck, per spec.md §9 Open Question 3.
func (c *Chunk) claimAndInstall(slotBytes, numSlots int, reg *hazard.Registry, idxPool *node.Pool[stack.Node[int]]) (ok bool) {
	if !c.status.CompareAndSwap(int32(Empty), int32(ReservedAllocation)) {
		return false
	}
	ok = false
	defer func() {
		if r := recover(); r != nil || !ok {
			c.status.Store(int32(Empty))
			logger.Error("slab: chunk buffer installation failed, rolled back to EMPTY: %v", r)
		}
	}()

	c.slotBytes = slotBytes
	c.buf = make([]byte, slotBytes*numSlots)
	c.headers = make([]Header, numSlots)
	c.slotSt = make([]atomic.Int32, numSlots)
	c.idx = slotindex.NewManager(reg, idxPool, numSlots)

	if !c.status.CompareAndSwap(int32(ReservedAllocation), int32(Normal)) {
		return false
	}
	ok = true
	return true
}

func (c *Chunk) numSlots() int { return len(c.headers) }

// setDeleteReservation performs NORMAL → RESERVED_DELETION.
func (c *Chunk) setDeleteReservation() bool {
	return c.status.CompareAndSwap(int32(Normal), int32(ReservedDeletion))
}

// unsetDeleteReservation performs RESERVED_DELETION → NORMAL.
func (c *Chunk) unsetDeleteReservation() bool {
	return c.status.CompareAndSwap(int32(ReservedDeletion), int32(Normal))
}

// tryExecDeletion attempts the remaining RESERVED_DELETION →
// ANNOUNCEMENT_DELETION → DELETION → EMPTY chain in one non-blocking
// pass: it only proceeds once the accessor counter is zero and every
// slot is free, per spec.md §4.7's accessor-counter invariant. A single
// failed attempt simply leaves the chunk in RESERVED_DELETION for the
// next prune sweep, avoiding the unbounded spin the daemon must not
// perform (spec.md §5).
func (c *Chunk) tryExecDeletion() bool {
	if !c.status.CompareAndSwap(int32(ReservedDeletion), int32(AnnouncementDeletion)) {
		return false
	}
	if c.accessors.Load() != 0 || !c.allSlotsFree() {
		c.status.Store(int32(ReservedDeletion))
		return false
	}
	c.status.Store(int32(Deletion))
	c.buf = nil
	c.headers = nil
	c.slotSt = nil
	c.idx = nil
	c.status.Store(int32(Empty))
	return true
}

func (c *Chunk) allSlotsFree() bool {
	for i := range c.slotSt {
		if slotState(c.slotSt[i].Load()) != slotFree {
			return false
		}
	}
	return true
}

// allocateSlot reserves one free slot and returns a length-n view of its
// payload, capacity slotBytes, sliced from the chunk's flat buffer.
func (c *Chunk) allocateSlot(n int, recordBacktrace, recordBacktraceDoubleFree bool, site string) ([]byte, bool) {
	if Status(c.status.Load()) != Normal {
		return nil, false
	}
	c.accessors.Add(1)
	defer c.accessors.Add(-1)
	if Status(c.status.Load()) != Normal {
		return nil, false
	}

	idx, ok := c.idx.Pop()
	if !ok {
		return nil, false
	}

	owner := uintptr(unsafe.Pointer(c))
	h := &c.headers[idx]
	h.OwnerAddr = owner
	h.Checksum = ^owner
	h.Index = idx
	h.recordHistory(recordBacktraceDoubleFree, "alloc", site)
	if recordBacktrace {
		h.AllocSite = site
		h.CallerFingerprint = fingerprintSite(site)
	} else {
		h.CallerFingerprint = [16]byte{}
	}

	if !c.slotSt[idx].CompareAndSwap(int32(slotFree), int32(slotInUse)) {
		d := errs.Record(errs.PrecondViolation, "slab: index %d returned by free-slot manager was not FREE", idx)
		logger.Error("%s", d)
		c.idx.Push(idx)
		return nil, false
	}
	c.allocReqCnt.Add(1)

	base := idx * c.slotBytes
	full := c.buf[base : base+c.slotBytes : base+c.slotBytes]
	return full[:n:c.slotBytes], true
}

func (c *Chunk) indexOf(addr uintptr) (int, bool) {
	if len(c.buf) == 0 {
		return -1, false
	}
	base := uintptr(unsafe.Pointer(&c.buf[0]))
	if addr < base {
		return -1, false
	}
	off := addr - base
	if off >= uintptr(len(c.buf)) {
		return -1, false
	}
	idx := int(off / uintptr(c.slotBytes))
	if idx >= len(c.headers) {
		return -1, false
	}
	return idx, true
}

// recycleSlot attempts to free the slot owning addr. owned reports
// whether addr fell within this chunk's buffer at all; freed reports
// whether the free succeeded. A header checksum mismatch (CorruptHeader)
// and a double-free (DoubleFree) are both logged and absorbed rather
// than propagated, per spec.md §7's "avoid cascades" policy: the caller
// always sees freed=true once owned=true.
func (c *Chunk) recycleSlot(addr uintptr, nonReuse, recordBacktraceDoubleFree bool, site string) (freed, owned bool) {
	idx, ok := c.indexOf(addr)
	if !ok {
		return false, false
	}
	c.accessors.Add(1)
	defer c.accessors.Add(-1)

	owner := uintptr(unsafe.Pointer(c))
	h := &c.headers[idx]
	newSt := slotFree
	if nonReuse {
		newSt = slotDiscarded
	}

	if !h.validFor(owner) {
		d := errs.Record(errs.CorruptHeader, "slab: slot %d header corrupt for addr %#x; want owner=%#x got owner=%#x checksum=%#x", idx, addr, owner, h.OwnerAddr, h.Checksum)
		logger.Error("%s", d)
		// Recovery: the geometric slot index came from pure buffer-offset
		// arithmetic and is still trustworthy even though the header
		// content is not, so force the slot back to a known-good state
		// instead of leaking it: addr lies inside this chunk's buffer,
		// and chunk buffers do not overlap, so no other chunk owns it.
		h.OwnerAddr = owner
		h.Checksum = ^owner
		h.Index = idx
		h.FreeSite = site
		h.recordHistory(recordBacktraceDoubleFree, "free-after-corrupt", site)
		c.deallocReqCnt.Add(1)
		c.slotSt[idx].Store(int32(newSt))
		if newSt == slotFree {
			c.idx.Push(idx)
		}
		logger.Warn("slab: slot %d forced free after corrupt header, site=%q", idx, site)
		return true, true
	}

	c.deallocReqCnt.Add(1)
	if !c.slotSt[idx].CompareAndSwap(int32(slotInUse), int32(newSt)) {
		d := errs.Record(errs.DoubleFree, "slab: slot %d double free; prior free at %q, this free at %q, history=%v", idx, h.FreeSite, site, h.SiteHistory)
		logger.Error("%s", d)
		c.deallocErrCnt.Add(1)
		h.recordHistory(recordBacktraceDoubleFree, "double-free", site)
		return true, true
	}
	h.FreeSite = site
	h.recordHistory(recordBacktraceDoubleFree, "free", site)
	if newSt == slotFree {
		c.idx.Push(idx)
	}
	return true, true
}

type chunkCounts struct {
	total, free, inUse, discarded int64
}

// idxCollisions reports the free-slot index manager's CAS-retry count,
// spec.md §4.6's diagnostic collision counter. It is not split between
// allocation and deallocation paths since both share one underlying
// lock-free stack.
func (c *Chunk) idxCollisions() uint64 {
	if c.idx == nil {
		return 0
	}
	return c.idx.CollisionCount()
}

func (c *Chunk) counts() chunkCounts {
	cc := chunkCounts{total: int64(len(c.slotSt))}
	for i := range c.slotSt {
		switch slotState(c.slotSt[i].Load()) {
		case slotFree:
			cc.free++
		case slotInUse:
			cc.inUse++
		case slotDiscarded:
			cc.discarded++
		}
	}
	return cc
}
