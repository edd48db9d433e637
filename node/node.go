// Package node provides the node-link substrate shared by the fifo,
// stack, and list packages (spec.md §3.4): a non-atomic simple link for
// thread-local staging, an atomic hazard link for the FIFO and stack, a
// markable hazard link for the ordered list, a value carrier, and a
// pooled allocator that defers returning a node to its pool until no
// hazard pointer still observes it.
//
// The pool is grounded on storage/pools' Get/Put wrapper idiom (a
// sync.Pool plus a guard before the object goes back in); here the guard
// is hazard.Registry.IsHazard instead of a size cap, and a node that
// fails the guard is handed to a retire.Manager instead of being
// discarded, so it is returned to the pool once it is safe rather than
// never.
package node

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"alconcurrent/hazard"
	"alconcurrent/link"
	"alconcurrent/retire"
)

// SimpleLink is a non-atomic next pointer, owned by a single goroutine at
// a time, for thread-local staging lists (spec.md §3.4).
type SimpleLink[N any] struct {
	next *N
}

func (s *SimpleLink[N]) Next() *N     { return s.next }
func (s *SimpleLink[N]) SetNext(n *N) { s.next = n }

// HazardLink is an atomic next pointer with hazard-protected reads, used
// by the FIFO and stack (spec.md §3.4).
type HazardLink[N any] struct {
	next atomic.Pointer[N]
}

func (h *HazardLink[N]) Load() *N                      { return h.next.Load() }
func (h *HazardLink[N]) Store(n *N)                    { h.next.Store(n) }
func (h *HazardLink[N]) CompareAndSwap(old, new *N) bool { return h.next.CompareAndSwap(old, new) }

// ProtectLoad implements the verify-exchange protocol (spec.md §4.2)
// directly against the plain atomic pointer: read, publish into a
// hazard slot obtained from ctx, re-read, retry on mismatch. The
// returned Token must be released once the caller is done dereferencing
// the pointer.
func (h *HazardLink[N]) ProtectLoad(ctx *hazard.Context) (*N, *hazard.Token) {
	for {
		p := h.next.Load()
		tok := ctx.Acquire(unsafe.Pointer(p))
		if h.next.Load() == p {
			return p, tok
		}
		tok.Release()
	}
}

// MarkableHazardLink combines the §3.3 markable link with the same
// hazard-protected verify-exchange read, used by the ordered list
// (spec.md §3.4).
type MarkableHazardLink[N any] struct {
	link.Link[N]
}

// ProtectLoad is the markable-link analogue of HazardLink.ProtectLoad:
// it publishes the (pointer, mark) pair atomically via verify-exchange.
func (m *MarkableHazardLink[N]) ProtectLoad(ctx *hazard.Context) (*N, bool, *hazard.Token) {
	for {
		p, marked := m.Load()
		tok := ctx.Acquire(unsafe.Pointer(p))
		p2, marked2 := m.Load()
		if p == p2 && marked == marked2 {
			return p, marked, tok
		}
		tok.Release()
	}
}

// Value is the value carrier of spec.md §3.4: storage for a payload T
// plus copy and move-flavored accessors. Go has no rvalue references, so
// Take plays the role of the original's rvalue-get variant: it returns
// the payload and zeroes the carrier's copy, letting a pointer-typed T
// be released for GC instead of being held alive by a pooled node.
type Value[T any] struct {
	v T
}

// Set stores v in the carrier.
func (c *Value[T]) Set(v T) { c.v = v }

// Get returns a copy of the carrier's payload without clearing it.
func (c *Value[T]) Get() T { return c.v }

// Take returns the payload and resets the carrier to T's zero value.
func (c *Value[T]) Take() T {
	v := c.v
	var zero T
	c.v = zero
	return v
}

// PoolStats reports a Pool's occupancy, populated only when profiling is
// enabled (spec.md §6's node_pool_profile flag).
type PoolStats struct {
	Gets     uint64
	Puts     uint64
	Deferred uint64
}

// Pool is a per-type free-list for nodes of type *N. Get draws from the
// global shared shard (Go's sync.Pool already shards per-P, which plays
// the role of the "thread-local shard" spec.md §3.4 describes). Put
// checks hazard.Registry before returning a node to the pool; a node
// still visible to a hazard pointer is instead handed to a
// retire.Manager, which returns it to the pool itself once a sweep
// confirms it is safe.
type Pool[N any] struct {
	shared  sync.Pool
	reg     *hazard.Registry
	retire  *retire.Manager
	profile bool

	gets, puts, deferred atomic.Uint64
}

// NewPool constructs a Pool. newFn allocates a fresh *N when the pool is
// empty. reg and mgr may be nil, in which case Put always returns
// directly to the shared shard (useful for node types that are never
// hazard-protected, e.g. retire-internal bookkeeping nodes).
func NewPool[N any](newFn func() *N, reg *hazard.Registry, mgr *retire.Manager, profile bool) *Pool[N] {
	return &Pool[N]{
		shared:  sync.Pool{New: func() any { return newFn() }},
		reg:     reg,
		retire:  mgr,
		profile: profile,
	}
}

// Get removes a node from the pool, allocating a new one if empty.
func (p *Pool[N]) Get() *N {
	if p.profile {
		p.gets.Add(1)
	}
	return p.shared.Get().(*N)
}

// Put returns n to the pool once it is safe to reuse. If n is currently
// protected by a hazard pointer, it is retired instead: the retire
// manager's prune sweep will return it to this pool once no hazard
// pointer observes it any longer.
func (p *Pool[N]) Put(n *N) {
	if p.profile {
		p.puts.Add(1)
	}
	addr := unsafe.Pointer(n)
	if p.reg != nil && p.retire != nil && p.reg.IsHazard(addr) {
		if p.profile {
			p.deferred.Add(1)
		}
		p.retire.Retire(addr, func(a unsafe.Pointer) {
			p.shared.Put((*N)(a))
		})
		return
	}
	p.shared.Put(n)
}

// Stats returns the pool's occupancy counters. Zero unless profile was
// enabled at construction.
func (p *Pool[N]) Stats() PoolStats {
	return PoolStats{
		Gets:     p.gets.Load(),
		Puts:     p.puts.Load(),
		Deferred: p.deferred.Load(),
	}
}
