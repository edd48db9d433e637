// Package hazard implements the hazard-pointer registry of spec.md §3.1
// and §4.1: per-thread slot groups chained into one global list, with
// protect/scan/detach primitives that let lock-free containers defer
// reclamation until no thread still observes an address.
//
// The design follows hazard_node_glist's request-node / scan_hazard_ptr /
// detach idiom from a C++ hazard-pointer implementation, expressed here
// with the protect-before-dereference discipline Go already uses for
// lock-free interned-string caches: unsafe.Pointer slots under atomic CAS
// loops. Unlike the C++ original, a Go goroutine has no pthread-style
// thread-exit destructor, so thread-local ownership is modeled as an
// explicit handle (Context) the caller acquires and releases, the same
// way sync.Pool's Get/Put or context.Context's CancelFunc are explicit in
// Go rather than scope-based.
package hazard

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/google/uuid"
)

// MinGroupSlots is the minimum slot count per group spec.md §3.1 requires.
const MinGroupSlots = 8

// Slot holds one address under hazard protection. A nil value means the
// slot is free. Writes are release-ordered, reads are acquire-ordered,
// matching spec.md §3.1's invariant (i).
type Slot struct {
	addr unsafe.Pointer
}

func (s *Slot) protect(p unsafe.Pointer) { atomic.StorePointer(&s.addr, p) }
func (s *Slot) clear()                   { atomic.StorePointer(&s.addr, nil) }
func (s *Slot) load() unsafe.Pointer     { return atomic.LoadPointer(&s.addr) }

// group aggregates a fixed number of slots plus a next pointer for
// chaining (spec.md §3.1). Groups are allocated once per claim and never
// explicitly freed; an unreachable, unowned group is simply left for the
// Go garbage collector, which is this module's equivalent of the
// original's "groups live for the process lifetime".
type group struct {
	slots  []Slot
	next   atomic.Pointer[group]
	marked atomic.Bool // true once this group has been detached
	owner  atomic.Pointer[Context]
}

func (g *group) tryClaim(c *Context) bool {
	return !g.marked.Load() && g.owner.CompareAndSwap(nil, c)
}

// Registry is the global hazard chain. One Registry is normally shared by
// every container in a process, mirroring spec.md §9's "global mutable
// state ... lazily initialised on first use" note.
type Registry struct {
	head       atomic.Pointer[group]
	groupSlots int
	tls        sync.Map // goroutine id -> *Context, see ContextForCurrentGoroutine
}

// NewRegistry constructs a Registry whose groups hold slotsPerGroup slots
// each (clamped up to MinGroupSlots).
func NewRegistry(slotsPerGroup int) *Registry {
	if slotsPerGroup < MinGroupSlots {
		slotsPerGroup = MinGroupSlots
	}
	return &Registry{groupSlots: slotsPerGroup}
}

func (r *Registry) pushGroup(g *group) {
	for {
		h := r.head.Load()
		g.next.Store(h)
		if r.head.CompareAndSwap(h, g) {
			return
		}
	}
}

// claimGroup finds an unowned, non-detached group and assigns it to c; if
// none exists it appends a new one via Harris-style head push (spec.md
// §4.1's slot-acquisition algorithm). This never fails permanently: it
// always makes progress by allocating another group.
func (r *Registry) claimGroup(c *Context) *group {
	for g := r.head.Load(); g != nil; g = g.next.Load() {
		if g.tryClaim(c) {
			return g
		}
	}
	g := &group{slots: make([]Slot, r.groupSlots)}
	g.owner.Store(c)
	r.pushGroup(g)
	return g
}

// IsHazard scans every non-detached group's every slot (spec.md §4.1) and
// reports whether addr is currently protected by any of them.
func (r *Registry) IsHazard(addr unsafe.Pointer) bool {
	if addr == nil {
		return false
	}
	var prev *group
	for g := r.head.Load(); g != nil; {
		next := g.next.Load()
		if g.marked.Load() {
			// Detached: help physically unlink, then continue scanning
			// past it. A failed unlink CAS is ignored; the walk moves on
			// past the detached group either way.
			if prev != nil {
				prev.next.CompareAndSwap(g, next)
			} else {
				r.head.CompareAndSwap(g, next)
			}
			g = next
			continue
		}
		for i := range g.slots {
			if g.slots[i].load() == addr {
				return true
			}
		}
		prev = g
		g = next
	}
	return false
}

// Snapshot captures every currently-protected address in one pass, for
// use by the retire manager's prune sweep (spec.md §3.2) instead of
// calling IsHazard once per retired node.
func (r *Registry) Snapshot() map[unsafe.Pointer]struct{} {
	out := make(map[unsafe.Pointer]struct{})
	for g := r.head.Load(); g != nil; g = g.next.Load() {
		if g.marked.Load() {
			continue
		}
		for i := range g.slots {
			if p := g.slots[i].load(); p != nil {
				out[p] = struct{}{}
			}
		}
	}
	return out
}

// DestroyAll detaches every group in the chain. It is a test-only hook
// (spec.md §4.1); the retire manager's prune daemon must already be
// stopped, since a detached group is no longer scanned by IsHazard even
// though other goroutines' Contexts may still reference it.
func (r *Registry) DestroyAll() {
	for g := r.head.Load(); g != nil; g = g.next.Load() {
		g.marked.Store(true)
	}
}

// Context is a thread-local (goroutine-local, held explicitly) hazard
// context: a set of claimed groups plus a round-robin cursor for slot
// reuse (spec.md §3.1). Callers should create one Context per
// long-lived goroutine and call Release when that goroutine exits,
// playing the role the original's pthread thread-exit destructor plays.
type Context struct {
	reg    *Registry
	id     uuid.UUID
	groups []*group
	cursor int
}

// NewContext acquires a fresh hazard context from the registry. Each
// Context is tagged with a UUID for cross-goroutine log correlation,
// the same role google/uuid plays for entity identity elsewhere, applied
// here to a hazard thread-context instead.
func (r *Registry) NewContext() *Context {
	c := &Context{reg: r, id: uuid.New()}
	c.groups = append(c.groups, r.claimGroup(c))
	return c
}

// ID returns this Context's correlation identifier.
func (c *Context) ID() uuid.UUID { return c.id }

// Token is the ownership handle returned by Acquire; Release clears the
// underlying slot, matching spec.md §4.1's "on drop, the slot becomes
// null".
type Token struct {
	slot *Slot
}

// Release clears the protected slot. Safe to call on a nil Token.
func (t *Token) Release() {
	if t == nil || t.slot == nil {
		return
	}
	t.slot.clear()
	t.slot = nil
}

// Get returns the address currently held by the token, or nil if it has
// been released.
func (t *Token) Get() unsafe.Pointer {
	if t == nil || t.slot == nil {
		return nil
	}
	return t.slot.load()
}

// Acquire obtains an owned slot protecting addr, expanding to a new group
// if every slot in every group this context owns is currently occupied.
// Slot acquisition never fails permanently (spec.md §4.1).
func (c *Context) Acquire(addr unsafe.Pointer) *Token {
	for {
		for _, g := range c.groups {
			n := len(g.slots)
			for i := 0; i < n; i++ {
				idx := (c.cursor + i) % n
				if g.slots[idx].load() == nil {
					g.slots[idx].protect(addr)
					c.cursor = idx + 1
					return &Token{slot: &g.slots[idx]}
				}
			}
		}
		c.groups = append(c.groups, c.reg.claimGroup(c))
	}
}

// Release returns every group this context owns to the registry's
// available pool by clearing their owner and all of their slots, then
// forgets them. Call this when the owning goroutine is about to exit;
// it is this module's equivalent of the original's thread-exit hook.
func (c *Context) Release() {
	for _, g := range c.groups {
		for i := range g.slots {
			g.slots[i].clear()
		}
		g.owner.Store(nil)
	}
	c.groups = nil
}

// Handle adapts a Context to protect typed *T pointers, satisfying
// link.Publisher[T] so it can be passed directly to link.VerifyExchange.
// Go forbids type parameters on methods, so this is a free function
// rather than a Context method.
type Handle[T any] struct {
	ctx   *Context
	token *Token
}

// NewHandle creates a Handle bound to ctx. One Handle should be reused
// for the lifetime of a single hazard slot's role (e.g. "the head
// pointer" in a pop_front), and a fresh Handle used for a second,
// concurrently-held role.
func NewHandle[T any](ctx *Context) *Handle[T] {
	return &Handle[T]{ctx: ctx}
}

// Protect implements link.Publisher[T]: it releases any previously held
// token and acquires a new one protecting p.
func (h *Handle[T]) Protect(p *T) {
	h.token.Release()
	if p == nil {
		h.token = nil
		return
	}
	h.token = h.ctx.Acquire(unsafe.Pointer(p))
}

// Release drops the handle's current protection.
func (h *Handle[T]) Release() {
	h.token.Release()
	h.token = nil
}

// Get returns the currently protected pointer, or nil.
func (h *Handle[T]) Get() *T {
	if h.token == nil {
		return nil
	}
	return (*T)(h.token.Get())
}

// ScopedRef is a small RAII-flavored convenience wrapper grounded on the
// legacy hazard_ptr_scoped_ref from inc/hazard_ptr.hpp: acquire in the
// constructor, release via Close. Go has no destructors, so callers must
// `defer ref.Close()` themselves.
type ScopedRef[T any] struct {
	handle *Handle[T]
}

// Protect constructs a ScopedRef that protects p for its lifetime.
func Protect[T any](ctx *Context, p *T) *ScopedRef[T] {
	h := NewHandle[T](ctx)
	h.Protect(p)
	return &ScopedRef[T]{handle: h}
}

// Get returns the protected pointer.
func (s *ScopedRef[T]) Get() *T { return s.handle.Get() }

// Close releases the underlying hazard slot. Idempotent.
func (s *ScopedRef[T]) Close() {
	if s == nil || s.handle == nil {
		return
	}
	s.handle.Release()
	s.handle = nil
}

// goroutineID extracts the current goroutine id by parsing the stack
// trace header, the same technique logger.getGoroutineID uses to tag log
// lines with a thread id. Go has no public goroutine-id API and no
// pthread-style thread-exit destructor, so this is the closest available
// substitute for the original's per-thread TLS key.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	if bytes.HasPrefix(b, []byte(prefix)) {
		b = b[len(prefix):]
	}
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseInt(string(b), 10, 64)
	return id
}

// ContextForCurrentGoroutine returns the Context bound to the calling
// goroutine, creating one on first use. This is the convenience path the
// container packages use so callers never have to thread a Context
// through every Push/Pop call.
//
// Caveat: because Go goroutine ids are never reused while the process is
// alive and there is no exit hook, a goroutine that calls this and then
// exits without calling ReleaseCurrentGoroutine leaves its Context (and
// the groups it claimed) unreclaimed by any other goroutine. Long-lived
// worker-pool goroutines that churn frequently should call
// ReleaseCurrentGoroutine explicitly before exiting.
func (r *Registry) ContextForCurrentGoroutine() *Context {
	gid := goroutineID()
	if v, ok := r.tls.Load(gid); ok {
		return v.(*Context)
	}
	ctx := r.NewContext()
	actual, loaded := r.tls.LoadOrStore(gid, ctx)
	if loaded {
		ctx.Release()
		return actual.(*Context)
	}
	return ctx
}

// ReleaseCurrentGoroutine releases and forgets the calling goroutine's
// cached Context, if any. See ContextForCurrentGoroutine's caveat.
func (r *Registry) ReleaseCurrentGoroutine() {
	gid := goroutineID()
	if v, ok := r.tls.LoadAndDelete(gid); ok {
		v.(*Context).Release()
	}
}
