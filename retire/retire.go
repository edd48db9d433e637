// Package retire implements the deferred-reclamation subsystem of
// spec.md §3.2: retire nodes bind an address to a deleter, a retire queue
// holds them until no hazard pointer observes their address, and a
// background prune daemon periodically sweeps the queue.
//
// It is grounded on the original library's retire_mgr.hpp (the
// retire/retire_always_store split, the recycler-backed retire_node
// pool) and on hazard_ptr.hpp's try_clean_up_delete_ptr sweep, which
// snapshots the hazard chain once per sweep rather than once per node.
package retire

import (
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"alconcurrent/errs"
	"alconcurrent/hazard"
	"alconcurrent/logger"
)

// node is a pooled retire-node: an address awaiting disposal plus the
// deleter that owns its disposal policy. Mirrors retire_node<T,Deleter>
// from retire_mgr.hpp, minus the C++ template: Go stores the deleter as
// a closure instead of a type parameter.
type node struct {
	addr    unsafe.Pointer
	deleter func(unsafe.Pointer)
	next    atomic.Pointer[node]
}

var nodePool = sync.Pool{New: func() any { return &node{} }}

func allocNode(addr unsafe.Pointer, deleter func(unsafe.Pointer)) *node {
	n := nodePool.Get().(*node)
	n.addr = addr
	n.deleter = deleter
	n.next.Store(nil)
	return n
}

func recycleNode(n *node) {
	n.addr = nil
	n.deleter = nil
	nodePool.Put(n)
}

// queue is an MPMC Treiber stack of pending retire nodes (spec.md's
// "retire queue" needs no ordering guarantee, only that every entry is
// eventually visited, so a lock-free LIFO is sufficient and cheaper than
// a FIFO).
type queue struct {
	head atomic.Pointer[node]
	size atomic.Int64
}

func (q *queue) push(n *node) {
	for {
		h := q.head.Load()
		n.next.Store(h)
		if q.head.CompareAndSwap(h, n) {
			q.size.Add(1)
			return
		}
	}
}

// drain atomically removes every node currently in the queue and returns
// them as a slice, used by a prune sweep so concurrent producers never
// block on the sweep.
func (q *queue) drain() []*node {
	h := q.head.Swap(nil)
	if h == nil {
		return nil
	}
	n := int(q.size.Swap(0))
	out := make([]*node, 0, n)
	for cur := h; cur != nil; {
		next := cur.next.Load()
		out = append(out, cur)
		cur = next
	}
	return out
}

func (q *queue) len() int { return int(q.size.Load()) }

// Stats reports the retire manager's current load, a supplemented
// feature (SPEC_FULL.md) recovered from chunk_statistics' spirit of
// giving operators visibility into background subsystems.
type Stats struct {
	Pending        int64
	TotalRetired   uint64
	TotalDisposed  uint64
	SweepCount     uint64
	LeakOnShutdown bool
}

// Manager owns one retire queue and its background prune daemon. One
// Manager is normally shared process-wide; NewManager builds it, and its
// prune daemon starts lazily on the first Retire, per spec.md §9.
type Manager struct {
	reg *hazard.Registry
	q   queue

	totalRetired  atomic.Uint64
	totalDisposed atomic.Uint64
	sweepCount    atomic.Uint64

	interval time.Duration

	runOnce   sync.Once
	stopCh    chan struct{}
	stoppedCh chan struct{}
	running   atomic.Bool
	leaked    atomic.Bool
}

// NewManager constructs a Manager that checks hazard protection against
// reg and sleeps interval between sweeps (spec.md §3.2, §5).
func NewManager(reg *hazard.Registry, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = time.Second
	}
	return &Manager{reg: reg, interval: interval}
}

// Retire hands addr to the deferred-free subsystem. deleter is invoked
// exactly once: on the prune daemon's goroutine once no hazard pointer
// observes addr, or on Stop's caller if addr is still queued when Stop
// runs. Starts the prune daemon lazily on first call, as
// spec.md §5 requires ("a single daemon thread ... spawned lazily on
// first retire").
func (m *Manager) Retire(addr unsafe.Pointer, deleter func(unsafe.Pointer)) {
	m.startOnce()
	n := allocNode(addr, deleter)
	m.q.push(n)
	m.totalRetired.Add(1)
}

func (m *Manager) startOnce() {
	m.runOnce.Do(func() {
		m.stopCh = make(chan struct{})
		m.stoppedCh = make(chan struct{})
		m.running.Store(true)
		go m.pruneLoop()
	})
}

func (m *Manager) pruneLoop() {
	defer close(m.stoppedCh)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweepOnce()
		}
	}
}

// sweepOnce performs one prune pass: snapshot the hazard chain once,
// then for each pending retire node invoke its deleter iff the address
// is absent from the snapshot; otherwise requeue it for the next sweep.
func (m *Manager) sweepOnce() {
	pending := m.q.drain()
	if len(pending) == 0 {
		return
	}
	snapshot := m.reg.Snapshot()
	var disposed int
	for _, n := range pending {
		if _, hazardous := snapshot[n.addr]; hazardous {
			m.q.push(n)
			continue
		}
		addr := n.addr
		deleter := n.deleter
		n.addr = nil
		deleter(addr)
		disposed++
		recycleNode(n)
	}
	if disposed > 0 {
		m.totalDisposed.Add(uint64(disposed))
	}
	m.sweepCount.Add(1)
}

// Stop halts the prune daemon, draining and disposing of every
// remaining queued node best-effort on the calling goroutine. If any
// node is still queued when the daemon stops, errs.RetireLeakOnShutdown
// is recorded with a WARN, per spec.md §7, and every remaining deleter
// runs, including those whose address is still hazard-protected (there
// is no later sweep to honour the protection).
func (m *Manager) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	close(m.stopCh)
	<-m.stoppedCh

	pending := m.q.drain()
	if len(pending) > 0 {
		m.leaked.Store(true)
		d := errs.Record(errs.RetireLeakOnShutdown,
			"retire queue had %d pending node(s) when the prune daemon stopped", len(pending))
		logger.Warn("%s", d)
	}
	for _, n := range pending {
		addr := n.addr
		deleter := n.deleter
		n.addr = nil
		deleter(addr)
		m.totalDisposed.Add(1)
		recycleNode(n)
	}
}

// Stats returns a snapshot of the manager's counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Pending:        int64(m.q.len()),
		TotalRetired:   m.totalRetired.Load(),
		TotalDisposed:  m.totalDisposed.Load(),
		SweepCount:     m.sweepCount.Load(),
		LeakOnShutdown: m.leaked.Load(),
	}
}
