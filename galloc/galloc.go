// Package galloc exposes the process-wide external interface of
// spec.md §6: gmem_allocate/gmem_deallocate/gmem_prune/
// gmem_get_statistics, hazard-pointer introspection, and the
// diagnostics log counters, all backed by one lazily-initialised
// default Allocator and hazard Registry shared across the process.
//
// Grounded on spec.md §9's "global mutable state ... lazily initialised
// on first use" design note: the default allocator instance, the global
// hazard chain head, and the error counters all follow that lifecycle
// here, mirroring how the config and logger packages expose package-level
// singletons rather than requiring every caller to carry an explicit
// handle.
package galloc

import (
	"runtime"
	"strconv"
	"sync"
	"unsafe"

	"alconcurrent/config"
	"alconcurrent/hazard"
	"alconcurrent/logger"
	"alconcurrent/slab"
)

var (
	once     sync.Once
	registry *hazard.Registry
	alloc    *slab.Allocator
)

func ensureDefault() {
	once.Do(func() {
		cfg := config.Load()
		registry = hazard.NewRegistry(cfg.HazardGroupSlots)
		alloc = slab.NewAllocator(cfg, registry)
	})
}

// Registry returns the process-wide default hazard registry.
func Registry() *hazard.Registry {
	ensureDefault()
	return registry
}

// Allocator returns the process-wide default slab allocator.
func Allocator() *slab.Allocator {
	ensureDefault()
	return alloc
}

func callSite(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown"
	}
	return file + ":" + strconv.Itoa(line)
}

// Allocate implements gmem_allocate(bytes, alignment): alignment beyond
// Go's natural slice alignment is not honoured for oversize requests,
// see slab.Allocator.Allocate's doc comment (spec.md §9 Open Question
// 2).
func Allocate(n int, alignment int) []byte {
	_ = alignment
	return Allocator().Allocate(n, callSite(1))
}

// Deallocate implements gmem_deallocate(ptr) → bool: false iff ptr is
// empty. Everything else — double frees, corrupt headers, unknown
// addresses — is logged and absorbed per spec.md §7 rather than
// propagated as a failed free.
func Deallocate(p []byte) bool {
	if len(p) == 0 {
		return false
	}
	return Allocator().Deallocate(p, callSite(1))
}

// Prune implements gmem_prune().
func Prune() { Allocator().Prune() }

// Statistics implements gmem_get_statistics() → list<chunk_statistics>.
func Statistics() []slab.Statistics { return Allocator().Statistics() }

// IsHazard implements the hazard-pointer introspection surface of
// spec.md §6.
func IsHazard(addr unsafe.Pointer) bool { return Registry().IsHazard(addr) }

// DestroyAll is the test-only hook that detaches every hazard group.
func DestroyAll() { Registry().DestroyAll() }

// GetErrorWarningLogCount reports cumulative ERROR/WARN log counts.
func GetErrorWarningLogCount() (errs, warns uint64) { return logger.GetErrorWarningLogCount() }

// GetErrorWarningLogCountAndReset reports and resets cumulative
// ERROR/WARN log counts.
func GetErrorWarningLogCountAndReset() (errs, warns uint64) {
	return logger.GetErrorWarningLogCountAndReset()
}
