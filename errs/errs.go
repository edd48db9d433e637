// Package errs classifies the diagnostic conditions raised by the
// allocator and container packages (spec.md §7). None of these are
// exceptions: every hot-path function returns an ordinary value or bool,
// and a Diagnostic is only ever produced alongside a logger.Warn/Error
// call, for counting and introspection purposes.
package errs

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Kind classifies a diagnostic condition. A Kind is never used for
// automated recovery routing beyond what the allocator's own fallback
// paths already perform; it exists for logging and for the counters
// exposed through GetErrorWarningLogCount.
type Kind int

const (
	// CorruptHeader: a slot header's checksum does not match its owner.
	CorruptHeader Kind = iota
	// DoubleFree: the slot-status CAS from INUSE to FREE failed.
	DoubleFree
	// UnknownAddress: deallocate was given a pointer owned by no chunk.
	UnknownAddress
	// RetireLeakOnShutdown: the retire queue was non-empty when the prune
	// daemon stopped.
	RetireLeakOnShutdown
	// DestructorRemainingNodes: a container was torn down while still
	// holding nodes.
	DestructorRemainingNodes
	// PrecondViolation: a precondition documented by the caller's contract
	// was violated (e.g. releasing a non-empty FIFO sentinel).
	PrecondViolation
)

// String returns the human-readable name of the diagnostic kind.
func (k Kind) String() string {
	switch k {
	case CorruptHeader:
		return "CORRUPT_HEADER"
	case DoubleFree:
		return "DOUBLE_FREE"
	case UnknownAddress:
		return "UNKNOWN_ADDRESS"
	case RetireLeakOnShutdown:
		return "RETIRE_LEAK_ON_SHUTDOWN"
	case DestructorRemainingNodes:
		return "DESTRUCTOR_REMAINING_NODES"
	case PrecondViolation:
		return "PRECOND_VIOLATION"
	default:
		return "UNKNOWN"
	}
}

// Severity mirrors the two levels spec.md §7 actually assigns: every
// listed kind is logged as either WARN or ERROR, never higher.
type Severity int

const (
	SeverityWarn Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "ERROR"
	}
	return "WARN"
}

// DefaultSeverity returns the severity spec.md §7 assigns to each kind.
func DefaultSeverity(k Kind) Severity {
	switch k {
	case CorruptHeader, DoubleFree, UnknownAddress, PrecondViolation:
		return SeverityError
	default:
		return SeverityWarn
	}
}

// Diagnostic is a single recorded occurrence of a Kind, carried through
// Record into the process-wide counters and the logging sink.
type Diagnostic struct {
	Kind      Kind
	Severity  Severity
	Message   string
	Timestamp time.Time
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("[%s] %s: %s", d.Severity, d.Kind, d.Message)
}

// counters, one per Kind, back Count/Reset. Declared as a fixed array
// rather than a map so Record never allocates or takes a lock.
var counters [6]atomic.Uint64

// Record increments the counter for k and returns the Diagnostic that the
// caller should pass to its logging sink. It performs no I/O itself: the
// caller decides whether to call logger.Warn or logger.Error.
func Record(k Kind, format string, args ...interface{}) Diagnostic {
	counters[k].Add(1)
	return Diagnostic{
		Kind:      k,
		Severity:  DefaultSeverity(k),
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	}
}

// Count returns the number of times k has been recorded since start or
// the last Reset.
func Count(k Kind) uint64 {
	return counters[k].Load()
}

// Reset zeroes every kind's counter and returns the prior totals, keyed
// by Kind.
func Reset() map[Kind]uint64 {
	prior := make(map[Kind]uint64, len(counters))
	for i := range counters {
		prior[Kind(i)] = counters[Kind(i)].Swap(0)
	}
	return prior
}
