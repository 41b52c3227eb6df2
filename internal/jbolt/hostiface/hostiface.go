// Package hostiface declares the seams between the JBolt core and the
// collaborators that are out of scope for this module: the stack-sampling
// subsystem, the compiler broker, the code-cache allocator, and weak
// handles to managed-code method holders. The core depends only on these
// interfaces; a host runtime supplies the implementations.
//
// This mirrors wazero's wasm.Engine seam between its core and a pluggable
// compiler/interpreter backend: the core of this module never reaches past
// these interfaces into a concrete JVM.
package hostiface

import (
	"context"

	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/methodkey"
)

// MethodRef is an opaque weak handle to a managed-code method holder. The
// ingestor records MethodRef values; the recompile driver promotes them to
// StrongMethodRef after confirming liveness.
type MethodRef interface {
	// IsAlive reports whether the underlying method holder is still loaded.
	IsAlive() bool
	// Promote upgrades a live weak reference to a strong one. ok is false
	// if the holder was unloaded between IsAlive and Promote.
	Promote() (ref StrongMethodRef, ok bool)
	// Identity returns the method's stable symbolic identity.
	Identity() methodkey.MethodKey
}

// StrongMethodRef keeps a managed-code method holder alive for the
// duration of a no-safepoint scope, the liveness-promotion rule the
// recompile driver relies on between Promote and Release.
type StrongMethodRef interface {
	MethodRef
	// Release drops the strong reference, allowing the holder to be
	// collected again once no other strong references remain.
	Release()
}

// CompileReason enumerates why a compile task was submitted. JBolt only
// ever submits Reorder tasks for hot methods and Evacuate tasks during
// post-clear; other reasons originate from the host's ordinary
// tiered-compilation policy and are opaque to this package.
type CompileReason int

const (
	// CompileReasonUnspecified is the zero value; never produced by JBolt.
	CompileReasonUnspecified CompileReason = iota
	// CompileReasonReorder is a recompile requested to move a hot method
	// into the primary hot segment.
	CompileReasonReorder
	// CompileReasonEvacuate is a recompile requested during post-clear to
	// move a method back out of the (now secondary) former-primary
	// segment into its default location.
	CompileReasonEvacuate
)

// CompileTaskInfo describes one recompilation request: the method's weak
// reference, an invocation-entry OSRBCI, the preserved compile level, and
// the reason it was submitted.
type CompileTaskInfo struct {
	Method    MethodRef
	OSRBCI    int32 // invocation-entry sentinel unless mid-method OSR
	CompLevel int32
	Reason    CompileReason
}

// InvocationEntryBCI is the sentinel OSRBCI value meaning "not an
// on-stack-replacement compile", i.e. a normal invocation-entry compile.
const InvocationEntryBCI int32 = -1

// CompilerBroker is the external collaborator that actually turns a
// CompileTaskInfo into native code. The recompile driver enqueues tasks
// and blocks on their outcome through this interface; it never touches
// machine code directly.
type CompilerBroker interface {
	// Enqueue submits task on the queue for its CompLevel and returns a
	// handle used to wait for completion. The broker may skip the task
	// (e.g. unloaded holder, OSR in progress) and report that via the
	// returned CompileOutcome.
	Enqueue(ctx context.Context, task CompileTaskInfo) (CompileHandle, error)
}

// CompileHandle lets the recompile driver block until a previously enqueued
// task finishes and observe where its code landed.
type CompileHandle interface {
	// Wait blocks until the task completes or ctx is cancelled.
	Wait(ctx context.Context) (CompileOutcome, error)
}

// CompileOutcome reports the result of a compile task the driver waited on.
type CompileOutcome struct {
	// Skipped is true when the holder was unloaded, the method was an OSR
	// target, or the compile otherwise failed to produce code — a
	// recoverable condition, never an error.
	Skipped bool
	// SegmentID names the code-heap segment the resulting nmethod actually
	// landed in, as reported by the compiler's code-placement hook. Unset
	// when Skipped.
	SegmentID int32
}

// CodeCacheAllocator is the external collaborator that carves reserved
// address ranges into heaps. The segment manager asks it to reserve the
// two hot segments; it never allocates raw memory itself.
type CodeCacheAllocator interface {
	// ReserveSegment asks the allocator for a contiguous region at least
	// sizeBytes long, tagged with name for diagnostics. The allocator may
	// return less than requested (a degraded-but-running outcome, not an
	// error).
	ReserveSegment(name string, sizeBytes int64) (SegmentID int32, actualBytes int64, err error)
}

// StackSampler is the external collaborator that produces raw frame arrays
// from running threads. JBolt only starts and stops it; it never reads
// thread state directly.
type StackSampler interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// OperatorReply is what an operator-command dispatch receives back from
// JBolt for a start/stop/abort/dump request.
type OperatorReply struct {
	OK      bool
	Message string
}

// CodeCacheSweeper is the external collaborator that enumerates still-live
// compiled methods in a segment and forces the code cache to reclaim
// space during post-clear: scan the (now-secondary) former-primary
// segment, then force-sweep the code cache a configured number of times.
type CodeCacheSweeper interface {
	// ListLive returns every live compiled method currently resident in
	// segmentID.
	ListLive(segmentID int32) ([]MethodRef, error)
	// Sweep asks the host to reclaim dead nmethods, idempotently; callers
	// may invoke it more than once in a row.
	Sweep() error
}
