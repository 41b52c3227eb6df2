// Package sampler implements the sample ingestor: it turns one raw sampled
// stack trace into CallGraph updates, resolving each kept frame to a live
// compiled method and stopping at the first frame it cannot resolve.
//
// The peel-then-walk-top-down shape is grounded on
// stealthrocket/wzprof's traceback walking (skip invalid/native frames
// from the top, bail out of the walk at the first frame that cannot be
// attributed to a function) — wzprof is the one repo in the retrieval pack
// that walks a live call stack frame-by-frame into a profiling data
// structure, the closest analogue in the pack to this ingestor.
package sampler

import (
	"fmt"

	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/graph"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/hostiface"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/methodkey"
)

// MinFrames is the minimum trace depth required after peeling leading
// Native frames; shorter traces are dropped.
const MinFrames = 2

// FrameKind is one of the frame types a sampled stack can contain.
type FrameKind int

const (
	Interpreter FrameKind = iota
	JIT
	Inline
	Native
)

// Frame is one raw sampled stack entry, top of stack first in a
// StackTrace's Frames slice.
type Frame struct {
	Kind FrameKind
	// Raw is an opaque per-host frame token the Resolver understands; the
	// ingestor never interprets it itself — the stack-sampling subsystem
	// that produces it is out of scope for this module.
	Raw any
}

// StackTrace is one sampled call stack: frames, a content hash, a trace
// id, a hot-count weight, and the frame depth.
type StackTrace struct {
	Frames   []Frame
	Hash     uint64
	TraceID  uint64
	HotCount uint32
	Depth    int
}

// Resolver resolves one Frame to a live compiled method, or reports
// ok=false if the method is unloaded, has no compiled body, or lookup
// otherwise fails — any of which terminates traversal at that frame.
type Resolver interface {
	Resolve(f Frame) (key methodkey.MethodKey, size int32, ref hostiface.MethodRef, ok bool)
}

// Stats summarizes one Ingest call, useful for diagnostics and tests.
type Stats struct {
	FramesKept    int
	FuncsRecorded int
	CallsRecorded int
	Dropped       bool
	DropReason    string
}

// Ingest applies one StackTrace to g. It never returns an error: every
// failure mode (resolution failures silently truncate the trace,
// over-short traces are dropped silently) is a no-op, reported only
// through the returned Stats for diagnostics.
func Ingest(g *graph.CallGraph, r Resolver, trace StackTrace) Stats {
	frames := peelLeadingNative(trace.Frames)
	if len(frames) < MinFrames {
		return Stats{Dropped: true, DropReason: fmt.Sprintf("only %d frames remain after peeling native leaders (need %d)", len(frames), MinFrames)}
	}

	var stats Stats
	// callee is the Func resolved one frame higher in the stack (closer to
	// the top/leaf) than the frame currently being processed. Frames are
	// ordered top-of-stack (leaf/callee) first, so walking down the slice
	// walks from callee to caller: the frame just resolved is always the
	// caller of the previous one.
	var callee graph.FuncId
	haveCallee := false

	for _, f := range frames {
		key, size, ref, ok := r.Resolve(f)
		if !ok {
			// First unresolvable frame: stop, keeping whatever was recorded
			// for shallower frames — partial traces are still useful for
			// the lower frames already recorded.
			break
		}
		caller := g.FindOrAddFunc(key, size, ref)
		stats.FramesKept++
		stats.FuncsRecorded++

		if haveCallee {
			if err := g.AddCall(caller, callee, trace.HotCount, trace.TraceID); err == nil {
				stats.CallsRecorded++
			}
		}
		callee = caller
		haveCallee = true
	}
	return stats
}

// peelLeadingNative strips leading consecutive Native frames.
func peelLeadingNative(frames []Frame) []Frame {
	i := 0
	for i < len(frames) && frames[i].Kind == Native {
		i++
	}
	return frames[i:]
}
