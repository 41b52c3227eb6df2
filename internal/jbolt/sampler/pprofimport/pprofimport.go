// Package pprofimport adapts a github.com/google/pprof profile.Profile into
// the sampler package's StackTrace shape, letting a captured pprof CPU
// profile stand in for the live stack-sampling subsystem (an external
// collaborator this module never implements) — useful for replaying a
// recorded profile through the same ingestor a live sampler feeds.
//
// stealthrocket/wzprof is the pack's only repo that both embeds a
// wazero-style managed runtime and emits pprof profiles from sampled
// stacks; this adapter borrows its Location/Line walking order (leaf
// frame first, inlined frames unwound innermost-first) without wzprof's
// runtime-specific symbolization.
package pprofimport

import (
	"fmt"
	"strings"

	"github.com/google/pprof/profile"

	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/hostiface"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/methodkey"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/sampler"
)

// ValueIndex picks which of a Sample's parallel Value slots to treat as
// the hot-count; pprof profiles carry more than one sample type (e.g.
// both "samples" and "cpu"), so the caller names which one JBolt should
// weight by.
type ValueIndex int

// Frames converts every Sample in p into a sampler.StackTrace, assigning
// each one a synthetic TraceID from its position in p.Sample (pprof has no
// native trace-id concept; the call graph's same-trace monotonicity rule
// therefore never fires across samples from an imported profile — each is
// treated as a fresh observation, added additively like a distinct trace
// id from a live sampler).
func Frames(p *profile.Profile, valueIndex ValueIndex) ([]sampler.StackTrace, error) {
	if int(valueIndex) >= len(p.SampleType) {
		return nil, fmt.Errorf("pprofimport: value index %d out of range for %d sample types", valueIndex, len(p.SampleType))
	}

	traces := make([]sampler.StackTrace, 0, len(p.Sample))
	for i, s := range p.Sample {
		if int(valueIndex) >= len(s.Value) {
			continue
		}
		count := s.Value[valueIndex]
		if count <= 0 {
			continue
		}

		var frames []sampler.Frame
		for _, loc := range s.Location {
			// A Location's Line slice is innermost-inlined-frame-first per
			// profile.proto; each Line but the last is an inlined frame.
			for j, ln := range loc.Line {
				kind := sampler.JIT
				if j < len(loc.Line)-1 {
					kind = sampler.Inline
				}
				frames = append(frames, sampler.Frame{Kind: kind, Raw: ln})
			}
			if len(loc.Line) == 0 {
				frames = append(frames, sampler.Frame{Kind: sampler.Native, Raw: loc})
			}
		}

		traces = append(traces, sampler.StackTrace{
			Frames:   frames,
			Hash:     locationsHash(s.Location),
			TraceID:  uint64(i),
			HotCount: uint32(count),
			Depth:    len(frames),
		})
	}
	return traces, nil
}

// Resolver adapts profile.Line frames (as produced by Frames) to
// sampler.Resolver, splitting pprof's single "package.Method" function
// name into a MethodKey's class/method fields. pprof carries no JVM
// signature, so Signature is always left empty — callers that need exact
// MethodKey parity with a live JVM sampler should supply their own
// Resolver instead.
type Resolver struct {
	// DefaultSize is used for every resolved method, since pprof profiles
	// carry no compiled-code size.
	DefaultSize int32
}

func (r Resolver) Resolve(f sampler.Frame) (methodkey.MethodKey, int32, hostiface.MethodRef, bool) {
	ln, ok := f.Raw.(profile.Line)
	if !ok || ln.Function == nil || ln.Function.Name == "" {
		return methodkey.MethodKey{}, 0, nil, false
	}
	class, method := splitFuncName(ln.Function.Name)
	return methodkey.MethodKey{Class: class, Method: method, Signature: ""}, r.DefaultSize, nil, true
}

func splitFuncName(name string) (class, method string) {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return strings.ReplaceAll(name[:i], ".", "/"), name[i+1:]
	}
	return "", name
}

func locationsHash(locs []*profile.Location) uint64 {
	var h uint64 = 1469598103934665603 // FNV offset basis
	for _, loc := range locs {
		h ^= loc.Address
		h *= 1099511628211 // FNV prime
	}
	return h
}
