package sampler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/graph"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/hostiface"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/methodkey"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/sampler"
)

type frameToken struct {
	name string
	size int32
	bad  bool
}

type fakeResolver struct{}

func (fakeResolver) Resolve(f sampler.Frame) (methodkey.MethodKey, int32, hostiface.MethodRef, bool) {
	tok, ok := f.Raw.(frameToken)
	if !ok || tok.bad {
		return methodkey.MethodKey{}, 0, nil, false
	}
	return methodkey.MethodKey{Class: "p/C", Method: tok.name, Signature: "()V"}, tok.size, nil, true
}

func frame(kind sampler.FrameKind, name string, size int32) sampler.Frame {
	return sampler.Frame{Kind: kind, Raw: frameToken{name: name, size: size}}
}

// S1 (trivial): A calls B, count=3. Frames are top-of-stack first, so B
// (the leaf) resolves before A (its caller).
func TestIngest_S1Trivial(t *testing.T) {
	g := graph.New(nil)
	trace := sampler.StackTrace{
		// Top of stack first: B is the leaf, A is its caller.
		Frames:   []sampler.Frame{frame(sampler.JIT, "B", 50), frame(sampler.JIT, "A", 100)},
		TraceID:  1,
		HotCount: 3,
		Depth:    2,
	}
	stats := sampler.Ingest(g, fakeResolver{}, trace)
	require.False(t, stats.Dropped)
	assert.Equal(t, 2, stats.FuncsRecorded)
	assert.Equal(t, 1, stats.CallsRecorded)

	funcs, calls, _ := g.Snapshot()
	require.Len(t, funcs, 2)
	require.Len(t, calls, 1)
	assert.Equal(t, uint32(3), calls[0].Count)

	var aID, bID graph.FuncId
	for i, f := range funcs {
		switch f.Key.Method {
		case "A":
			aID = graph.FuncId(i)
		case "B":
			bID = graph.FuncId(i)
		}
	}
	assert.Equal(t, aID, calls[0].Caller, "A calls B: A must be recorded as the caller")
	assert.Equal(t, bID, calls[0].Callee, "A calls B: B must be recorded as the callee")
	assert.Equal(t, int64(3), funcs[bID].Heat, "the callee accrues the edge's heat")
	assert.Equal(t, int64(0), funcs[aID].Heat, "the caller itself accrues no heat from this edge")
}

func TestIngest_PeelsLeadingNativeFrames(t *testing.T) {
	g := graph.New(nil)
	trace := sampler.StackTrace{
		Frames: []sampler.Frame{
			frame(sampler.Native, "libc_start", 0),
			frame(sampler.Native, "jvm_entry", 0),
			frame(sampler.JIT, "B", 50),
			frame(sampler.JIT, "A", 100),
		},
		TraceID:  1,
		HotCount: 1,
		Depth:    4,
	}
	stats := sampler.Ingest(g, fakeResolver{}, trace)
	require.False(t, stats.Dropped)
	assert.Equal(t, 2, stats.FuncsRecorded)
}

func TestIngest_DropsTraceShorterThanMinFrames(t *testing.T) {
	g := graph.New(nil)
	trace := sampler.StackTrace{
		Frames:   []sampler.Frame{frame(sampler.Native, "n1", 0), frame(sampler.JIT, "A", 10)},
		TraceID:  1,
		HotCount: 1,
		Depth:    2,
	}
	stats := sampler.Ingest(g, fakeResolver{}, trace)
	assert.True(t, stats.Dropped)
	assert.Equal(t, 0, g.Len())
}

func TestIngest_TruncatesAtFirstUnresolvableFrame(t *testing.T) {
	g := graph.New(nil)
	badFrame := sampler.Frame{Kind: sampler.JIT, Raw: frameToken{bad: true}}
	trace := sampler.StackTrace{
		Frames:   []sampler.Frame{frame(sampler.JIT, "C", 30), badFrame, frame(sampler.JIT, "A", 100)},
		TraceID:  1,
		HotCount: 1,
		Depth:    3,
	}
	stats := sampler.Ingest(g, fakeResolver{}, trace)
	require.False(t, stats.Dropped)
	// Only C is resolved before the walk hits the unresolvable frame; no
	// edge can be recorded since C had no resolved parent yet.
	assert.Equal(t, 1, stats.FuncsRecorded)
	assert.Equal(t, 0, stats.CallsRecorded)
	assert.Equal(t, 1, g.Len())
}
