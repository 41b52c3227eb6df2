package pprofimport_test

import (
	"testing"

	"github.com/google/pprof/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/graph"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/sampler"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/sampler/pprofimport"
)

func TestFrames_ConvertsSamplesToStackTraces(t *testing.T) {
	fnA := &profile.Function{ID: 1, Name: "p/C.A"}
	fnB := &profile.Function{ID: 2, Name: "p/C.B"}
	locA := &profile.Location{ID: 1, Address: 0x1000, Line: []profile.Line{{Function: fnA}}}
	locB := &profile.Location{ID: 2, Address: 0x2000, Line: []profile.Line{{Function: fnB}}}

	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "samples", Unit: "count"}},
		Sample: []*profile.Sample{
			// pprof lists the leaf (innermost) frame first: B called from A.
			{Location: []*profile.Location{locB, locA}, Value: []int64{3}},
		},
	}

	traces, err := pprofimport.Frames(p, 0)
	require.NoError(t, err)
	require.Len(t, traces, 1)
	assert.Equal(t, uint32(3), traces[0].HotCount)
	assert.Len(t, traces[0].Frames, 2)
}

func TestFrames_SkipsZeroValueSamples(t *testing.T) {
	fnA := &profile.Function{ID: 1, Name: "p/C.A"}
	locA := &profile.Location{ID: 1, Line: []profile.Line{{Function: fnA}}}
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "samples", Unit: "count"}},
		Sample: []*profile.Sample{
			{Location: []*profile.Location{locA}, Value: []int64{0}},
		},
	}
	traces, err := pprofimport.Frames(p, 0)
	require.NoError(t, err)
	assert.Empty(t, traces)
}

func TestResolver_SplitsClassAndMethod(t *testing.T) {
	fn := &profile.Function{Name: "java/lang/String.equals"}
	ln := profile.Line{Function: fn}
	r := pprofimport.Resolver{DefaultSize: 42}
	key, size, ref, ok := r.Resolve(sampler.Frame{Kind: sampler.JIT, Raw: ln})
	require.True(t, ok)
	assert.Nil(t, ref)
	assert.Equal(t, int32(42), size)
	assert.Equal(t, "equals", key.Method)
	assert.Equal(t, "java/lang/String", key.Class)
}

func TestIngest_EndToEndFromPprofProfile(t *testing.T) {
	fnA := &profile.Function{Name: "p/C.A"}
	fnB := &profile.Function{Name: "p/C.B"}
	locA := &profile.Location{Line: []profile.Line{{Function: fnA}}}
	locB := &profile.Location{Line: []profile.Line{{Function: fnB}}}
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "samples", Unit: "count"}},
		Sample: []*profile.Sample{
			{Location: []*profile.Location{locB, locA}, Value: []int64{5}},
		},
	}
	traces, err := pprofimport.Frames(p, 0)
	require.NoError(t, err)

	g := graph.New(nil)
	resolver := pprofimport.Resolver{DefaultSize: 16}
	for _, tr := range traces {
		sampler.Ingest(g, resolver, tr)
	}
	funcs, calls, _ := g.Snapshot()
	require.Len(t, funcs, 2)
	require.Len(t, calls, 1)
	assert.Equal(t, uint32(5), calls[0].Count)
}
