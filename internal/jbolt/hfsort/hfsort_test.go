package hfsort_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/graph"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/hfsort"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/methodkey"
)

func buildGraph(t *testing.T) (*graph.CallGraph, map[string]graph.FuncId) {
	t.Helper()
	g := graph.New(nil)
	ids := make(map[string]graph.FuncId)
	add := func(name string, size int32) {
		ids[name] = g.FindOrAddFunc(methodkey.MethodKey{Class: "p/C", Method: name, Signature: "()V"}, size, nil)
	}
	_ = add
	return g, ids
}

func namesOf(entries []hfsort.Entry) []string {
	var names []string
	for _, e := range entries {
		if e.Sentinel {
			names = append(names, "|")
		} else {
			names = append(names, e.Key.Method)
		}
	}
	return names
}

// S1: one trace {A calls B, count=3}. B is visited first (heat 3 > 0), its
// singleton cluster is folded into its hottest predecessor A's cluster, and
// a merge appends the callee's funcs onto the end of the predecessor's: the
// surviving cluster holds [A, B].
func TestSort_S1Trivial(t *testing.T) {
	g, _ := buildGraph(t)
	a := g.FindOrAddFunc(methodkey.MethodKey{Class: "p/C", Method: "A", Signature: "()V"}, 10, nil)
	b := g.FindOrAddFunc(methodkey.MethodKey{Class: "p/C", Method: "B", Signature: "()V"}, 10, nil)
	require.NoError(t, g.AddCall(a, b, 3, 1))

	funcs, calls, clusters := g.Snapshot()
	order := hfsort.Sort(funcs, calls, clusters, hfsort.DefaultPolicy())

	assert.Equal(t, []string{"|", "A", "B", "|"}, namesOf(order))
}

// S2 (merge): A heat=10 size=100, B heat=5 size=50, edge A->B count=5.
// B merges into A's cluster. Cluster heats=15, size=150, order [A, B].
func TestSort_S2Merge(t *testing.T) {
	g := graph.New(nil)
	a := g.FindOrAddFunc(methodkey.MethodKey{Class: "p/C", Method: "A", Signature: "()V"}, 100, nil)
	b := g.FindOrAddFunc(methodkey.MethodKey{Class: "p/C", Method: "B", Signature: "()V"}, 50, nil)
	// Give A heat 10 via a synthetic root caller.
	root := g.FindOrAddFunc(methodkey.MethodKey{Class: "p/C", Method: "root", Signature: "()V"}, 0, nil)
	require.NoError(t, g.AddCall(root, a, 10, 1))
	require.NoError(t, g.AddCall(a, b, 5, 2))

	funcs, calls, clusters := g.Snapshot()
	order := hfsort.Sort(funcs, calls, clusters, hfsort.DefaultPolicy())

	// Expect a single cluster containing A then B (A is B's hot
	// predecessor and has non-zero edges so it merges into root's
	// cluster too, but the A/B adjacency is what we assert on).
	names := namesOf(order)
	require.Contains(t, names, "A")
	require.Contains(t, names, "B")

	aIdx, bIdx := indexOf(names, "A"), indexOf(names, "B")
	assert.Less(t, aIdx, bIdx, "A must precede B within the merged cluster")
	// No sentinel should separate A and B: they are in the same cluster.
	for i := aIdx + 1; i < bIdx; i++ {
		assert.NotEqual(t, "|", names[i])
	}
}

// S3 (freeze): page size 4096, sizes A=3000 B=2000, edge A->B=100. Neither
// cluster is large enough to freeze on creation; RespectFreeze rejects the
// merge reactively because combining A and B would cross the page size,
// so B remains a separate cluster.
func TestSort_S3Freeze(t *testing.T) {
	g := graph.New(nil)
	a := g.FindOrAddFunc(methodkey.MethodKey{Class: "p/C", Method: "A", Signature: "()V"}, 3000, nil)
	b := g.FindOrAddFunc(methodkey.MethodKey{Class: "p/C", Method: "B", Signature: "()V"}, 2000, nil)
	root := g.FindOrAddFunc(methodkey.MethodKey{Class: "p/C", Method: "root", Signature: "()V"}, 0, nil)
	require.NoError(t, g.AddCall(root, a, 1000, 1))
	require.NoError(t, g.AddCall(a, b, 100, 2))

	funcs, calls, clusters := g.Snapshot()
	policy := hfsort.Policy{SortBy: hfsort.SortByHeat, RespectFreeze: true, PageSize: 4096}
	order := hfsort.Sort(funcs, calls, clusters, policy)

	names := namesOf(order)
	// A (size 3000) merging with B (size 2000) would total 5000 > 4096,
	// so the merge must be rejected and B stays its own cluster.
	aIdx, bIdx := indexOf(names, "A"), indexOf(names, "B")
	between := false
	for i := aIdx + 1; i < bIdx; i++ {
		if names[i] == "|" {
			between = true
		}
	}
	assert.True(t, between, "A and B must remain in separate clusters when the merge would exceed the page size")
}

func TestSort_OrderCompleteness(t *testing.T) {
	g, _ := buildGraph(t)
	var ids []graph.FuncId
	for i := 0; i < 20; i++ {
		id := g.FindOrAddFunc(methodkey.MethodKey{Class: "p/C", Method: string(rune('A' + i)), Signature: "()V"}, int32(10 + i), nil)
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		require.NoError(t, g.AddCall(ids[i-1], ids[i], uint32(i), uint64(i)))
	}

	funcs, calls, clusters := g.Snapshot()
	order := hfsort.Sort(funcs, calls, clusters, hfsort.DefaultPolicy())

	seen := map[string]int{}
	for _, e := range order {
		if !e.Sentinel {
			seen[e.Key.Method]++
		}
	}
	assert.Len(t, seen, len(ids))
	for name, count := range seen {
		assert.Equal(t, 1, count, "func %s must appear exactly once", name)
	}
}

func TestSort_Determinism(t *testing.T) {
	build := func() (funcs []graph.Func, calls []graph.Call, clusters []graph.Cluster) {
		g, _ := buildGraph(t)
		var ids []graph.FuncId
		for i := 0; i < 8; i++ {
			id := g.FindOrAddFunc(methodkey.MethodKey{Class: "p/C", Method: string(rune('A' + i)), Signature: "()V"}, int32(10), nil)
			ids = append(ids, id)
		}
		for i := 1; i < len(ids); i++ {
			require.NoError(t, g.AddCall(ids[0], ids[i], uint32(5), uint64(i)))
		}
		return g.Snapshot()
	}

	f1, c1, cl1 := build()
	f2, c2, cl2 := build()
	o1 := hfsort.Sort(f1, c1, cl1, hfsort.DefaultPolicy())
	o2 := hfsort.Sort(f2, c2, cl2, hfsort.DefaultPolicy())
	assert.Equal(t, namesOf(o1), namesOf(o2))
}

func indexOf(ss []string, s string) int {
	for i, v := range ss {
		if v == s {
			return i
		}
	}
	return -1
}
