// Package graph implements the call-graph accumulator: the Func/Call/Cluster
// arena tables that a sampling window accumulates into, and the snapshot
// operation HFSort consumes.
//
// There is no global mutable singleton here: a CallGraph value is
// constructed fresh for each cycle and passed explicitly to the sample
// ingestor and the HFSort engine, the same way wazero threads a
// *compiledModule through its engine rather than reaching for package-level
// state (internal/engine/wazevo/engine.go).
package graph

import (
	"fmt"
	"sync"

	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/hostiface"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/methodkey"
)

// FuncId is a compact integer handle indexing CallGraph's function table.
type FuncId uint32

// InvalidFuncId is returned when a lookup fails.
const InvalidFuncId FuncId = ^FuncId(0)

// ClusterId is a compact integer handle indexing CallGraph's cluster table.
type ClusterId int32

// DeadCluster is the sentinel id recorded for a cluster that has been
// merged away.
const DeadCluster ClusterId = -1

// DefaultPageSize is the host page size CallGraph assumes when freezing a
// singleton cluster at creation time, matching hfsort.DefaultPolicy's
// PageSize. The two packages intentionally don't share this constant
// directly (hfsort already depends on graph; graph cannot depend back).
const DefaultPageSize int32 = 4096

// Func is one entry in the function table.
type Func struct {
	Key  *methodkey.MethodKey
	Ref  hostiface.MethodRef // optional; nil once the run that produced it ends
	Heat int64
	Size int32

	ClusterID ClusterId
	// Edges holds the indices, into CallGraph.calls, of every Call whose
	// Caller or Callee is this Func.
	Edges []int
}

// Call is one edge in the call graph.
type Call struct {
	Caller      FuncId
	Callee      FuncId
	Count       uint32
	OriginTrace uint64
}

// Cluster groups Funcs that HFSort has merged together. Clusters only exist
// transiently: one per Func at the start of an HFSort run, fewer after
// merging.
type Cluster struct {
	ID     ClusterId
	Heats  int64
	Size   int32
	Frozen bool
	Funcs  []FuncId
}

// Density returns Heats/Size, or 0 if Size is 0.
func (c *Cluster) Density() float64 {
	if c.Size == 0 {
		return 0
	}
	return float64(c.Heats) / float64(c.Size)
}

// CallGraph is the per-cycle arena. It is not safe for concurrent mutation
// from more than one ingestor goroutine at a time without an external lock
// — the sampler thread already serializes per-trace ingestion under the
// stack-trace-table mutex, so CallGraph itself only needs to protect the
// snapshot/consume boundary.
type CallGraph struct {
	mu sync.RWMutex

	funcs          []Func
	calls          []Call
	clustersLocked []Cluster

	// byKey accelerates FindOrAddFunc's equality search using the 31-fold
	// hash as a pre-filter bucket; it changes only the constant factor of
	// a linear-by-equality search, never its semantics.
	byKey map[uint64][]FuncId

	interner *methodkey.Interner

	nextClusterID ClusterId
	pageSize      int32
}

// New returns an empty CallGraph backed by interner for MethodKey storage.
func New(interner *methodkey.Interner) *CallGraph {
	if interner == nil {
		interner = methodkey.NewInterner()
	}
	return &CallGraph{
		byKey:    make(map[uint64][]FuncId),
		interner: interner,
		pageSize: DefaultPageSize,
	}
}

// FindOrAddFunc is a linear search by MethodKey equality (the
// interface-level stand-in for "by MethodKey OR by live-klass/live-method-id",
// since hostiface.MethodRef.Identity() always resolves to a MethodKey); on
// miss, inserts a new Func and a singleton Cluster bound to it.
func (g *CallGraph) FindOrAddFunc(key methodkey.MethodKey, size int32, ref hostiface.MethodRef) FuncId {
	g.mu.Lock()
	defer g.mu.Unlock()

	h := key.Hash()
	for _, id := range g.byKey[h] {
		f := &g.funcs[id]
		if f.Key.Equal(key) {
			return id
		}
	}

	id := FuncId(len(g.funcs))
	interned := g.interner.Intern(key)
	g.funcs = append(g.funcs, Func{
		Key:       interned,
		Ref:       ref,
		Size:      size,
		ClusterID: g.newSingletonClusterLocked(id, size),
	})
	g.byKey[h] = append(g.byKey[h], id)
	return id
}

// newSingletonClusterLocked records a fresh one-Func Cluster so that
// FindOrAddFunc can hand back a live ClusterId immediately: initially one
// Cluster per Func. HFSort later works off a separate, independent copy
// (Snapshot).
//
// A cluster whose own size already meets or exceeds the page size is
// frozen at creation, before any merge is ever attempted — matching the
// original JBoltCluster constructor, which calls freeze() unconditionally
// when the initial size already crosses the threshold. hfsort.mergeInto
// freezes reactively after a merge grows a cluster past the threshold;
// this is the construction-time counterpart, independent of whether the
// caller's Policy ever enables RespectFreeze.
func (g *CallGraph) newSingletonClusterLocked(fn FuncId, size int32) ClusterId {
	id := g.nextClusterID
	g.nextClusterID++
	g.clustersLocked = append(g.clustersLocked, Cluster{
		ID:     id,
		Size:   size,
		Frozen: size >= g.pageSize,
		Funcs:  []FuncId{fn},
	})
	return id
}

// AddCall records one call edge, applying the same-trace monotonic-counter
// vs distinct-trace additive update rule.
func (g *CallGraph) AddCall(caller, callee FuncId, count uint32, traceID uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	cf := &g.funcs[callee]
	for _, idx := range cf.Edges {
		e := &g.calls[idx]
		if e.Caller != caller || e.Callee != callee {
			continue
		}
		if e.OriginTrace == traceID {
			if count <= e.Count {
				return fmt.Errorf("graph: non-monotonic replay of trace %d: new count %d <= stored %d", traceID, count, e.Count)
			}
			delta := int64(count - e.Count)
			e.Count = count
			cf.Heat += delta
			g.bumpClusterHeatLocked(cf.ClusterID, delta)
			return nil
		}
		// Distinct trace id sharing the same (caller, callee) pair: additive.
		e.Count += count
		cf.Heat += int64(count)
		g.bumpClusterHeatLocked(cf.ClusterID, int64(count))
		return nil
	}

	// Miss: append a new edge.
	idx := len(g.calls)
	g.calls = append(g.calls, Call{Caller: caller, Callee: callee, Count: count, OriginTrace: traceID})
	cf.Edges = append(cf.Edges, idx)
	cf.Heat += int64(count)
	g.bumpClusterHeatLocked(cf.ClusterID, int64(count))

	if caller != InvalidFuncId {
		g.funcs[caller].Edges = append(g.funcs[caller].Edges, idx)
	}
	return nil
}

func (g *CallGraph) bumpClusterHeatLocked(id ClusterId, delta int64) {
	if id == DeadCluster {
		return
	}
	for i := range g.clustersLocked {
		if g.clustersLocked[i].ID == id {
			g.clustersLocked[i].Heats += delta
			return
		}
	}
}

// Snapshot returns independent copies of the function table, call table,
// and cluster table, suitable for HFSort to consume without any further
// locking. The returned clusters are a copy of CallGraph's own
// one-per-Func cluster table, so the merges one HFSort invocation makes to
// them never reach CallGraph's live state.
func (g *CallGraph) Snapshot() (funcs []Func, calls []Call, clusters []Cluster) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	funcs = make([]Func, len(g.funcs))
	for i, f := range g.funcs {
		funcs[i] = f
		funcs[i].Edges = append([]int(nil), f.Edges...)
	}
	calls = make([]Call, len(g.calls))
	copy(calls, g.calls)
	clusters = make([]Cluster, len(g.clustersLocked))
	for i, c := range g.clustersLocked {
		clusters[i] = c
		clusters[i].Funcs = append([]FuncId(nil), c.Funcs...)
	}
	return
}

// Len returns the number of Funcs currently tracked.
func (g *CallGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.funcs)
}

// Func returns a copy of the Func at id. Panics on an out-of-range id, the
// same contract as indexing a slice directly.
func (g *CallGraph) Func(id FuncId) Func {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.funcs[id]
}

// Reset clears the graph for the next sampling window's pre-clear step.
// Interned MethodKeys are released back to the shared interner.
func (g *CallGraph) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, f := range g.funcs {
		g.interner.Release(*f.Key)
	}
	g.funcs = nil
	g.calls = nil
	g.clustersLocked = nil
	g.byKey = make(map[uint64][]FuncId)
	g.nextClusterID = 0
}
