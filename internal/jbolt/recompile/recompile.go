// Package recompile implements the recompile driver and code-placement
// hook: it walks the HFSort order synthesizing CompileTaskInfo tasks,
// enqueues them on the external compiler broker, waits for each to land,
// and verifies placement; it also answers the compiler thread's "where
// does this freshly compiled nmethod go" question during both Collecting
// and Reordering.
//
// The enqueue-then-wait-per-item shape for the (sequential) reorder walk
// follows wazero's wazevo engine compiling one function at a time
// (internal/engine/wazevo/engine.go's compileModule loop); the post-clear
// evacuation step, which has no "single current-reordering method"
// constraint and so can run concurrently, is bounded with
// golang.org/x/sync's errgroup and semaphore the way Voskan/arena-cache and
// ahrav/go-gavel bound concurrent background work.
package recompile

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/hostiface"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/jlog"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/methodkey"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/metrics"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/phase"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/segment"
)

// OrderedMethod is one entry of the HFSort order joined back against the
// graph snapshot that produced it, so the driver has a live MethodRef to
// work with (an hfsort.Entry itself only carries a MethodKey, durable
// enough to round-trip through an order file but not live).
type OrderedMethod struct {
	Key  methodkey.MethodKey
	Size int32
	Ref  hostiface.MethodRef
}

// DefaultReorderThreshold is the fraction of the hot-method count that
// must be observed compiled at top tier before manual-load mode begins
// reordering ("_jbolt_reorder_threshold" in the original, default 0.8).
const DefaultReorderThreshold = 0.8

// Placement is the code-placement hook's answer for one freshly compiled
// nmethod.
type Placement int

const (
	PlaceDefault Placement = iota
	PlacePrimary
	PlaceSecondary
)

// Driver is the recompile driver. One Driver is owned by the control
// thread for the lifetime of the process.
type Driver struct {
	broker   hostiface.CompilerBroker
	segments *segment.Manager
	phaseSt  *phase.State
	metrics  *metrics.Collectors
	log      *zap.Logger

	threshold float64

	mu       sync.Mutex
	hotSet   map[methodkey.MethodKey]struct{}
	captured map[methodkey.MethodKey]hostiface.CompileTaskInfo
	// thresholdTarget is the hot-method count MarkHotSet was last called
	// with; thresholdFired reports whether Place has already notified
	// thresholdNotify for the current hot set, so it only fires once per
	// MarkHotSet generation.
	thresholdTarget int
	thresholdFired  bool
	thresholdNotify chan struct{}

	current atomic.Pointer[methodkey.MethodKey]
}

// New builds a Driver. threshold <= 0 falls back to DefaultReorderThreshold.
func New(broker hostiface.CompilerBroker, segments *segment.Manager, phaseSt *phase.State, collectors *metrics.Collectors, logger *zap.Logger, threshold float64) *Driver {
	if threshold <= 0 {
		threshold = DefaultReorderThreshold
	}
	return &Driver{
		broker:          broker,
		segments:        segments,
		phaseSt:         phaseSt,
		metrics:         collectors,
		log:             jlog.New(logger, jlog.Recompile),
		threshold:       threshold,
		hotSet:          make(map[methodkey.MethodKey]struct{}),
		captured:        make(map[methodkey.MethodKey]hostiface.CompileTaskInfo),
		thresholdNotify: make(chan struct{}, 1),
	}
}

// MarkHotSet registers the hot-method set manual-load mode expects to see
// during Collecting, so Place can recognize them: in Collecting, any
// hot-listed method goes to the secondary hot segment. It also resets the
// threshold-crossing tracker for the new set.
func (d *Driver) MarkHotSet(keys []methodkey.MethodKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hotSet = make(map[methodkey.MethodKey]struct{}, len(keys))
	for _, k := range keys {
		d.hotSet[k] = struct{}{}
	}
	d.captured = make(map[methodkey.MethodKey]hostiface.CompileTaskInfo)
	d.thresholdTarget = len(keys)
	d.thresholdFired = false
	select {
	case <-d.thresholdNotify:
	default:
	}
}

// Place answers the compiler thread's code-placement question for one
// freshly compiled nmethod. topTier reports whether this compile is at
// the JIT's top optimization tier; non-top-tier and OSR compiles are
// always routed to their default location.
func (d *Driver) Place(info hostiface.CompileTaskInfo, topTier bool) Placement {
	if !topTier || info.OSRBCI != hostiface.InvocationEntryBCI {
		return PlaceDefault
	}

	switch d.phaseSt.Load() {
	case phase.Collecting:
		key := info.Method.Identity()
		d.mu.Lock()
		_, hot := d.hotSet[key]
		if hot {
			if _, already := d.captured[key]; !already {
				d.captured[key] = info
			}
			if !d.thresholdFired && d.thresholdTarget > 0 &&
				float64(len(d.captured))/float64(d.thresholdTarget) >= d.threshold {
				d.thresholdFired = true
				select {
				case d.thresholdNotify <- struct{}{}:
				default:
				}
			}
		}
		d.mu.Unlock()
		if hot {
			return PlaceSecondary
		}
		return PlaceDefault
	case phase.Reordering:
		cur := d.current.Load()
		if cur != nil && *cur == info.Method.Identity() {
			return PlacePrimary
		}
		return PlaceDefault
	default:
		return PlaceDefault
	}
}

// CapturedCount reports how many distinct hot methods Place has observed
// and captured so far during the current Collecting window.
func (d *Driver) CapturedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.captured)
}

// CapturedRef returns the MethodRef Place captured for key during the
// current Collecting window, if any. Manual-load mode's control thread
// uses this to resolve a live reference for each method in the loaded
// order before walking it in Reorder.
func (d *Driver) CapturedRef(key methodkey.MethodKey) (hostiface.MethodRef, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.captured[key]
	if !ok {
		return nil, false
	}
	return t.Method, true
}

// ThresholdCrossed reports whether enough hot methods have been captured
// to begin reordering.
func (d *Driver) ThresholdCrossed(hotMethodCount int) bool {
	if hotMethodCount <= 0 {
		return false
	}
	return float64(d.CapturedCount())/float64(hotMethodCount) >= d.threshold
}

// ThresholdNotify returns a channel that receives a value the first time,
// after the most recent MarkHotSet call, that enough hot methods have
// been captured to cross the reorder threshold. Manual-load mode's
// control thread waits on this to know when to leave Collecting.
func (d *Driver) ThresholdNotify() <-chan struct{} {
	return d.thresholdNotify
}

// Summary reports the outcome of one Reorder walk.
type Summary struct {
	Attempted  int
	Skipped    int
	Mismatched int
}

// Reorder walks ordered sequentially, synthesizing and waiting on one
// compile task per method. It is intentionally sequential: only one
// method may be "the current-reordering method" at a time, so tasks
// cannot be pipelined the way Evacuate's tasks can.
func (d *Driver) Reorder(ctx context.Context, ordered []OrderedMethod) (Summary, error) {
	var sum Summary
	for _, m := range ordered {
		strong, ok := m.Ref.Promote()
		if !ok {
			// Unloaded holder: a recoverable condition, not an error —
			// skip this method and keep walking the rest of the order.
			sum.Skipped++
			if d.metrics != nil {
				d.metrics.CompileTasksSkipped.Inc()
			}
			continue
		}

		key := m.Key
		d.current.Store(&key)
		sum.Attempted++

		task := hostiface.CompileTaskInfo{
			Method:    strong,
			OSRBCI:    hostiface.InvocationEntryBCI,
			CompLevel: d.preservedCompLevel(key),
			Reason:    hostiface.CompileReasonReorder,
		}

		handle, err := d.broker.Enqueue(ctx, task)
		if err != nil {
			strong.Release()
			d.log.Warn("enqueue failed", zap.String("method", key.Method), zap.Error(err))
			continue
		}
		outcome, err := handle.Wait(ctx)
		strong.Release()
		if err != nil {
			// Recoverable: log the failed compile task and continue.
			d.log.Warn("compile task failed", zap.String("method", key.Method), zap.Error(err))
			continue
		}
		if outcome.Skipped {
			sum.Skipped++
			if d.metrics != nil {
				d.metrics.CompileTasksSkipped.Inc()
			}
			continue
		}

		if want := d.segments.Primary().ID; outcome.SegmentID != want {
			sum.Mismatched++
			if d.metrics != nil {
				d.metrics.RoutingMismatches.Inc()
			}
			d.log.Warn("compiled method placed in unexpected segment",
				zap.String("method", key.Method),
				zap.Int32("want_segment", want),
				zap.Int32("got_segment", outcome.SegmentID))
		}
	}
	d.current.Store(nil)
	return sum, nil
}

func (d *Driver) preservedCompLevel(key methodkey.MethodKey) int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.captured[key]; ok {
		return t.CompLevel
	}
	return 0
}

// Evacuate drains the post-clear step: for every live method still
// resident in the (now-secondary) former-primary segment, enqueue a
// recompile back to its default location. Unlike Reorder, no single
// "current-reordering method" constraint applies, so up to maxConcurrent
// evacuation tasks are enqueued and waited on concurrently.
func (d *Driver) Evacuate(ctx context.Context, live []hostiface.MethodRef, maxConcurrent int64) error {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	sem := semaphore.NewWeighted(maxConcurrent)
	g, ctx := errgroup.WithContext(ctx)

	for _, ref := range live {
		ref := ref
		if err := sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("recompile: acquiring evacuation slot: %w", err)
		}
		g.Go(func() error {
			defer sem.Release(1)
			strong, ok := ref.Promote()
			if !ok {
				if d.metrics != nil {
					d.metrics.CompileTasksSkipped.Inc()
				}
				return nil
			}
			defer strong.Release()

			task := hostiface.CompileTaskInfo{
				Method: strong,
				OSRBCI: hostiface.InvocationEntryBCI,
				Reason: hostiface.CompileReasonEvacuate,
			}
			handle, err := d.broker.Enqueue(ctx, task)
			if err != nil {
				d.log.Warn("evacuation enqueue failed", zap.Error(err))
				return nil
			}
			if _, err := handle.Wait(ctx); err != nil {
				d.log.Warn("evacuation compile failed", zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}
