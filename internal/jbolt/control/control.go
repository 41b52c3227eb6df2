// Package control implements the control thread: the single long-lived
// worker that drives a full cycle (pre-clear, sampling window, HFSort,
// segment swap, reorder, post-clear) in auto mode, a one-shot
// load-and-reorder pass in manual-load mode, and the operator dispatch
// surface (start/stop/abort/dump).
//
// The condition-variable-plus-CAS-signal-word design is expressed here
// with two notification channels instead of sync.Cond: a channel send is
// non-blocking wakeup without spurious-wakeup bookkeeping, and
// select-with-timer gives the "wait up to interval seconds, or until
// interrupted" step its natural Go shape. The signal word itself is still
// a CAS-guarded atomic.
package control

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/graph"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/hfsort"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/hostiface"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/jlog"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/methodkey"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/metrics"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/orderfile"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/phase"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/recompile"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/segment"
)

// signal values for the CAS-guarded signal word ("SIG_START_PROFILING",
// "SIG_STOP_PROFILING" in the original).
const (
	sigNone int32 = iota
	sigStart
	sigStop
)

// Config holds the immutable, process-start configuration the control
// thread needs.
type Config struct {
	// Interval is the default auto-mode sampling window length (default
	// 600s).
	Interval time.Duration
	// CodeHeapSizeBytes is the size of each hot segment (default 8 MiB).
	CodeHeapSizeBytes int64
	// SegmentGrain is the padding granularity orderfile.Scan rounds method
	// sizes up to when sizing a segment.
	SegmentGrain int64
	// PostClearSweeps is how many times post-clear force-sweeps the code
	// cache. The original hard-codes this to three with no documented
	// quiescence condition; this implementation keeps the count
	// configurable instead, defaulting to the original's 3.
	PostClearSweeps int
	// HFSortPolicy configures the clustering engine for every cycle.
	HFSortPolicy hfsort.Policy
	// MaxEvacuateConcurrency bounds how many post-clear evacuation compiles
	// run at once (recompile.Driver.Evacuate).
	MaxEvacuateConcurrency int64
	// DumpOrderFile, when non-empty, makes every completed auto-mode cycle
	// write its freshly computed order to this path in addition to holding
	// it in memory for a later "dump" operator command. Empty disables the
	// write.
	DumpOrderFile string
	// LoadOrderFile is the order file a manual-load-mode Controller reads
	// at startup: the method list it reorders into the primary hot
	// segment, skipping sampling entirely. Required when the Controller's
	// phase.State was built with phase.ModeManualLoad; ignored otherwise.
	LoadOrderFile string
}

// DefaultConfig returns the control thread's default configuration.
func DefaultConfig() Config {
	return Config{
		Interval:               600 * time.Second,
		CodeHeapSizeBytes:      8 << 20,
		SegmentGrain:           4096,
		PostClearSweeps:        3,
		HFSortPolicy:           hfsort.DefaultPolicy(),
		MaxEvacuateConcurrency: 4,
	}
}

// Controller owns the phase state machine, the per-cycle CallGraph, the
// segment manager, and the recompile driver, and is the sole goroutine
// that advances phase transitions once Run is started.
type Controller struct {
	cfg Config
	log *zap.Logger

	ph       *phase.State
	g        *graph.CallGraph
	segments *segment.Manager
	driver   *recompile.Driver
	sweeper  hostiface.CodeCacheSweeper
	sampler  hostiface.StackSampler
	metrics  *metrics.Collectors

	signal      atomic.Int32
	abortFlag   atomic.Bool
	startNotify chan struct{}
	stopNotify  chan struct{}

	intervalOverride atomic.Int64 // nanoseconds; 0 means "use cfg.Interval"

	cycles       int
	lastOrder    []hfsort.Entry
	lastOrderSet bool
}

// New builds a Controller whose Run behavior follows ph's mode: auto mode
// drives the repeating Available→Profiling→Waiting→Reordering→Available
// cycle; manual-load mode drives a single
// Available→Collecting→Reordering→End pass over cfg.LoadOrderFile.
func New(cfg Config, ph *phase.State, g *graph.CallGraph, segments *segment.Manager, driver *recompile.Driver, sweeper hostiface.CodeCacheSweeper, sampler hostiface.StackSampler, collectors *metrics.Collectors, logger *zap.Logger) *Controller {
	return &Controller{
		cfg:         cfg,
		log:         jlog.New(logger, jlog.Control),
		ph:          ph,
		g:           g,
		segments:    segments,
		driver:      driver,
		sweeper:     sweeper,
		sampler:     sampler,
		metrics:     collectors,
		startNotify: make(chan struct{}, 1),
		stopNotify:  make(chan struct{}, 1),
	}
}

// Start signals a start request: rejected with an error if phase is not
// Available. duration<=0 falls back to cfg.Interval. Only meaningful in
// auto mode; manual-load mode begins its one-shot pass as soon as Run is
// called and never waits on this signal.
func (c *Controller) Start(duration time.Duration) error {
	if c.ph.Load() != phase.Available {
		return busyError{"start"}
	}
	if !c.signal.CompareAndSwap(sigNone, sigStart) {
		return busyError{"start"}
	}
	if duration > 0 {
		c.intervalOverride.Store(int64(duration))
	} else {
		c.intervalOverride.Store(0)
	}
	notify(c.startNotify)
	return nil
}

// Stop signals a stop request with abort=false: rejected unless phase is
// Profiling.
func (c *Controller) Stop() error {
	return c.signalStop(false)
}

// Abort signals a stop request with abort=true: rejected unless phase is
// Profiling.
func (c *Controller) Abort() error {
	return c.signalStop(true)
}

func (c *Controller) signalStop(abort bool) error {
	if c.ph.Load() != phase.Profiling {
		return busyError{"stop"}
	}
	if !c.signal.CompareAndSwap(sigNone, sigStop) {
		return busyError{"stop"}
	}
	c.abortFlag.Store(abort)
	notify(c.stopNotify)
	return nil
}

// Dump writes the last computed order to path: fails with OrderNull if no
// order has ever been computed.
func (c *Controller) Dump(path string) error {
	if !c.lastOrderSet {
		return &OrderNullError{}
	}
	return writeOrderFile(path, c.lastOrder)
}

// writeOrderFile creates (or overwrites, with a warning left to the
// caller) path and writes order to it in orderfile grammar.
func writeOrderFile(path string, order []hfsort.Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return &OpenFileError{Path: path, Err: err}
	}
	defer f.Close()
	return orderfile.Write(f, order)
}

// busyError is the "busy" reply to an operator command issued in the
// wrong phase.
type busyError struct{ cmd string }

func (e busyError) Error() string { return fmt.Sprintf("jbolt: %s rejected: busy", e.cmd) }

// OrderNullError is the dump command's failure when no order has ever
// been computed.
type OrderNullError struct{}

func (e *OrderNullError) Error() string { return "jbolt: dump failed: OrderNull" }

// OpenFileError is the dump command's failure when the destination path
// cannot be created.
type OpenFileError struct {
	Path string
	Err  error
}

func (e *OpenFileError) Error() string {
	return fmt.Sprintf("jbolt: dump failed: OpenFileError: %s: %v", e.Path, e.Err)
}

func (e *OpenFileError) Unwrap() error { return e.Err }

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Run drives the control thread until ctx is cancelled. In auto mode it
// repeats cycles; in manual-load mode it runs exactly one
// Collecting→Reordering→End pass and returns.
func (c *Controller) Run(ctx context.Context) error {
	if c.ph.Mode() == phase.ModeManualLoad {
		return c.runManualLoad(ctx)
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := c.runCycle(ctx); err != nil {
			return err
		}
		c.cycles++
	}
}

func (c *Controller) runCycle(ctx context.Context) error {
	// Pre-clear: wipe the call-graph store on second and later cycles.
	if c.cycles > 0 {
		c.g.Reset()
	}

	// Wait for a start signal while Available, then transition.
	if err := c.awaitStart(ctx); err != nil {
		return err
	}
	cycleStart := time.Now()
	mustTransition(c.ph, phase.Available, phase.Profiling)
	if c.sampler != nil {
		if err := c.sampler.Start(ctx); err != nil {
			c.log.Warn("sampler start failed", zap.Error(err))
		}
	}

	interval := c.cfg.Interval
	if ov := c.intervalOverride.Load(); ov > 0 {
		interval = time.Duration(ov)
	}
	c.signal.Store(sigNone)
	select {
	case <-c.stopNotify:
	case <-time.After(interval):
	case <-ctx.Done():
		return nil
	}

	// Profiling -> Waiting; stop the sampler.
	mustTransition(c.ph, phase.Profiling, phase.Waiting)
	if c.sampler != nil {
		if err := c.sampler.Stop(ctx); err != nil {
			c.log.Warn("sampler stop failed", zap.Error(err))
		}
	}
	if c.abortFlag.Load() {
		c.abortFlag.Store(false)
		c.signal.Store(sigNone)
		mustTransition(c.ph, phase.Waiting, phase.Available)
		if c.metrics != nil {
			c.metrics.CycleDuration.Observe(time.Since(cycleStart).Seconds())
		}
		return nil
	}

	// Run HFSort over the collected graph.
	funcs, calls, clusters := c.g.Snapshot()
	order := hfsort.Sort(funcs, calls, clusters, c.cfg.HFSortPolicy)
	ordered := joinOrderWithFuncs(order, funcs)
	if c.metrics != nil {
		// order[0] is always the leading sentinel (no cluster closed yet,
		// Density unset); every later sentinel closes a cluster and carries
		// that cluster's heat/size density (hfsort.Entry.Density).
		for _, e := range order[1:] {
			if e.Sentinel {
				c.metrics.ClusterDensity.Observe(e.Density)
			}
		}
	}

	// Size/reserve the primary segment.
	if err := c.segments.Reserve(c.cfg.CodeHeapSizeBytes); err != nil {
		c.log.Warn("segment reservation failed", zap.Error(err))
	}

	// Swap primary/secondary (from the second cycle on), so the sizes below
	// are claimed against the segment this cycle's reorder fills.
	if c.cycles > 0 {
		c.segments.Swap()
	}

	var totalShortfall int64
	for _, m := range ordered {
		totalShortfall += c.segments.ClaimPrimary(int64(m.Size))
	}
	if totalShortfall > 0 {
		c.log.Warn("hot-method set exceeds configured segment size; reordering as much as fits",
			zap.Int64("shortfall", totalShortfall))
	}

	// Waiting -> Reordering; clear signal; reorder.
	mustTransition(c.ph, phase.Waiting, phase.Reordering)
	c.signal.Store(sigNone)
	sum, err := c.driver.Reorder(ctx, ordered)
	if err != nil {
		c.log.Warn("reorder walk ended with an error", zap.Error(err))
	} else {
		c.log.Info("reorder complete", zap.Int("attempted", sum.Attempted), zap.Int("skipped", sum.Skipped), zap.Int("mismatched", sum.Mismatched))
	}
	c.lastOrder = order
	c.lastOrderSet = true
	if c.cfg.DumpOrderFile != "" {
		if err := writeOrderFile(c.cfg.DumpOrderFile, order); err != nil {
			c.log.Warn("dump-mode order file write failed", zap.String("path", c.cfg.DumpOrderFile), zap.Error(err))
		}
	}
	c.observeOccupancy()

	// Post-clear.
	c.postClear(ctx)

	// Reordering -> Available.
	mustTransition(c.ph, phase.Reordering, phase.Available)
	if c.metrics != nil {
		c.metrics.CyclesTotal.Inc()
		c.metrics.CycleDuration.Observe(time.Since(cycleStart).Seconds())
	}
	return nil
}

// runManualLoad drives manual-load mode's single
// Available→Collecting→Reordering→End pass: it reads cfg.LoadOrderFile,
// registers the hot-method set so the code-placement hook can recognize
// and capture them as the host's ordinary tiered compilation produces
// top-tier compiles during Collecting, waits for enough of them to be
// captured, then walks the order compiling each into the primary hot
// segment exactly as an auto-mode cycle's reorder step does, before
// tearing the tables down in End.
func (c *Controller) runManualLoad(ctx context.Context) error {
	if c.cfg.LoadOrderFile == "" {
		return fmt.Errorf("control: manual-load mode requires a non-empty LoadOrderFile")
	}
	if err := ctx.Err(); err != nil {
		return nil
	}

	mustTransition(c.ph, phase.Available, phase.Collecting)

	f, err := os.Open(c.cfg.LoadOrderFile)
	if err != nil {
		return fmt.Errorf("control: opening order file: %w", err)
	}
	entries, err := orderfile.Load(f, nil)
	closeErr := f.Close()
	if err != nil {
		return fmt.Errorf("control: loading order file: %w", err)
	}
	if closeErr != nil {
		c.log.Warn("closing order file failed", zap.Error(closeErr))
	}

	var keys []methodkey.MethodKey
	for _, e := range entries {
		if !e.Sentinel {
			keys = append(keys, e.Key)
		}
	}
	c.driver.MarkHotSet(keys)

	if err := c.segments.Reserve(c.cfg.CodeHeapSizeBytes); err != nil {
		c.log.Warn("segment reservation failed", zap.Error(err))
	}

	select {
	case <-c.driver.ThresholdNotify():
	case <-ctx.Done():
		return nil
	}

	mustTransition(c.ph, phase.Collecting, phase.Reordering)

	ordered := make([]recompile.OrderedMethod, 0, len(keys))
	for _, e := range entries {
		if e.Sentinel {
			continue
		}
		ref, ok := c.driver.CapturedRef(e.Key)
		if !ok {
			// Never observed compiled at top tier during Collecting: treat
			// the same as an unloaded holder and skip it.
			continue
		}
		ordered = append(ordered, recompile.OrderedMethod{Key: e.Key, Size: e.Size, Ref: ref})
	}

	sum, err := c.driver.Reorder(ctx, ordered)
	if err != nil {
		c.log.Warn("manual-load reorder walk ended with an error", zap.Error(err))
	} else {
		c.log.Info("manual-load reorder complete", zap.Int("attempted", sum.Attempted), zap.Int("skipped", sum.Skipped), zap.Int("mismatched", sum.Mismatched))
	}
	c.lastOrder = entriesFromOrderFile(entries)
	c.lastOrderSet = true
	c.observeOccupancy()

	c.postClear(ctx)
	c.g.Reset()
	c.driver.MarkHotSet(nil)

	mustTransition(c.ph, phase.Reordering, phase.End)
	if c.metrics != nil {
		c.metrics.CyclesTotal.Inc()
	}
	return nil
}

// observeOccupancy publishes the primary and secondary segments' used-byte
// counts to the segment-occupancy gauge.
func (c *Controller) observeOccupancy() {
	if c.metrics == nil {
		return
	}
	used, _ := c.segments.Primary().Occupancy()
	c.metrics.SegmentOccupancy.WithLabelValues("primary").Set(float64(used))
	used, _ = c.segments.Secondary().Occupancy()
	c.metrics.SegmentOccupancy.WithLabelValues("secondary").Set(float64(used))
}

func (c *Controller) postClear(ctx context.Context) {
	if c.sweeper == nil {
		return
	}
	live, err := c.sweeper.ListLive(c.segments.Secondary().ID)
	if err != nil {
		c.log.Warn("listing live methods in secondary segment failed", zap.Error(err))
	} else if len(live) > 0 {
		if err := c.driver.Evacuate(ctx, live, c.cfg.MaxEvacuateConcurrency); err != nil {
			c.log.Warn("evacuation failed", zap.Error(err))
		}
	}
	sweeps := c.cfg.PostClearSweeps
	if sweeps <= 0 {
		sweeps = 3
	}
	for i := 0; i < sweeps; i++ {
		if err := c.sweeper.Sweep(); err != nil {
			c.log.Warn("code cache sweep failed", zap.Error(err))
		}
	}
}

// awaitStart blocks until a start signal arrives (from the Start
// operator command) or ctx is cancelled.
func (c *Controller) awaitStart(ctx context.Context) error {
	select {
	case <-c.startNotify:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// mustTransition performs a phase transition that the caller has already
// established is the control thread's exclusive responsibility. A
// failure here means a caller bug, not a race with an operator command —
// only the control thread ever calls this, so a failed CAS indicates a
// logic bug, not a legitimate concurrent transition.
func mustTransition(ph *phase.State, from, to phase.Phase) {
	if err := ph.Transition(from, to); err != nil {
		panic(err)
	}
}

// joinOrderWithFuncs resolves each hfsort.Entry's MethodKey back to the
// live graph.Func (and its MethodRef) that produced it, skipping
// sentinels — hfsort operates on a snapshot that carries MethodRef, but
// Entry itself only carries the durable MethodKey.
func joinOrderWithFuncs(order []hfsort.Entry, funcs []graph.Func) []recompile.OrderedMethod {
	byKey := make(map[uint64]*graph.Func, len(funcs))
	for i := range funcs {
		byKey[funcs[i].Key.Hash()] = &funcs[i]
	}

	out := make([]recompile.OrderedMethod, 0, len(order))
	for _, e := range order {
		if e.Sentinel {
			continue
		}
		f, ok := byKey[e.Key.Hash()]
		if !ok || !f.Key.Equal(e.Key) {
			continue
		}
		out = append(out, recompile.OrderedMethod{Key: e.Key, Size: e.Size, Ref: f.Ref})
	}
	return out
}

// entriesFromOrderFile converts a loaded order file's entries into the
// same hfsort.Entry shape Dump expects, so a manual-load cycle's Dump
// command can re-emit the order it just reordered from. Cluster density
// is left at its zero value: an order file carries no heat/size totals
// per cluster, only the flattened method/cluster-boundary sequence.
func entriesFromOrderFile(entries []orderfile.Entry) []hfsort.Entry {
	out := make([]hfsort.Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, hfsort.Entry{Sentinel: e.Sentinel, Key: e.Key, Size: e.Size})
	}
	return out
}
