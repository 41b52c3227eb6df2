package jbolt

import (
	"context"
	"time"

	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/control"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/graph"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/hfsort"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/jlog"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/metrics"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/methodkey"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/phase"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/recompile"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/segment"
)

// JBolt is the process-wide context, replacing the original's ambient
// static pointers: it owns the current CallGraph, the phase state machine,
// the segment manager, and the control-thread handle, with lifetime tied
// to New/Run rather than process startup/shutdown globals.
//
// New picks the Controller's run path from cfg's mode. An auto-mode (or
// DumpMode) Config drives the repeating
// Available→Profiling→Waiting→Reordering→Available cycle; DumpMode also
// sets control.Config.DumpOrderFile from Config.OrderFile, so every
// cycle's reorder step writes the order to that path in addition to
// holding it in memory for Dump. A LoadMode Config instead drives the
// one-shot Available→Collecting→Reordering→End path: New sets
// control.Config.LoadOrderFile from Config.OrderFile, and the Controller
// reads it, marks its entries as the hot set, waits for the recompile
// driver to observe enough of them recompiled at top tier, then reorders
// them into the primary hot segment.
type JBolt struct {
	cfg  *Config
	col  *Collaborators
	ph   *phase.State
	g    *graph.CallGraph
	segs *segment.Manager

	Driver     *recompile.Driver
	Controller *control.Controller
	Metrics    *metrics.Collectors
}

// New validates cfg and col, wires every subsystem together, and returns a
// ready-to-Run JBolt. It never starts the control-thread goroutine itself;
// call Run for that.
func New(cfg *Config, col *Collaborators) (*JBolt, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := col.Validate(); err != nil {
		return nil, err
	}

	mode := phase.ModeAuto
	if cfg.usesManualLoadPhase() {
		mode = phase.ModeManualLoad
	}
	ph := phase.New(mode)

	interner := methodkey.NewInterner()
	g := graph.New(interner)

	segs := segment.NewManager(col.Allocator)

	collectors := metrics.NewCollectors("jbolt")

	driver := recompile.New(col.Broker, segs, ph, collectors, col.Logger, cfg.ReorderThreshold)

	ctrlCfg := control.Config{
		Interval:               cfg.SampleInterval,
		CodeHeapSizeBytes:      cfg.CodeHeapSizeBytes,
		SegmentGrain:           cfg.SegmentGrain,
		PostClearSweeps:        cfg.PostClearSweeps,
		HFSortPolicy:           hfsort.DefaultPolicy(),
		MaxEvacuateConcurrency: cfg.MaxEvacuateConcurrency,
	}
	if cfg.DumpMode {
		ctrlCfg.DumpOrderFile = cfg.OrderFile
	}
	if cfg.usesManualLoadPhase() {
		ctrlCfg.LoadOrderFile = cfg.OrderFile
	}
	controller := control.New(ctrlCfg, ph, g, segs, driver, col.Sweeper, col.Sampler, collectors, col.Logger)

	return &JBolt{
		cfg:        cfg,
		col:        col,
		ph:         ph,
		g:          g,
		segs:       segs,
		Driver:     driver,
		Controller: controller,
		Metrics:    collectors,
	}, nil
}

// Run starts the control thread and blocks until it finishes: in auto
// mode that means until ctx is cancelled (one long-lived goroutine for the
// process's lifetime); in LoadMode, Run returns once the one-shot
// Collecting→Reordering→End walk completes. Callers typically invoke it
// in its own goroutine.
func (j *JBolt) Run(ctx context.Context) error {
	return j.Controller.Run(ctx)
}

// Phase reports the current phase, for diagnostics and tests.
func (j *JBolt) Phase() phase.Phase { return j.ph.Load() }

// Graph exposes the live CallGraph so an external sample-ingestion loop
// can feed it; the stack-sampling subsystem itself is out of scope here,
// JBolt only gates whether ingestion is currently permitted.
func (j *JBolt) Graph() *graph.CallGraph { return j.g }

// IngestionAllowed reports whether the sample ingestor may currently
// mutate Graph().
func (j *JBolt) IngestionAllowed() bool { return j.ph.IngestionAllowed() }

// Start issues the operator "start" command. duration<=0 uses
// Config.SampleInterval.
func (j *JBolt) Start(duration time.Duration) error { return j.Controller.Start(duration) }

// Stop issues the operator "stop" command.
func (j *JBolt) Stop() error { return j.Controller.Stop() }

// Abort issues the operator "abort" command.
func (j *JBolt) Abort() error { return j.Controller.Abort() }

// Dump issues the operator "dump" command, writing the last computed
// order to path.
func (j *JBolt) Dump(path string) error { return j.Controller.Dump(path) }
