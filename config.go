package jbolt

import (
	"fmt"
	"time"
)

// Config holds the immutable, process-start configuration flags. Build one
// with NewConfig and the With* methods, mirroring wazero's RuntimeConfig
// builder (config.go's WithMemoryMaxPages and friends): each With* mutates
// and returns the same *Config so calls chain, rather than threading
// functional options through a slice.
type Config struct {
	// UseJBolt is the master enable flag, default false.
	UseJBolt bool
	// DumpMode and LoadMode are mutually exclusive; if neither is set,
	// JBolt runs in auto mode.
	DumpMode bool
	LoadMode bool
	// OrderFile is required when DumpMode or LoadMode is set.
	OrderFile string
	// SampleInterval is the auto-mode sampling window length, default
	// 600s, range [0, math.MaxInt32] seconds.
	SampleInterval time.Duration
	// CodeHeapSizeBytes is the size of EACH hot segment, default 8 MiB.
	CodeHeapSizeBytes int64
	// SegmentGrain is the padding granularity the order-file sizing pass
	// rounds method sizes up to.
	SegmentGrain int64
	// PostClearSweeps is how many times post-clear force-sweeps the code
	// cache; see SPEC_FULL.md §6 for the reasoning behind the default.
	PostClearSweeps int
	// ReorderThreshold gates when manual-load mode has observed enough hot
	// methods to begin reordering, default 0.8.
	ReorderThreshold float64
	// MaxEvacuateConcurrency bounds concurrent post-clear evacuation
	// compiles.
	MaxEvacuateConcurrency int64
}

const (
	defaultSampleInterval  = 600 * time.Second
	defaultCodeHeapSize    = 8 << 20
	defaultSegmentGrain    = 4096
	defaultPostClearSweeps = 3
	defaultReorderThresh   = 0.8
	defaultMaxEvacuate     = 4
)

// NewConfig returns a Config with UseJBolt=false (auto mode, disabled) and
// every other field at its documented default.
func NewConfig() *Config {
	return &Config{
		SampleInterval:         defaultSampleInterval,
		CodeHeapSizeBytes:      defaultCodeHeapSize,
		SegmentGrain:           defaultSegmentGrain,
		PostClearSweeps:        defaultPostClearSweeps,
		ReorderThreshold:       defaultReorderThresh,
		MaxEvacuateConcurrency: defaultMaxEvacuate,
	}
}

// WithUseJBolt sets the master enable flag.
func (c *Config) WithUseJBolt(enabled bool) *Config {
	c.UseJBolt = enabled
	return c
}

// WithDumpMode switches to dump mode: the auto-mode sampling cycle keeps
// repeating, and every completed cycle also writes its computed order to
// OrderFile. Mutually exclusive with WithLoadMode.
func (c *Config) WithDumpMode(orderFile string) *Config {
	c.DumpMode = true
	c.LoadMode = false
	c.OrderFile = orderFile
	return c
}

// WithLoadMode switches to manual load mode: read a previously dumped
// OrderFile and reorder from it directly, skipping sampling. Mutually
// exclusive with WithDumpMode.
func (c *Config) WithLoadMode(orderFile string) *Config {
	c.LoadMode = true
	c.DumpMode = false
	c.OrderFile = orderFile
	return c
}

// WithSampleInterval overrides the default auto-mode window length.
func (c *Config) WithSampleInterval(d time.Duration) *Config {
	c.SampleInterval = d
	return c
}

// WithCodeHeapSize overrides the size of each hot segment.
func (c *Config) WithCodeHeapSize(bytes int64) *Config {
	c.CodeHeapSizeBytes = bytes
	return c
}

// WithPostClearSweeps overrides how many times post-clear sweeps the code
// cache.
func (c *Config) WithPostClearSweeps(n int) *Config {
	c.PostClearSweeps = n
	return c
}

// WithReorderThreshold overrides the manual-load-mode reorder threshold
// fraction.
func (c *Config) WithReorderThreshold(frac float64) *Config {
	c.ReorderThreshold = frac
	return c
}

// ConfigError is a fatal startup configuration error: conflicting flags,
// a missing required order file, or misaligned heap sizes.
type ConfigError struct {
	Detail string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("jbolt: configuration error: %s", e.Detail) }

// Validate checks the invariants required before JBolt can start: DumpMode
// and LoadMode are mutually exclusive, either one requires OrderFile, and
// sizes must be positive and page-aligned.
func (c *Config) Validate() error {
	if c.DumpMode && c.LoadMode {
		return &ConfigError{"DumpMode and LoadMode are mutually exclusive"}
	}
	if (c.DumpMode || c.LoadMode) && c.OrderFile == "" {
		return &ConfigError{"OrderFile is required in manual modes"}
	}
	if c.SampleInterval < 0 {
		return &ConfigError{"SampleInterval must be >= 0"}
	}
	if c.CodeHeapSizeBytes <= 0 {
		return &ConfigError{"CodeHeapSizeBytes must be positive"}
	}
	if c.SegmentGrain > 0 && c.CodeHeapSizeBytes%c.SegmentGrain != 0 {
		return &ConfigError{"CodeHeapSizeBytes must be a multiple of SegmentGrain"}
	}
	if c.ReorderThreshold <= 0 || c.ReorderThreshold > 1 {
		return &ConfigError{"ReorderThreshold must be in (0, 1]"}
	}
	return nil
}

// usesManualLoadPhase reports whether the phase state machine should be
// constructed in phase.ModeManualLoad. DumpMode still drives the
// Available→Profiling→Waiting→Reordering auto-mode pipeline (it only adds
// an order-file write at the end of each cycle); only LoadMode skips sampling entirely in
// favor of the Collecting phase's read-the-order-file-and-compile walk.
func (c *Config) usesManualLoadPhase() bool {
	return c.LoadMode
}
