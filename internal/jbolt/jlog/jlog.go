// Package jlog is a thin zap wrapper giving every JBolt subsystem a named
// child logger, grounded on Voskan/arena-cache's use of zap for a
// cache/eviction subsystem's structured logs — the pack's clearest
// precedent for per-component zap.Logger fields rather than one global
// logger threaded everywhere.
package jlog

import "go.uber.org/zap"

// Named subsystem tags used as the "component" field on every log line a
// subsystem emits, so operators can filter a single cycle's logs by stage.
const (
	Control   = "control"
	Recompile = "recompile"
	Sampler   = "sampler"
	Segment   = "segment"
	OrderFile = "orderfile"
	Operator  = "operator"
)

// New builds a logger for component, derived from base. A nil base falls
// back to zap.NewNop() so that callers who don't wire a logger (tests,
// standalone package use) never panic on a nil receiver.
func New(base *zap.Logger, component string) *zap.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return base.With(zap.String("component", component))
}
