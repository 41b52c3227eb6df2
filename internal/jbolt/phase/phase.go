// Package phase implements the atomic, CAS-only phase state machine: the
// single source of truth that the sampler, compiler-thread hook, and
// control thread all consult to decide whether ingestion or
// recompile-routing is currently permitted.
//
// Every transition is a single atomic compare-and-swap, giving ingestion's
// phase reads acquire semantics and the control thread's phase writes
// release semantics for free — the same acquire/release discipline
// wazero's engine.mux guards pair around shared compiled-module state,
// generalized here from a mutex to a lock-free CAS word since a phase
// change is a single value transition, not a multi-field update.
package phase

import (
	"fmt"
	"sync/atomic"
)

// Phase is one of the states a control loop steps through.
type Phase int32

const (
	Available Phase = iota
	Collecting
	Profiling
	Waiting
	Reordering
	End
)

func (p Phase) String() string {
	switch p {
	case Available:
		return "Available"
	case Collecting:
		return "Collecting"
	case Profiling:
		return "Profiling"
	case Waiting:
		return "Waiting"
	case Reordering:
		return "Reordering"
	case End:
		return "End"
	default:
		return fmt.Sprintf("Phase(%d)", int32(p))
	}
}

// Mode selects which transition table is legal for a State's lifetime:
// auto mode may enter Profiling; manual-load mode may enter Collecting.
// Only one is ever legal for a given State — a State built with one mode
// can never transition through the other mode's phases.
type Mode int32

const (
	ModeAuto Mode = iota
	ModeManualLoad
)

// legal lists every transition each mode permits, keyed by mode. A
// transition attempted outside this table is always rejected.
var legal = map[Mode]map[Phase][]Phase{
	ModeAuto: {
		Available:  {Profiling},
		Profiling:  {Waiting, Available},
		Waiting:    {Reordering, Available},
		Reordering: {Available},
	},
	ModeManualLoad: {
		Available:  {Collecting},
		Collecting: {Reordering},
		Reordering: {End},
	},
}

// State is the live phase word plus the mode fixed for its lifetime.
type State struct {
	mode Mode
	v    atomic.Int32
}

// New returns a State initialized to Available for the given mode.
func New(mode Mode) *State {
	s := &State{mode: mode}
	s.v.Store(int32(Available))
	return s
}

// Mode reports the mode this State was constructed with.
func (s *State) Mode() Mode { return s.mode }

// Load reads the current phase with acquire semantics.
func (s *State) Load() Phase { return Phase(s.v.Load()) }

// TransitionError reports a CAS transition that is never permitted at all
// (a programming error, not a race) versus one that lost a race against a
// concurrent writer (the caller must re-read and retry).
type TransitionError struct {
	From, To Phase
	Mode     Mode
	Observed Phase
	// Illegal is true when (mode, From, To) is not in the permitted-transition
	// table at all — a caller bug, not a race.
	Illegal bool
}

func (e *TransitionError) Error() string {
	if e.Illegal {
		return fmt.Sprintf("phase: %s->%s is not a permitted transition in mode %d", e.From, e.To, e.Mode)
	}
	return fmt.Sprintf("phase: CAS %s->%s failed: observed %s", e.From, e.To, e.Observed)
}

// Transition attempts a single CAS from 'from' to 'to'. It returns a
// *TransitionError with Illegal=true if the transition is not in the
// permitted table regardless of current state — callers should treat this
// as a programming error, though this package leaves the panic/abort
// decision to the caller rather than panicking itself. It returns a
// *TransitionError with Illegal=false if the CAS lost a race; the caller
// must re-read Load() and decide whether to retry.
func (s *State) Transition(from, to Phase) error {
	if !s.permitted(from, to) {
		return &TransitionError{From: from, To: to, Mode: s.mode, Illegal: true}
	}
	if !s.v.CompareAndSwap(int32(from), int32(to)) {
		return &TransitionError{From: from, To: to, Mode: s.mode, Observed: s.Load()}
	}
	return nil
}

func (s *State) permitted(from, to Phase) bool {
	for _, candidate := range legal[s.mode][from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// IngestionAllowed reports whether the sample ingestor may mutate the call
// graph in the current phase: true iff phase is Profiling or Waiting.
func (s *State) IngestionAllowed() bool {
	switch s.Load() {
	case Profiling, Waiting:
		return true
	default:
		return false
	}
}

// RoutingAllowed reports whether the code-placement hook may route a
// freshly compiled nmethod into the primary hot segment in the current
// phase: true iff phase is Collecting or Reordering.
func (s *State) RoutingAllowed() bool {
	switch s.Load() {
	case Collecting, Reordering:
		return true
	default:
		return false
	}
}
