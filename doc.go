// Package jbolt is a profile-guided code-layout subsystem for a
// managed-code runtime. It clusters frequently co-executing compiled
// methods using a density-driven HFSort variant, derived from sampled
// call stacks, and drives the host's JIT compiler to re-emit those
// methods into a dedicated, contiguous hot segment of the native code
// cache for better instruction-fetch locality.
//
// The call-graph accumulator and HFSort engine live in
// internal/jbolt/graph and internal/jbolt/hfsort; the phase state machine
// and control thread that sequence a full cycle live in
// internal/jbolt/phase and internal/jbolt/control; the reordering executor
// lives in internal/jbolt/recompile and internal/jbolt/segment. The root
// package wires these into a single JBolt value and exposes the
// operator-command surface (Start/Stop/Abort/Dump).
//
// The stack-sampling subsystem, the compiler broker, the code-cache
// allocator/sweeper, and the operator-command transport itself are
// external collaborators: see internal/jbolt/hostiface for the interfaces
// a host runtime must implement.
package jbolt
