// Package segment implements the hot-segment manager: two equally sized
// code-heap segments carved from the non-profiled code-cache region,
// rotated primary/secondary between reorder cycles.
//
// The reserve/evacuate shape follows internal/platform's
// MmapCodeSegment/MunmapCodeSegment pairing that wazevo's engine.go uses to
// carve one executable mapping per compiled module
// (internal/engine/wazevo/engine.go's mmapExecutable); here it is
// generalized to two long-lived, named logical segments that are rotated
// rather than one mapping per module.
package segment

import (
	"fmt"
	"sync/atomic"

	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/hostiface"
)

// Name identifies one of the two hot segments by its current role, not its
// identity — the role flips on every Swap.
type Name int

const (
	Primary Name = iota
	Secondary
)

func (n Name) String() string {
	if n == Primary {
		return "primary"
	}
	return "secondary"
}

// Segment is one reserved hot code-heap segment.
type Segment struct {
	ID            int32
	CapacityBytes int64
	// OccupiedBytes tracks how much of CapacityBytes has been claimed by
	// methods routed into this segment so far in the current cycle.
	OccupiedBytes int64
}

// Occupancy reports how many bytes are used out of this segment's
// capacity, for the code-cache occupancy diagnostic the original tracks
// for its PrintCodeCache dcmd.
func (s Segment) Occupancy() (used, capacity int64) {
	return s.OccupiedBytes, s.CapacityBytes
}

// Manager owns the segment-selector pair: two atomically swapped segment
// identities, named "A" and "B", with the roles primary/secondary assigned
// to whichever underlying Segment index the selector currently points at.
//
// Manager itself only tracks bookkeeping (capacity, occupancy, the
// primary/secondary selector); it delegates the actual address-range
// reservation to a hostiface.CodeCacheAllocator supplied at construction.
type Manager struct {
	allocator hostiface.CodeCacheAllocator

	segA, segB Segment
	// primaryIsA is 1 when segA is currently primary, 0 when segB is.
	// Stored as an atomic so Primary()/Secondary() never race a concurrent
	// Swap — the segment selectors are the only shared JBolt-owned
	// resource updated from multiple threads, and are always accessed
	// atomically.
	primaryIsA atomic.Bool
}

// NewManager returns a Manager with no segments reserved yet. Call
// Reserve before the first cycle.
func NewManager(allocator hostiface.CodeCacheAllocator) *Manager {
	m := &Manager{allocator: allocator}
	m.primaryIsA.Store(true)
	return m
}

// Reserve asks the allocator for two sizeBytes segments, one per logical
// slot ("A", "B"). It may be called again on a later cycle to resize both
// segments; existing occupancy bookkeeping is reset.
func (m *Manager) Reserve(sizeBytes int64) error {
	idA, actualA, err := m.allocator.ReserveSegment("jbolt-hot-a", sizeBytes)
	if err != nil {
		return fmt.Errorf("segment: reserving hot-a: %w", err)
	}
	idB, actualB, err := m.allocator.ReserveSegment("jbolt-hot-b", sizeBytes)
	if err != nil {
		return fmt.Errorf("segment: reserving hot-b: %w", err)
	}
	m.segA = Segment{ID: idA, CapacityBytes: actualA}
	m.segB = Segment{ID: idB, CapacityBytes: actualB}
	return nil
}

// Primary returns the segment currently playing the primary role: the
// target of the reordering step now in progress.
func (m *Manager) Primary() Segment {
	if m.primaryIsA.Load() {
		return m.segA
	}
	return m.segB
}

// Secondary returns the segment currently playing the secondary role: the
// prior primary, now being evacuated by the control thread's post-clear
// step.
func (m *Manager) Secondary() Segment {
	if m.primaryIsA.Load() {
		return m.segB
	}
	return m.segA
}

// Swap flips the primary/secondary roles and resets the new primary's
// occupancy so the next reorder starts from an empty segment.
func (m *Manager) Swap() {
	m.primaryIsA.Store(!m.primaryIsA.Load())
	if m.primaryIsA.Load() {
		m.segA.OccupiedBytes = 0
	} else {
		m.segB.OccupiedBytes = 0
	}
}

// ClaimPrimary records sizeBytes as newly occupied in the current primary
// segment, returning the shortfall (0 if it fit) so the caller can warn
// about the shortfall and proceed to reorder as much as fits, rather than
// failing the cycle outright.
func (m *Manager) ClaimPrimary(sizeBytes int64) (shortfall int64) {
	if m.primaryIsA.Load() {
		return claim(&m.segA, sizeBytes)
	}
	return claim(&m.segB, sizeBytes)
}

func claim(seg *Segment, sizeBytes int64) int64 {
	remaining := seg.CapacityBytes - seg.OccupiedBytes
	if sizeBytes <= remaining {
		seg.OccupiedBytes += sizeBytes
		return 0
	}
	shortfall := sizeBytes - remaining
	seg.OccupiedBytes = seg.CapacityBytes
	return shortfall
}
