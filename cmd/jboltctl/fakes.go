package main

import (
	"context"
	"sync/atomic"

	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/hostiface"
)

// The types below are minimal in-process stand-ins for the external
// collaborators a real host runtime supplies, so jboltctl can demonstrate
// the operator-command surface without a real JVM attached.

type demoBroker struct{ nextSegment int32 }

func newDemoBroker() *demoBroker { return &demoBroker{nextSegment: 1} }

func (b *demoBroker) Enqueue(ctx context.Context, task hostiface.CompileTaskInfo) (hostiface.CompileHandle, error) {
	return demoHandle{outcome: hostiface.CompileOutcome{SegmentID: b.nextSegment}}, nil
}

type demoHandle struct{ outcome hostiface.CompileOutcome }

func (h demoHandle) Wait(ctx context.Context) (hostiface.CompileOutcome, error) {
	return h.outcome, nil
}

type demoAllocator struct{ next atomic.Int32 }

func newDemoAllocator() *demoAllocator { return &demoAllocator{} }

func (a *demoAllocator) ReserveSegment(name string, sizeBytes int64) (int32, int64, error) {
	return a.next.Add(1), sizeBytes, nil
}

type demoSweeper struct{}

func newDemoSweeper() *demoSweeper { return &demoSweeper{} }

func (demoSweeper) ListLive(segmentID int32) ([]hostiface.MethodRef, error) { return nil, nil }
func (demoSweeper) Sweep() error                                           { return nil }

type demoSampler struct{}

func newDemoSampler() *demoSampler { return &demoSampler{} }

func (demoSampler) Start(ctx context.Context) error { return nil }
func (demoSampler) Stop(ctx context.Context) error  { return nil }
