package jbolt_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jbolt "github.com/openeuler-mirror/bishengjdk-jbolt"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/hostiface"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/methodkey"
	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/phase"
)

type nopBroker struct{}

func (nopBroker) Enqueue(ctx context.Context, task hostiface.CompileTaskInfo) (hostiface.CompileHandle, error) {
	return nopHandle{}, nil
}

type nopHandle struct{}

func (nopHandle) Wait(ctx context.Context) (hostiface.CompileOutcome, error) {
	return hostiface.CompileOutcome{}, nil
}

type nopAllocator struct{}

func (nopAllocator) ReserveSegment(name string, sizeBytes int64) (int32, int64, error) {
	return 1, sizeBytes, nil
}

func validCollaborators() *jbolt.Collaborators {
	return jbolt.NewCollaborators().WithBroker(nopBroker{}).WithAllocator(nopAllocator{})
}

type fakeRef struct {
	key methodkey.MethodKey
}

func (r *fakeRef) IsAlive() bool { return true }
func (r *fakeRef) Promote() (hostiface.StrongMethodRef, bool) {
	return &fakeStrongRef{r}, true
}
func (r *fakeRef) Identity() methodkey.MethodKey { return r.key }

type fakeStrongRef struct{ *fakeRef }

func (r *fakeStrongRef) Release() {}

func TestNew_RejectsConflictingModeFlags(t *testing.T) {
	cfg := jbolt.NewConfig()
	cfg.DumpMode = true
	cfg.LoadMode = true
	cfg.OrderFile = "x"
	_, err := jbolt.New(cfg, validCollaborators())
	require.Error(t, err)
	var cerr *jbolt.ConfigError
	assert.ErrorAs(t, err, &cerr)
}

func TestNew_RequiresOrderFileInManualModes(t *testing.T) {
	cfg := jbolt.NewConfig().WithDumpMode("")
	_, err := jbolt.New(cfg, validCollaborators())
	require.Error(t, err)
}

func TestNew_RequiresBroker(t *testing.T) {
	cfg := jbolt.NewConfig()
	_, err := jbolt.New(cfg, jbolt.NewCollaborators().WithAllocator(nopAllocator{}))
	require.Error(t, err)
}

func TestNew_SucceedsWithValidConfig(t *testing.T) {
	cfg := jbolt.NewConfig().WithUseJBolt(true)
	j, err := jbolt.New(cfg, validCollaborators())
	require.NoError(t, err)
	assert.Equal(t, phase.Available, j.Phase())
	assert.False(t, j.IngestionAllowed())
}

func TestJBolt_DumpModeWritesOrderFileEveryCycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order.txt")
	cfg := jbolt.NewConfig().WithUseJBolt(true).WithDumpMode(path)
	j, err := jbolt.New(cfg, validCollaborators())
	require.NoError(t, err)

	a := j.Graph().FindOrAddFunc(methodkey.MethodKey{Class: "p/C", Method: "A", Signature: "()V"}, 10, &fakeRef{key: methodkey.MethodKey{Class: "p/C", Method: "A", Signature: "()V"}})
	b := j.Graph().FindOrAddFunc(methodkey.MethodKey{Class: "p/C", Method: "B", Signature: "()V"}, 10, &fakeRef{key: methodkey.MethodKey{Class: "p/C", Method: "B", Signature: "()V"}})
	require.NoError(t, j.Graph().AddCall(a, b, 3, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go j.Run(ctx)

	require.Eventually(t, func() bool { return j.Start(10 * time.Millisecond) == nil }, time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		return err == nil && len(data) > 0
	}, time.Second, 5*time.Millisecond)
}

// TestJBolt_LoadModeRunCompletesWithoutPanicking exercises the documented
// public LoadMode entry point end to end: jbolt.New(cfg.WithLoadMode(path),
// col) followed by j.Run(ctx) must drive
// Available->Collecting->Reordering->End rather than panic on an illegal
// Available->Profiling transition.
func TestJBolt_LoadModeRunCompletesWithoutPanicking(t *testing.T) {
	orderPath := filepath.Join(t.TempDir(), "order.txt")
	keyA := methodkey.MethodKey{Class: "p/C", Method: "A", Signature: "()V"}
	keyB := methodkey.MethodKey{Class: "p/C", Method: "B", Signature: "()V"}
	require.NoError(t, os.WriteFile(orderPath, []byte("C\nM 10 p/C A ()V\nM 10 p/C B ()V\nC\n"), 0o644))

	cfg := jbolt.NewConfig().WithUseJBolt(true).WithLoadMode(orderPath)
	j, err := jbolt.New(cfg, validCollaborators())
	require.NoError(t, err)
	assert.Equal(t, phase.Available, j.Phase())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()

	refA := &fakeRef{key: keyA}
	refB := &fakeRef{key: keyB}
	require.Eventually(t, func() bool {
		j.Driver.Place(hostiface.CompileTaskInfo{Method: refA, OSRBCI: hostiface.InvocationEntryBCI}, true)
		j.Driver.Place(hostiface.CompileTaskInfo{Method: refB, OSRBCI: hostiface.InvocationEntryBCI}, true)
		return j.Driver.CapturedCount() >= 2
	}, time.Second, time.Millisecond)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("LoadMode run did not complete before the context deadline")
	}

	assert.Equal(t, phase.End, j.Phase())
}

func TestJBolt_StartIsRejectedWhileAlreadyRunning(t *testing.T) {
	cfg := jbolt.NewConfig().WithUseJBolt(true).WithSampleInterval(5 * time.Second)
	j, err := jbolt.New(cfg, validCollaborators())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go j.Run(ctx)

	require.Eventually(t, func() bool { return j.Start(0) == nil }, 500*time.Millisecond, time.Millisecond)
	err = j.Start(0)
	assert.Error(t, err)
}
