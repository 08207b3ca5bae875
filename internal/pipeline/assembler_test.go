package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batmetrics/swing.report/internal/imu"
	"github.com/batmetrics/swing.report/internal/monitoring"
	"github.com/batmetrics/swing.report/internal/swing"
)

// fakeStore records commits in memory and can be told to fail either write.
type fakeStore struct {
	nextID    int
	failSave  error
	failBatch error

	swings  []swing.Event
	batches map[string][]RawSample
}

func newFakeStore() *fakeStore {
	return &fakeStore{batches: make(map[string][]RawSample)}
}

func (f *fakeStore) SaveSwing(_ context.Context, ev swing.Event) (string, error) {
	if f.failSave != nil {
		return "", f.failSave
	}
	f.nextID++
	f.swings = append(f.swings, ev)
	return fmt.Sprintf("swing-%d", f.nextID), nil
}

func (f *fakeStore) SaveRawBatch(_ context.Context, id string, samples []RawSample) error {
	if f.failBatch != nil {
		return f.failBatch
	}
	f.batches[id] = append([]RawSample(nil), samples...)
	return nil
}

func quietLogs(t *testing.T) {
	t.Helper()
	monitoring.SetLogger(func(string, ...interface{}) {})
	t.Cleanup(func() { monitoring.SetLogger(nil) })
}

func rawAt(tsMicros int64) imu.Sample {
	return imu.Sample{TimestampMicros: tsMicros, Accel: imu.Vec3{X: 4, Z: 9.8}, Gyro: imu.Vec3{X: 5, Y: 5}}
}

func testEvent(start, end int64, n int) swing.Event {
	return swing.Event{StartMicros: start, EndMicros: end, PeakGyro: 7.07, TipSpeed: 4.9, SampleCount: n}
}

func TestAssemblerCommitsEventWithBatch(t *testing.T) {
	store := newFakeStore()
	a := NewAssembler(store, 0)
	ctx := context.Background()

	// Buffer three samples across the open window, then complete on the
	// fourth: it confirmed the end, so it belongs to the batch too.
	for i, ts := range []int64{1_000, 6_000, 11_000} {
		state := swing.StateRising
		if i > 0 {
			state = swing.StateSwinging
		}
		_, err := a.Observe(ctx, rawAt(ts), state, nil)
		require.NoError(t, err)
	}
	ev := testEvent(1_000, 16_000, 4)
	id, err := a.Observe(ctx, rawAt(16_000), swing.StateRefractory, []swing.Event{ev})
	require.NoError(t, err)
	require.Equal(t, "swing-1", id)

	require.Len(t, store.swings, 1)
	assert.Equal(t, ev, store.swings[0])

	batch := store.batches[id]
	require.Len(t, batch, ev.SampleCount)
	assert.EqualValues(t, 0, batch[0].OffsetMicros, "offsets are relative to the window's first sample")
	assert.EqualValues(t, ev.DurationMicros(), batch[len(batch)-1].OffsetMicros)
	assert.Zero(t, a.Buffered(), "buffer cleared after commit")
	assert.EqualValues(t, 1, a.Counters().Commits)
}

func TestAssemblerFalseAlarmDiscardsBuffer(t *testing.T) {
	store := newFakeStore()
	a := NewAssembler(store, 0)
	ctx := context.Background()

	_, err := a.Observe(ctx, rawAt(1_000), swing.StateRising, nil)
	require.NoError(t, err)
	require.Equal(t, 1, a.Buffered())

	// The detector abandoned the candidate: back to idle, no event.
	_, err = a.Observe(ctx, rawAt(6_000), swing.StateIdle, nil)
	require.NoError(t, err)

	assert.Zero(t, a.Buffered())
	assert.Empty(t, store.swings)
}

func TestAssemblerSaveFailureDropsBatch(t *testing.T) {
	quietLogs(t)
	store := newFakeStore()
	store.failSave = errors.New("disk full")
	a := NewAssembler(store, 0)
	ctx := context.Background()

	_, err := a.Observe(ctx, rawAt(1_000), swing.StateRising, nil)
	require.NoError(t, err)
	id, err := a.Observe(ctx, rawAt(6_000), swing.StateRefractory, []swing.Event{testEvent(1_000, 6_000, 2)})
	require.ErrorContains(t, err, "disk full")
	assert.Empty(t, id)

	// No retry from memory: the window's samples are gone and the next
	// swing starts with a clean buffer.
	assert.Zero(t, a.Buffered())
	assert.Empty(t, store.batches)
	assert.EqualValues(t, 1, a.Counters().Failures)

	store.failSave = nil
	_, err = a.Observe(ctx, rawAt(200_000), swing.StateRising, nil)
	require.NoError(t, err)
	id, err = a.Observe(ctx, rawAt(206_000), swing.StateRefractory, []swing.Event{testEvent(200_000, 206_000, 2)})
	require.NoError(t, err)
	assert.Len(t, store.batches[id], 2)
}

func TestAssemblerBatchFailureSurfacedOnce(t *testing.T) {
	quietLogs(t)
	store := newFakeStore()
	store.failBatch = errors.New("tx aborted")
	a := NewAssembler(store, 0)
	ctx := context.Background()

	_, err := a.Observe(ctx, rawAt(1_000), swing.StateRising, nil)
	require.NoError(t, err)
	id, err := a.Observe(ctx, rawAt(6_000), swing.StateRefractory, []swing.Event{testEvent(1_000, 6_000, 2)})
	require.ErrorContains(t, err, "tx aborted")

	assert.Equal(t, "swing-1", id, "the event row itself was saved")
	assert.Zero(t, a.Buffered())
	assert.EqualValues(t, 1, a.Counters().Failures)
}

func TestAssemblerBoundsWindowBuffer(t *testing.T) {
	store := newFakeStore()
	a := NewAssembler(store, 8)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := a.Observe(ctx, rawAt(int64(i)*5_000), swing.StateSwinging, nil)
		require.NoError(t, err)
	}

	assert.Equal(t, 8, a.Buffered())
	assert.EqualValues(t, 12, a.Counters().Truncated)
}

func TestAssemblerResetDiscardsInFlightWindow(t *testing.T) {
	store := newFakeStore()
	a := NewAssembler(store, 0)
	ctx := context.Background()

	_, err := a.Observe(ctx, rawAt(1_000), swing.StateRising, nil)
	require.NoError(t, err)
	a.Reset()

	assert.Zero(t, a.Buffered())
	assert.Empty(t, store.swings)
}

func TestAssemblerCommitDegraded(t *testing.T) {
	store := newFakeStore()
	a := NewAssembler(store, 0)
	ctx := context.Background()

	_, err := a.Observe(ctx, rawAt(1_000), swing.StateRising, nil)
	require.NoError(t, err)
	_, err = a.Observe(ctx, rawAt(6_000), swing.StateSwinging, nil)
	require.NoError(t, err)

	ev := testEvent(1_000, 6_000, 2)
	ev.Degraded = true
	id, err := a.CommitDegraded(ctx, ev)
	require.NoError(t, err)

	require.Len(t, store.swings, 1)
	assert.True(t, store.swings[0].Degraded)
	assert.Len(t, store.batches[id], 2)
}
