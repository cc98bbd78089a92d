package prebuffer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/farcloser/auralis/internal/types"
)

type recordingProducer struct {
	mu   sync.Mutex
	seen []types.ChunkKey
	fail map[string]bool
}

func (r *recordingProducer) ProcessChunk(_ context.Context, key types.ChunkKey, _ types.ProcessingParameters) error {
	r.mu.Lock()
	r.seen = append(r.seen, key)
	shouldFail := r.fail[key.PresetID]
	r.mu.Unlock()

	if shouldFail {
		return errors.New("synthetic failure")
	}

	return nil
}

func TestScheduleProducesEveryPresetChunkPair(t *testing.T) {
	producer := &recordingProducer{}
	pb := New(producer, 2, 3)

	presets := []PresetRequest{
		{PresetID: "warm", Params: types.Identity()},
		{PresetID: "bright", Params: types.Identity()},
		{PresetID: "bass-boost", Params: types.Identity()},
	}

	pb.Schedule(context.Background(), "track1", presets)

	if len(producer.seen) != 3*3 {
		t.Fatalf("produced %d chunks, want %d", len(producer.seen), 9)
	}

	seen := make(map[types.ChunkKey]bool)
	for _, k := range producer.seen {
		seen[k] = true
	}

	for _, preset := range presets {
		for idx := 0; idx < 3; idx++ {
			key := types.ChunkKey{TrackID: "track1", PresetID: preset.PresetID, ChunkIndex: idx}
			if !seen[key] {
				t.Errorf("missing chunk %+v", key)
			}
		}
	}
}

func TestScheduleSwallowsErrorsAndCounts(t *testing.T) {
	producer := &recordingProducer{fail: map[string]bool{"bright": true}}
	pb := New(producer, 2, 2)

	presets := []PresetRequest{
		{PresetID: "warm", Params: types.Identity()},
		{PresetID: "bright", Params: types.Identity()},
	}

	pb.Schedule(context.Background(), "track1", presets)

	if pb.ErrorCount() != 2 {
		t.Fatalf("ErrorCount() = %d, want 2 (one per failing chunk)", pb.ErrorCount())
	}
}

func TestNewClampsWorkerCountToTwo(t *testing.T) {
	pb := New(&recordingProducer{}, 50, 3)
	if pb.workers != 2 {
		t.Fatalf("workers = %d, want clamped to 2", pb.workers)
	}
}

// blockingProducer blocks its first call until unblock is closed, letting a
// test cancel the caller's context while a job is in flight.
type blockingProducer struct {
	mu        sync.Mutex
	calls     int
	started   chan struct{}
	startOnce sync.Once
	unblock   chan struct{}
}

func (b *blockingProducer) ProcessChunk(_ context.Context, _ types.ChunkKey, _ types.ProcessingParameters) error {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()

	b.startOnce.Do(func() { close(b.started) })
	<-b.unblock

	return nil
}

func (b *blockingProducer) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.calls
}

// TestScheduleStopsDispatchingAfterCancellation cancels the caller context
// mid-Schedule and asserts that jobs not yet dispatched are skipped rather
// than run to completion.
func TestScheduleStopsDispatchingAfterCancellation(t *testing.T) {
	producer := &blockingProducer{started: make(chan struct{}), unblock: make(chan struct{})}
	pb := New(producer, 1, 50) // one worker: dispatch is serial, so cancellation lands between jobs

	presets := []PresetRequest{{PresetID: "warm", Params: types.Identity()}}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})

	go func() {
		pb.Schedule(ctx, "track1", presets)
		close(done)
	}()

	<-producer.started
	cancel()
	close(producer.unblock)
	<-done

	if got := producer.callCount(); got >= 50 {
		t.Fatalf("ProcessChunk called %d times, want cancellation to stop dispatch well short of 50", got)
	}
}
