package router

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/farcloser/auralis/internal/auralerr"
	"github.com/farcloser/auralis/internal/cache"
	"github.com/farcloser/auralis/internal/chunked"
	"github.com/farcloser/auralis/internal/codec"
	"github.com/farcloser/auralis/internal/transcoder"
	"github.com/farcloser/auralis/internal/types"
)

type fakeLibrary struct {
	entries map[string]LibraryEntry
}

func (f *fakeLibrary) Lookup(trackID string) (LibraryEntry, error) {
	entry, ok := f.entries[trackID]
	if !ok {
		return LibraryEntry{}, errNotFoundForTest
	}

	return entry, nil
}

type fakePresets struct{}

func (fakePresets) Resolve(_, _ string, _ float64) (types.ProcessingParameters, error) {
	return types.Identity(), nil
}

type fakeRawSource struct {
	left, right []float32
	format      types.PCMFormat
}

func (f *fakeRawSource) ReadWindow(_ context.Context, _ string, start, count int) ([]float32, []float32, error) {
	end := min(start+count, len(f.left))
	if start > end {
		start = end
	}

	left := make([]float32, count)
	right := make([]float32, count)
	copy(left, f.left[start:end])
	copy(right, f.right[start:end])

	return left, right, nil
}

func (f *fakeRawSource) Format(_ context.Context, _ string) (types.PCMFormat, error) {
	return f.format, nil
}

func (f *fakeRawSource) TotalSamples(_ context.Context, _ string) (int, error) {
	return len(f.left), nil
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()

	format := types.PCMFormat{SampleRate: 48000, Channels: 2}
	samples := 48000 * 2 // 2s of audio

	raw := &fakeRawSource{
		left:   make([]float32, samples),
		right:  make([]float32, samples),
		format: format,
	}

	lib := &fakeLibrary{entries: map[string]LibraryEntry{
		"t1": {FilePath: "/tmp/t1.flac", DurationSec: 2, SampleRate: 48000, Channels: 2},
	}}

	chunkedCache := cache.New(cache.Config{L1BudgetBytes: 16 * 1024 * 1024})
	transcodeCache := cache.New(cache.Config{L1BudgetBytes: 16 * 1024 * 1024})

	chunkedProc := chunked.NewProcessor(raw, cache.BoolView{Cache: chunkedCache}, 1.0)
	tc := transcoder.New(codec.NewEncoder(codec.DefaultBitrateKbps), transcodeCache, transcoder.DefaultWorkers)

	return New(lib, fakePresets{}, chunkedProc, raw, tc, chunkedCache, transcodeCache, nil, Config{
		ChunkDurationSec: 1.0,
		RequestDeadline:  0,
	})
}

var errNotFoundForTest = fmt.Errorf("%w: track not found", auralerr.ErrNotFound)

func TestMetadataReturnsTrackInfo(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/stream/t1/metadata?enhanced=true&preset=warm", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}

func TestMetadataUnknownTrackReturns404(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/stream/missing/metadata", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestChunkEnhancedServesProcessedAudioWithHeaders(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/stream/t1/chunk/0?enhanced=true&preset=warm&intensity=1.0", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	for _, header := range []string{"X-Chunk-Index", "X-Cache-Tier", "X-Latency-Ms", "X-Preset", "X-Enhanced"} {
		if rec.Header().Get(header) == "" {
			t.Errorf("missing diagnostic header %s", header)
		}
	}

	if rec.Header().Get("X-Enhanced") != "true" {
		t.Errorf("X-Enhanced = %q, want true", rec.Header().Get("X-Enhanced"))
	}
}

func TestChunkUnenhancedServesTranscodedAudio(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/stream/t1/chunk/0?enhanced=false", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	if rec.Body.Len() == 0 {
		t.Fatal("expected non-empty transcoded body")
	}
}

func TestChunkEnhancedAndUnenhancedUseIndependentCacheEntries(t *testing.T) {
	h := newTestHandler(t)

	reqEnhanced := httptest.NewRequest(http.MethodGet, "/stream/t1/chunk/0?enhanced=true", nil)
	recEnhanced := httptest.NewRecorder()
	h.ServeHTTP(recEnhanced, reqEnhanced)

	reqPlain := httptest.NewRequest(http.MethodGet, "/stream/t1/chunk/0?enhanced=false", nil)
	recPlain := httptest.NewRecorder()
	h.ServeHTTP(recPlain, reqPlain)

	if recEnhanced.Code != http.StatusOK || recPlain.Code != http.StatusOK {
		t.Fatalf("status codes = %d, %d, want both 200", recEnhanced.Code, recPlain.Code)
	}

	if recEnhanced.Body.String() == recPlain.Body.String() {
		t.Fatal("enhanced and unenhanced chunk bodies should not be identical")
	}
}

type recordingPrebuffer struct {
	mu        sync.Mutex
	scheduled []string
	cancelled []string
}

func (r *recordingPrebuffer) Schedule(ctx context.Context, trackID string) {
	r.mu.Lock()
	r.scheduled = append(r.scheduled, trackID)
	r.mu.Unlock()

	<-ctx.Done()

	r.mu.Lock()
	r.cancelled = append(r.cancelled, trackID)
	r.mu.Unlock()
}

func (r *recordingPrebuffer) snapshot() (scheduled, cancelled []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.scheduled...), append([]string(nil), r.cancelled...)
}

// TestMetadataTriggersPrebufferOnceAndCancelsOnTrackChange covers 4.K's
// wiring into the streaming surface: the first metadata request for a
// track schedules its pre-buffer exactly once, a repeat request for the
// same track does not re-schedule it, and a different track cancels it.
func TestMetadataTriggersPrebufferOnceAndCancelsOnTrackChange(t *testing.T) {
	h := newTestHandler(t)

	trigger := &recordingPrebuffer{}
	h.prebuffer = trigger

	lib := h.library.(*fakeLibrary)
	lib.entries["t2"] = lib.entries["t1"]

	get := func(path string) {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
	}

	get("/stream/t1/metadata")
	get("/stream/t1/metadata") // repeat: must not re-schedule

	scheduled, _ := trigger.snapshot()
	if len(scheduled) != 1 || scheduled[0] != "t1" {
		t.Fatalf("scheduled = %v, want exactly one entry for t1", scheduled)
	}

	get("/stream/t2/metadata") // different track: cancels t1's prebuffer

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, cancelled := trigger.snapshot()
		if len(cancelled) == 1 && cancelled[0] == "t1" {
			break
		}

		time.Sleep(time.Millisecond)
	}

	scheduled, cancelled := trigger.snapshot()
	if len(scheduled) != 2 || scheduled[1] != "t2" {
		t.Fatalf("scheduled = %v, want t1 then t2", scheduled)
	}

	if len(cancelled) != 1 || cancelled[0] != "t1" {
		t.Fatalf("cancelled = %v, want t1's prebuffer cancelled on track change", cancelled)
	}
}

func TestChunkInvalidIndexReturns400(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/stream/t1/chunk/not-a-number", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
