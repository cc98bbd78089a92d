// Package router implements the streaming surface/§6: two
// endpoints (metadata, chunk) routed to either the codec layer (4.L,
// enhanced=false) or the chunked processor (4.I, enhanced=true), with
// diagnostic cache-tier/latency headers. Grounded on a similar implementation having
// no HTTP server anywhere in its own tree and no web framework appearing
// anywhere in the retrieved pack: a plain net/http.Handler is used
// directly, matching that absence rather than introducing a dependency
// the corpus never reaches for.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/farcloser/auralis/internal/auralerr"
	"github.com/farcloser/auralis/internal/cache"
	"github.com/farcloser/auralis/internal/chunked"
	"github.com/farcloser/auralis/internal/transcoder"
	"github.com/farcloser/auralis/internal/types"
)

// Library resolves a track identifier to the file/metadata collaborator
// §6 describes as external: filepath, duration, sample rate, channels.
type Library interface {
	Lookup(trackID string) (LibraryEntry, error)
}

// LibraryEntry is one track's externally-owned metadata.
type LibraryEntry struct {
	FilePath    string
	DurationSec float64
	SampleRate  int
	Channels    int
}

// PresetResolver turns a (track, preset name, intensity) request into
// concrete processing parameters, per the adaptive target generator
// (4.G) interpolated by intensity (4.G's Open-Question resolution).
type PresetResolver interface {
	Resolve(trackID, preset string, intensity float64) (types.ProcessingParameters, error)
}

// RawSource reads unprocessed PCM windows for the unenhanced (4.L)
// delivery path; satisfied by internal/decoder.FileSource.
type RawSource interface {
	ReadWindow(ctx context.Context, trackID string, startSample, sampleCount int) (left, right []float32, err error)
	Format(ctx context.Context, trackID string) (types.PCMFormat, error)
}

// PrebufferTrigger is notified when a metadata request names a track other
// than the currently active one, so an implementation can schedule background pre-buffering of the track's
// alternative presets (4.K). A nil PrebufferTrigger disables the hook.
type PrebufferTrigger interface {
	Schedule(ctx context.Context, trackID string)
}

// Config bounds Handler's behaviour, mirroring the design's configuration
// surface (chunk_duration, chunk_request_deadline_ms).
type Config struct {
	ChunkDurationSec float64
	RequestDeadline  time.Duration
}

// Handler is the stream router's http.Handler.
type Handler struct {
	library Library
	presets PresetResolver

	chunked        *chunked.Processor
	rawSource      RawSource
	transcoder     *transcoder.Transcoder
	chunkedCache   *cache.Cache
	transcodeCache *cache.Cache
	prebuffer      PrebufferTrigger

	chunkDuration float64
	deadline      time.Duration

	trackMu       sync.Mutex
	activeTrackID string
	cancelActive  context.CancelFunc

	mux *http.ServeMux
}

// New constructs a streaming Handler. chunkedCache and transcodeCache are
// the same cache instances the chunked processor and transcoder already
// use internally; the router only reads them, to report an accurate
// X-Cache-Tier header without duplicating the caching logic. prebuffer may
// be nil, which disables the track-play pre-buffer hook entirely.
func New(
	library Library,
	presets PresetResolver,
	chunkedProc *chunked.Processor,
	rawSource RawSource,
	tc *transcoder.Transcoder,
	chunkedCache, transcodeCache *cache.Cache,
	prebuffer PrebufferTrigger,
	cfg Config,
) *Handler {
	h := &Handler{
		library:        library,
		presets:        presets,
		chunked:        chunkedProc,
		rawSource:      rawSource,
		transcoder:     tc,
		chunkedCache:   chunkedCache,
		transcodeCache: transcodeCache,
		prebuffer:      prebuffer,
		chunkDuration:  cfg.ChunkDurationSec,
		deadline:       cfg.RequestDeadline,
	}

	h.mux = http.NewServeMux()
	h.mux.HandleFunc("GET /stream/{track_id}/metadata", h.handleMetadata)
	h.mux.HandleFunc("GET /stream/{track_id}/chunk/{idx}", h.handleChunk)

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type metadataResponse struct {
	TrackID       string  `json:"track_id"`
	Duration      float64 `json:"duration"`
	TotalChunks   int     `json:"total_chunks"`
	ChunkDuration float64 `json:"chunk_duration"`
	MimeType      string  `json:"mime_type"`
	SampleRate    int     `json:"sample_rate"`
	Channels      int     `json:"channels"`
	Enhanced      bool    `json:"enhanced"`
	Preset        string  `json:"preset"`
}

func (h *Handler) handleMetadata(w http.ResponseWriter, r *http.Request) {
	trackID := r.PathValue("track_id")

	entry, err := h.library.Lookup(trackID)
	if err != nil {
		writeError(w, err)

		return
	}

	h.triggerPrebuffer(trackID)

	enhanced := queryBool(r, "enhanced")
	preset := r.URL.Query().Get("preset")

	totalChunks := int(entry.DurationSec/h.chunkDuration + 0.999999)

	resp := metadataResponse{
		TrackID:       trackID,
		Duration:      entry.DurationSec,
		TotalChunks:   totalChunks,
		ChunkDuration: h.chunkDuration,
		MimeType:      contentTypeFor(enhanced),
		SampleRate:    entry.SampleRate,
		Channels:      entry.Channels,
		Enhanced:      enhanced,
		Preset:        preset,
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) handleChunk(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	trackID := r.PathValue("track_id")

	idx, err := strconv.Atoi(r.PathValue("idx"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: chunk index %q", auralerr.ErrInvalidInput, r.PathValue("idx")))

		return
	}

	enhanced := queryBool(r, "enhanced")
	preset := r.URL.Query().Get("preset")
	intensity := parseIntensity(r)

	ctx := r.Context()

	if h.deadline > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, h.deadline)
		defer cancel()
	}

	key := types.ChunkKey{
		TrackID:            trackID,
		PresetID:           presetIdentity(enhanced, preset),
		IntensityQuantised: int(intensity*100 + 0.5),
		ChunkIndex:         idx,
	}

	tier := cache.TierMiss
	if enhanced {
		if _, t := h.chunkedCache.Get(key); t != cache.TierMiss {
			tier = t
		}
	} else if _, t := h.transcodeCache.Get(key); t != cache.TierMiss {
		tier = t
	}

	var data []byte

	if enhanced {
		data, err = h.serveEnhanced(ctx, trackID, preset, intensity, key)
	} else {
		data, err = h.serveUnenhanced(ctx, trackID, key)
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: chunk request exceeded deadline", auralerr.ErrTimeout)
		}

		if auralerr.Fatal(err) {
			slog.Error("router: processor state lost", "track_id", trackID, "chunk_index", idx, "error", err)
		}

		writeError(w, err)

		return
	}

	latencyMS := time.Since(start).Milliseconds()

	w.Header().Set("X-Chunk-Index", strconv.Itoa(idx))
	w.Header().Set("X-Cache-Tier", tierHeaderName(tier))
	w.Header().Set("X-Latency-Ms", strconv.FormatInt(latencyMS, 10))
	w.Header().Set("X-Preset", preset)
	w.Header().Set("X-Enhanced", strconv.FormatBool(enhanced))
	w.Header().Set("Content-Type", contentTypeFor(enhanced))
	_, _ = w.Write(data)
}

// triggerPrebuffer fires the pre-buffer hook whenever trackID differs from
// the currently active track, cancelling whichever track was previously
// active (4.K: "cancels on track change"); returning to an earlier track
// schedules it again. Repeats of the active track are no-ops, so playback
// polling for the same track's metadata doesn't keep re-scheduling it.
func (h *Handler) triggerPrebuffer(trackID string) {
	if h.prebuffer == nil {
		return
	}

	h.trackMu.Lock()
	defer h.trackMu.Unlock()

	if trackID == h.activeTrackID {
		return
	}

	if h.cancelActive != nil {
		h.cancelActive()
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.activeTrackID = trackID
	h.cancelActive = cancel

	go h.prebuffer.Schedule(ctx, trackID)
}

// serveEnhanced delivers processed PCM via the chunked processor (4.I).
func (h *Handler) serveEnhanced(ctx context.Context, trackID, preset string, intensity float64, key types.ChunkKey) ([]byte, error) {
	params, err := h.presets.Resolve(trackID, preset, intensity)
	if err != nil {
		return nil, err
	}

	return h.chunked.ProcessChunk(ctx, key, params)
}

// serveUnenhanced delivers the transcoded original via the codec layer
// (4.L): read the raw window, encode it, relying on the transcoder's own
// cache/dedup for repeated requests.
func (h *Handler) serveUnenhanced(ctx context.Context, trackID string, key types.ChunkKey) ([]byte, error) {
	format, err := h.rawSource.Format(ctx, trackID)
	if err != nil {
		return nil, err
	}

	sampleCount := int(h.chunkDuration * float64(format.SampleRate))
	startSample := key.ChunkIndex * sampleCount

	left, right, err := h.rawSource.ReadWindow(ctx, trackID, startSample, sampleCount)
	if err != nil {
		return nil, err
	}

	pcm := interleave(left, right)

	return h.transcoder.Encode(ctx, key, trackID, key.ChunkIndex, pcm, format)
}

func interleave(left, right []float32) []float32 {
	out := make([]float32, len(left)*2)
	for i := range left {
		out[i*2] = left[i]
		out[i*2+1] = right[i]
	}

	return out
}

// tierHeaderName maps an internal cache.Tier onto the X-Cache-Tier values
// the design names: L1, L2, L3, MISS.
func tierHeaderName(tier cache.Tier) string {
	switch tier {
	case cache.TierL1:
		return "L1"
	case cache.TierL2:
		return "L2"
	case cache.TierL3:
		return "L3"
	default:
		return "MISS"
	}
}

func presetIdentity(enhanced bool, preset string) string {
	if !enhanced {
		return "unenhanced"
	}

	if preset == "" {
		return "enhanced:default"
	}

	return "enhanced:" + preset
}

func contentTypeFor(enhanced bool) string {
	if enhanced {
		return "audio/wav"
	}

	return "audio/webm; codecs=opus"
}

func queryBool(r *http.Request, name string) bool {
	v := r.URL.Query().Get(name)

	return v == "1" || v == "true"
}

func parseIntensity(r *http.Request) float64 {
	raw := r.URL.Query().Get("intensity")
	if raw == "" {
		return 1.0
	}

	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 1.0
	}

	return parsed
}

// writeError maps the Auralis error taxonomy onto the
// externally visible status codes: InvalidInput->400, NotFound->404,
// NotFitted->409, Timeout->504, ProcessorStateLost->500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, auralerr.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, auralerr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, auralerr.ErrNotFitted):
		status = http.StatusConflict
	case errors.Is(err, auralerr.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, auralerr.ErrProcessorStateLost):
		status = http.StatusInternalServerError
	}

	http.Error(w, err.Error(), status)
}
