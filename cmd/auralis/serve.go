//nolint:wrapcheck
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/farcloser/auralis/internal/adaptive"
	"github.com/farcloser/auralis/internal/auralerr"
	"github.com/farcloser/auralis/internal/cache"
	"github.com/farcloser/auralis/internal/chunked"
	"github.com/farcloser/auralis/internal/codec"
	"github.com/farcloser/auralis/internal/config"
	"github.com/farcloser/auralis/internal/decoder"
	"github.com/farcloser/auralis/internal/fingerprint"
	"github.com/farcloser/auralis/internal/prebuffer"
	"github.com/farcloser/auralis/internal/router"
	"github.com/farcloser/auralis/internal/transcoder"
	"github.com/farcloser/auralis/internal/types"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the streaming surface (metadata/chunk endpoints) over a library directory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "library-dir",
				Usage:    "Directory of audio files; the file's base name (without extension) is its track_id",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address",
				Value: ":8080",
			},
			&cli.StringFlag{
				Name:  "cache-dir",
				Usage: "Directory for on-disk L2/L3 cache tiers",
				Value: "./auralis-cache",
			},
			&cli.StringFlag{
				Name:  "genre",
				Usage: "Genre hint applied to every track's adaptive target",
				Value: "unknown",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runServe(ctx, cmd.String("library-dir"), cmd.String("addr"), cmd.String("cache-dir"), cmd.String("genre"))
		},
	}
}

// dirLibrary resolves track IDs to files directly under a directory; it
// satisfies both router.Library and internal/decoder.TrackLocator.
type dirLibrary struct {
	dir string
}

func (d *dirLibrary) Path(trackID string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(d.dir, trackID+".*"))
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("%w: track %q", auralerr.ErrNotFound, trackID)
	}

	return matches[0], nil
}

func (d *dirLibrary) Lookup(trackID string) (router.LibraryEntry, error) {
	path, err := d.Path(trackID)
	if err != nil {
		return router.LibraryEntry{}, err
	}

	probe, err := decoder.NewFFmpegDecoder().ProbeInfo(context.Background(), path)
	if err != nil {
		return router.LibraryEntry{}, err
	}

	return router.LibraryEntry{
		FilePath:    path,
		DurationSec: probe.DurationSec,
		SampleRate:  probe.SampleRate,
		Channels:    probe.Channels,
	}, nil
}

// fingerprintPresetResolver derives adaptive parameters on demand from a
// cached-per-track fingerprint, interpolated by the requested intensity.
type fingerprintPresetResolver struct {
	source *decoder.FileSource
	genre  types.Genre

	mu      sync.Mutex
	byTrack map[string]types.Fingerprint
}

func newFingerprintPresetResolver(source *decoder.FileSource, genre types.Genre) *fingerprintPresetResolver {
	return &fingerprintPresetResolver{source: source, genre: genre, byTrack: make(map[string]types.Fingerprint)}
}

func (r *fingerprintPresetResolver) Resolve(trackID, _ string, intensity float64) (types.ProcessingParameters, error) {
	r.mu.Lock()
	fp, ok := r.byTrack[trackID]
	r.mu.Unlock()

	if !ok {
		computed, err := r.computeFingerprint(trackID)
		if err != nil {
			return types.ProcessingParameters{}, err
		}

		fp = computed

		r.mu.Lock()
		r.byTrack[trackID] = fp
		r.mu.Unlock()
	}

	target := adaptive.Generate(fp, r.genre)

	return adaptive.Interpolate(target, intensity), nil
}

func (r *fingerprintPresetResolver) computeFingerprint(trackID string) (types.Fingerprint, error) {
	ctx := context.Background()

	format, err := r.source.Format(ctx, trackID)
	if err != nil {
		return types.Fingerprint{}, err
	}

	total, err := r.source.TotalSamples(ctx, trackID)
	if err != nil {
		return types.Fingerprint{}, err
	}

	left, right, err := r.source.ReadWindow(ctx, trackID, 0, total)
	if err != nil {
		return types.Fingerprint{}, err
	}

	leftF64 := make([]float64, len(left))
	for i, v := range left {
		leftF64[i] = float64(v)
	}

	var rightF64 []float64
	if format.Channels >= 2 {
		rightF64 = make([]float64, len(right))
		for i, v := range right {
			rightF64[i] = float64(v)
		}
	}

	return fingerprint.Extract(leftF64, rightF64, format.SampleRate)
}

// presetSpec names one alternative preset the pre-buffer warms in the
// background. intensity is the value a client selecting that preset is
// expected to send alongside it, so a prebuffered chunk lands under the
// same cache key a real request for that preset would look up.
type presetSpec struct {
	name      string
	intensity float64
}

// alternativePresets is the catalog of presets other than whatever a
// client is currently playing; the pre-buffer warms all of them so a
// preset switch has a good chance of hitting an already-produced chunk.
var alternativePresets = []presetSpec{
	{name: "subtle", intensity: 0.4},
	{name: "balanced", intensity: 0.7},
	{name: "default", intensity: 1.0},
	{name: "intense", intensity: 1.3},
}

// chunkProducer adapts *chunked.Processor to prebuffer.Producer: the
// pre-buffer only cares that a chunk lands in the cache, not about the
// bytes it produces.
type chunkProducer struct {
	proc *chunked.Processor
}

func (c chunkProducer) ProcessChunk(ctx context.Context, key types.ChunkKey, params types.ProcessingParameters) error {
	_, err := c.proc.ProcessChunk(ctx, key, params)

	return err
}

// trackPrebufferer bridges router.PrebufferTrigger to internal/prebuffer,
// resolving every alternative preset's parameters for the track before
// scheduling its chunks.
type trackPrebufferer struct {
	pb      *prebuffer.PreBuffer
	presets router.PresetResolver
}

func (t *trackPrebufferer) Schedule(ctx context.Context, trackID string) {
	requests := make([]prebuffer.PresetRequest, 0, len(alternativePresets))

	for _, spec := range alternativePresets {
		params, err := t.presets.Resolve(trackID, spec.name, spec.intensity)
		if err != nil {
			continue
		}

		requests = append(requests, prebuffer.PresetRequest{
			PresetID:  "enhanced:" + spec.name,
			Intensity: spec.intensity,
			Params:    params,
		})
	}

	t.pb.Schedule(ctx, trackID, requests)
}

func runServe(ctx context.Context, libraryDir, addr, cacheDir, genreFlag string) error {
	if libraryDir == "" {
		return errors.New("--library-dir is required")
	}

	if _, err := os.Stat(libraryDir); err != nil {
		return fmt.Errorf("library-dir: %w", err)
	}

	cfg := config.DefaultConfig()

	lib := &dirLibrary{dir: libraryDir}
	rawSource := decoder.NewFileSource(decoder.NewFFmpegDecoder(), lib)

	chunkedCache := cache.New(cache.Config{
		L1BudgetBytes: int64(cfg.L1BudgetMB) * 1024 * 1024,
		L2BudgetBytes: int64(cfg.L2BudgetMB) * 1024 * 1024,
		L3RetainBytes: int64(cfg.L3RetainMB) * 1024 * 1024,
		L2Dir:         filepath.Join(cacheDir, "chunks"),
	})
	transcodeCache := cache.New(cache.Config{
		L1BudgetBytes: int64(cfg.L1BudgetMB) * 1024 * 1024,
		L2BudgetBytes: int64(cfg.L2BudgetMB) * 1024 * 1024,
		L3RetainBytes: int64(cfg.L3RetainMB) * 1024 * 1024,
		L2Dir:         filepath.Join(cacheDir, "webm"),
	})

	chunkedProc := chunked.NewProcessor(rawSource, cache.BoolView{Cache: chunkedCache}, cfg.ChunkDurationSec)
	tc := transcoder.New(codec.NewEncoder(cfg.TranscodeBitrateKbps), transcodeCache, cfg.TranscodeWorkers)

	presets := newFingerprintPresetResolver(rawSource, types.Genre(genreFlag))

	pb := prebuffer.New(chunkProducer{proc: chunkedProc}, cfg.PrebufferWorkers, cfg.PrebufferChunks)
	prebufferTrigger := &trackPrebufferer{pb: pb, presets: presets}

	handler := router.New(lib, presets, chunkedProc, rawSource, tc, chunkedCache, transcodeCache, prebufferTrigger, router.Config{
		ChunkDurationSec: cfg.ChunkDurationSec,
		RequestDeadline:  cfg.ChunkRequestDeadline,
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("auralis serve: listening", "addr", addr, "library_dir", libraryDir)

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}

	return nil
}
