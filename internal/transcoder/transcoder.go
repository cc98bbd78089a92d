// Package transcoder implements the transcoder collaborator: the codec
// layer's Opus encode, presented as an external-process-style asynchronous
// blocking call, bounded to a small worker pool and deduplicated per
// in-flight key. Grounded on a
// plain-goroutines-plus-channel worker pool style (no external pool
// library appears anywhere in the pack); golang.org/x/sync/singleflight
// is reused here exactly as internal/cache already promotes it to a
// direct dependency.
package transcoder

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/farcloser/auralis/internal/auralerr"
	"github.com/farcloser/auralis/internal/cache"
	"github.com/farcloser/auralis/internal/codec"
	"github.com/farcloser/auralis/internal/types"
)

// DefaultWorkers bounds concurrent in-flight Opus encodes in the
// transcode pool (≤2 workers).
const DefaultWorkers = 2

// Transcoder serialises PCM-to-WebM/Opus encode requests through a
// bounded worker pool, caching and deduplicating by ChunkKey.
type Transcoder struct {
	encoder *codec.Encoder
	cache   *cache.Cache
	sem     chan struct{}
	group   singleflight.Group
}

// New constructs a Transcoder with the given worker bound (a value outside
// [1,2] falls back to DefaultWorkers) backed by encoder for Opus/WebM encoding and chunkCache for
// on-disk persistence of results.
func New(encoder *codec.Encoder, chunkCache *cache.Cache, workers int) *Transcoder {
	if workers < 1 || workers > DefaultWorkers {
		workers = DefaultWorkers
	}

	return &Transcoder{
		encoder: encoder,
		cache:   chunkCache,
		sem:     make(chan struct{}, workers),
	}
}

// Encode transcodes one chunk's interleaved PCM into a WebM/Opus byte
// fragment, blocking until a worker slot is free or ctx is done.
// Concurrent calls for the same key are coalesced: only one underlying
// encode runs, and every caller receives its result.
func (t *Transcoder) Encode(
	ctx context.Context,
	key types.ChunkKey,
	trackID string,
	chunkIndex int,
	pcm []float32,
	format types.PCMFormat,
) ([]byte, error) {
	if data, tier := t.cache.Get(key); tier != cache.TierMiss {
		return data, nil
	}

	groupKey := fmt.Sprintf("%s|%s|%d", key.TrackID, key.PresetID, key.ChunkIndex)

	v, err, _ := t.group.Do(groupKey, func() (any, error) {
		if data, tier := t.cache.Get(key); tier != cache.TierMiss {
			return data, nil
		}

		select {
		case t.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", auralerr.ErrCancelled, ctx.Err())
		}
		defer func() { <-t.sem }()

		data, err := t.encoder.EncodeChunk(trackID, chunkIndex, pcm, format)
		if err != nil {
			return nil, err
		}

		t.cache.Put(key, data)

		return data, nil
	})
	if err != nil {
		return nil, err
	}

	return v.([]byte), nil
}
