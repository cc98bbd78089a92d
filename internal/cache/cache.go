// Package cache implements the multi-tier cache: an
// in-memory L1, an on-disk L2, and a non-evictable-until-pressure L3
// promoted from repeatedly-hit L2 entries. Concurrent producers for the
// same key are coalesced with golang.org/x/sync/singleflight, already a
// transitive dependency of a similar own go.mod and here promoted to
// a direct one, matching the design's "no module-level singletons"
// re-architecture note: the cache is an explicit dependency injected
// into the router and chunked processor, not a package-level global.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/farcloser/auralis/internal/types"
)

// Tier identifies which cache tier served (or would have served) a key.
type Tier string

const (
	TierL1   Tier = "l1"
	TierL2   Tier = "l2"
	TierL3   Tier = "l3"
	TierMiss Tier = "miss"
)

// Stats summarises the cache's hit counts and current sizes.
type Stats struct {
	HitsPerTier map[Tier]int
	SizesBytes  map[Tier]int64
}

// Config bounds the cache's tiers.
type Config struct {
	L1BudgetBytes   int64
	L2BudgetBytes   int64
	L3RetainBytes   int64
	L2Dir           string
	PromoteAfterHit int // hits within a session before an L2 entry promotes to L3
}

type l1Entry struct {
	key   types.ChunkKey
	data  []byte
	size  int64
}

// Cache is the three-tier chunk cache. It is safe for concurrent use.
type Cache struct {
	cfg Config

	mu       sync.Mutex
	l1Order  []types.ChunkKey // front = most recently used
	l1Index  map[types.ChunkKey]*l1Entry
	l1Size   int64

	l2Hits map[types.ChunkKey]int
	l3Keys map[types.ChunkKey]bool

	hits  map[Tier]int
	group singleflight.Group
}

// New constructs a cache rooted at cfg.L2Dir for on-disk tiers.
func New(cfg Config) *Cache {
	if cfg.PromoteAfterHit <= 0 {
		cfg.PromoteAfterHit = 3
	}

	return &Cache{
		cfg:     cfg,
		l1Index: make(map[types.ChunkKey]*l1Entry),
		l2Hits:  make(map[types.ChunkKey]int),
		l3Keys:  make(map[types.ChunkKey]bool),
		hits:    make(map[Tier]int),
	}
}

// Get returns the cached bytes for key and which tier served it, or
// TierMiss if absent from every tier.
func (c *Cache) Get(key types.ChunkKey) ([]byte, Tier) {
	c.mu.Lock()
	if entry, ok := c.l1Index[key]; ok {
		c.touchL1Locked(key)
		c.hits[TierL1]++
		data := entry.data
		c.mu.Unlock()

		return data, TierL1
	}
	c.mu.Unlock()

	if data, tier, ok := c.readDisk(key); ok {
		c.touchDiskMeta(key, tier)

		c.mu.Lock()
		c.l2Hits[key]++
		promote := c.l2Hits[key] >= c.cfg.PromoteAfterHit && tier == TierL2
		if promote {
			c.l3Keys[key] = true
		}
		c.hits[tier]++
		c.mu.Unlock()

		// Promote into L1 so the next get is fast, budget permitting.
		c.putL1(key, data)

		if promote {
			_ = c.writeDisk(key, data, TierL3)
			c.enforceL3Budget()
		}

		return data, tier
	}

	c.mu.Lock()
	c.hits[TierMiss]++
	c.mu.Unlock()

	return nil, TierMiss
}

// Put stores bytes for key across L1 and L2. Idempotent: re-putting the
// same key overwrites in place without growing either tier's accounting.
func (c *Cache) Put(key types.ChunkKey, data []byte) {
	c.putL1(key, data)
	_ = c.writeDisk(key, data, TierL2)
	c.enforceL2Budget()
}

// GetOrCompute coalesces concurrent producers for the same key: at most
// one compute() call is in flight per key at a time, satisfying the
// single-flight requirement in the design
func (c *Cache) GetOrCompute(key types.ChunkKey, compute func() ([]byte, error)) ([]byte, Tier, error) {
	if data, tier := c.Get(key); tier != TierMiss {
		return data, tier, nil
	}

	groupKey := chunkKeyHash(key)

	v, err, _ := c.group.Do(groupKey, func() (any, error) {
		if data, tier := c.Get(key); tier != TierMiss {
			return data, nil
		}

		data, err := compute()
		if err != nil {
			return nil, err
		}

		c.Put(key, data)

		return data, nil
	})
	if err != nil {
		return nil, TierMiss, err
	}

	return v.([]byte), TierMiss, nil
}

// Stats reports hit counts per tier and current tier sizes. The L2 and L3
// sizes are the on-disk footprints of each tier's chunk files.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	hits := make(map[Tier]int, len(c.hits))
	for k, v := range c.hits {
		hits[k] = v
	}

	sizes := map[Tier]int64{TierL1: c.l1Size}

	if c.cfg.L2Dir != "" {
		for _, tier := range []Tier{TierL2, TierL3} {
			files, err := os.ReadDir(filepath.Join(c.cfg.L2Dir, string(tier)))
			if err != nil {
				continue
			}

			for _, f := range files {
				if info, err := f.Info(); err == nil && !f.IsDir() && filepath.Ext(f.Name()) == ".chunk" {
					sizes[tier] += info.Size()
				}
			}
		}
	}

	return Stats{
		HitsPerTier: hits,
		SizesBytes:  sizes,
	}
}

func (c *Cache) putL1(key types.ChunkKey, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.l1Index[key]; ok {
		c.l1Size -= existing.size
		existing.data = data
		existing.size = int64(len(data))
		c.l1Size += existing.size
		c.touchL1Locked(key)

		return
	}

	entry := &l1Entry{key: key, data: data, size: int64(len(data))}
	c.l1Index[key] = entry
	c.l1Order = append([]types.ChunkKey{key}, c.l1Order...)
	c.l1Size += entry.size

	for c.l1Size > c.cfg.L1BudgetBytes && len(c.l1Order) > 0 {
		c.evictOldestL1Locked()
	}
}

func (c *Cache) touchL1Locked(key types.ChunkKey) {
	for i, k := range c.l1Order {
		if k == key {
			c.l1Order = append(c.l1Order[:i], c.l1Order[i+1:]...)

			break
		}
	}

	c.l1Order = append([]types.ChunkKey{key}, c.l1Order...)
}

func (c *Cache) evictOldestL1Locked() {
	n := len(c.l1Order)
	if n == 0 {
		return
	}

	oldest := c.l1Order[n-1]
	c.l1Order = c.l1Order[:n-1]

	if entry, ok := c.l1Index[oldest]; ok {
		c.l1Size -= entry.size
		delete(c.l1Index, oldest)
	}
}

func chunkKeyHash(key types.ChunkKey) string {
	raw := fmt.Sprintf("%s|%s|%d|%d", key.TrackID, key.PresetID, key.IntensityQuantised, key.ChunkIndex)
	sum := sha256.Sum256([]byte(raw))

	return hex.EncodeToString(sum[:])
}

func (c *Cache) tierPath(key types.ChunkKey, tier Tier) string {
	return filepath.Join(c.cfg.L2Dir, string(tier), chunkKeyHash(key)+".chunk")
}

func (c *Cache) writeDisk(key types.ChunkKey, data []byte, tier Tier) error {
	if c.cfg.L2Dir == "" {
		return nil
	}

	path := c.tierPath(key, tier)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cache: mkdir: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cache: write: %w", err)
	}

	return c.writeMeta(key, tier)
}

func (c *Cache) readDisk(key types.ChunkKey) ([]byte, Tier, bool) {
	if c.cfg.L2Dir == "" {
		return nil, TierMiss, false
	}

	for _, tier := range []Tier{TierL3, TierL2} {
		path := c.tierPath(key, tier)

		data, err := os.ReadFile(path)
		if err == nil {
			return data, tier, true
		}
	}

	return nil, TierMiss, false
}

// touchDiskMeta refreshes a disk entry's StoredAt timestamp on a hit, so
// eviction sweeps order by last access rather than by write time: the LRU
// that the design calls for is "LRU over atime", not over write order.
func (c *Cache) touchDiskMeta(key types.ChunkKey, tier Tier) {
	if c.cfg.L2Dir == "" {
		return
	}

	_ = c.writeMeta(key, tier)
}

func (c *Cache) writeMeta(key types.ChunkKey, tier Tier) error {
	path := c.tierPath(key, tier) + ".meta"

	meta := diskMeta{Key: key, StoredAt: nowFunc()}

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("cache: marshal metadata: %w", err)
	}

	return os.WriteFile(path, metaBytes, 0o644)
}

type diskMeta struct {
	Key      types.ChunkKey
	StoredAt time.Time
}

// diskEntry is one on-disk chunk discovered during a budget sweep.
type diskEntry struct {
	key        types.ChunkKey
	chunkPath  string
	metaPath   string
	size       int64
	lastAccess time.Time
}

// enforceL2Budget evicts the least-recently-accessed L2 entries until the
// tier's on-disk footprint is back at or under cfg.L2BudgetBytes (4.J:
// "sized budget...LRU over atime").
func (c *Cache) enforceL2Budget() {
	if c.cfg.L2Dir == "" || c.cfg.L2BudgetBytes <= 0 {
		return
	}

	c.sweepTier(TierL2, c.cfg.L2BudgetBytes, nil)
}

// enforceL3Budget evicts the least-recently-accessed L3 entries only once
// their combined size exceeds cfg.L3RetainBytes: L3 is "marked
// non-evictable until size pressure forces it" (4.J). An L3 entry evicted
// under pressure loses its long-term guarantee entirely, so its L2 backing
// is dropped too rather than silently re-promoting a few hits later.
func (c *Cache) enforceL3Budget() {
	if c.cfg.L2Dir == "" || c.cfg.L3RetainBytes <= 0 {
		return
	}

	c.sweepTier(TierL3, c.cfg.L3RetainBytes, func(e diskEntry) {
		l2Path := c.tierPath(e.key, TierL2)
		_ = os.Remove(l2Path)
		_ = os.Remove(l2Path + ".meta")
	})
}

// sweepTier deletes the oldest-accessed entries under tier's directory
// until its total on-disk size is at or under budget. onEvict, if
// non-nil, runs once per evicted entry before its own files are removed.
func (c *Cache) sweepTier(tier Tier, budget int64, onEvict func(diskEntry)) {
	dir := filepath.Join(c.cfg.L2Dir, string(tier))

	files, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var entries []diskEntry

	var total int64

	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".chunk" {
			continue
		}

		chunkPath := filepath.Join(dir, f.Name())

		info, err := f.Info()
		if err != nil {
			continue
		}

		entry := diskEntry{
			chunkPath:  chunkPath,
			metaPath:   chunkPath + ".meta",
			size:       info.Size(),
			lastAccess: info.ModTime(),
		}

		if metaBytes, err := os.ReadFile(entry.metaPath); err == nil {
			var meta diskMeta
			if json.Unmarshal(metaBytes, &meta) == nil {
				entry.key = meta.Key
				entry.lastAccess = meta.StoredAt
			}
		}

		entries = append(entries, entry)
		total += entry.size
	}

	if total <= budget {
		return
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].lastAccess.Before(entries[j].lastAccess) })

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range entries {
		if total <= budget {
			break
		}

		if onEvict != nil {
			onEvict(entry)
		}

		_ = os.Remove(entry.chunkPath)
		_ = os.Remove(entry.metaPath)
		total -= entry.size

		delete(c.l2Hits, entry.key)
		delete(c.l3Keys, entry.key)
	}
}

// nowFunc is a seam so tests can avoid depending on wall-clock time.
var nowFunc = time.Now

// BoolView adapts a Cache to the boolean-hit Get/Put shape the chunked
// processor (internal/chunked.ChunkCache) depends on, so that package
// never needs to know about cache tiers.
type BoolView struct {
	*Cache
}

// Get implements chunked.ChunkCache.
func (b BoolView) Get(key types.ChunkKey) ([]byte, bool) {
	data, tier := b.Cache.Get(key)

	return data, tier != TierMiss
}
