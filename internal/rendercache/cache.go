// Content-addressed stage output cache with scored eviction
package rendercache

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"incremental-photo-engine/internal/imaging"
	"incremental-photo-engine/internal/stage"
)

// DefaultLimit is the memory ceiling used when configuration does not
// supply one.
const DefaultLimit int64 = 512 << 20

const (
	warnFrac      = 0.80
	criticalFrac  = 0.95
	emergencyFrac = 0.98
	purgeToFrac   = 0.80

	// minEntries is the retained floor for pressure trims, one entry
	// per cache-worthy stage.
	minEntries = 2
)

// Key addresses one cached stage output: the stage, the hash of that
// stage's parameter slice, and the fingerprint of the buffer the
// stage consumed.
type Key struct {
	Stage     stage.Stage
	ParamHash uint64
	InputHash uint64
}

type entry struct {
	key         Key
	buf         *imaging.Buffer
	paramHash   uint64
	inputHash   uint64
	size        int64
	accessCount int64
	lastAccess  time.Time
}

// score orders eviction victims, lower evicts first. Frequency
// dominates, staleness erodes it, and costlier stages get a bonus so
// they outlive cheap ones at equal use.
func (e *entry) score(now time.Time) float64 {
	recency := float64(now.Sub(e.lastAccess).Milliseconds())
	return float64(e.accessCount)*100 - recency/1000 + float64(e.key.Stage.Cost())*50
}

// Stats is a point-in-time counter snapshot.
type Stats struct {
	Entries    int
	UsedBytes  int64
	LimitBytes int64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Purges     uint64
}

// Cache holds stage outputs under a byte ceiling. A key match alone is
// never trusted: Get re-verifies the stored hashes and the buffer
// structure before serving, and purges the entry on any mismatch.
type Cache struct {
	mu      sync.Mutex
	limit   int64
	used    int64
	entries map[Key]*entry
	log     *slog.Logger

	hits      uint64
	misses    uint64
	evictions uint64
	purges    uint64
	lastBand  int
}

func New(limit int64, log *slog.Logger) *Cache {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		limit:   limit,
		entries: make(map[Key]*entry),
		log:     log,
	}
}

// Get returns an owned clone of the cached buffer for key. The stored
// hashes and the buffer structure are re-verified on every hit; a
// mismatch purges the entry and reports a miss.
func (c *Cache) Get(key Key) (*imaging.Buffer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if e.paramHash != key.ParamHash || e.inputHash != key.InputHash || !e.buf.Valid() {
		c.log.Warn("purging stale cache entry",
			"stage", key.Stage.String(),
			"param_hash", key.ParamHash,
			"input_hash", key.InputHash)
		c.removeLocked(e)
		c.misses++
		return nil, false
	}
	clone := e.buf.Clone()
	if clone == nil {
		c.removeLocked(e)
		c.misses++
		return nil, false
	}
	e.accessCount++
	e.lastAccess = time.Now()
	c.hits++
	return clone, true
}

// Put stores buf under key, taking ownership of it. Refused when the
// stage is not cache-worthy, the buffer is not intact, or it could
// never fit under the ceiling; refused buffers are closed. Reports
// whether the entry was stored.
func (c *Cache) Put(key Key, buf *imaging.Buffer) bool {
	if buf == nil {
		return false
	}
	if !key.Stage.Cacheable() || !buf.Valid() {
		buf.Close()
		return false
	}
	size := buf.SizeBytes()
	if size > c.limit {
		buf.Close()
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries[key]; ok {
		c.removeLocked(old)
	}
	for c.used+size > c.limit && len(c.entries) > 0 {
		c.removeLocked(c.victimLocked())
		c.evictions++
	}
	c.entries[key] = &entry{
		key:         key,
		buf:         buf,
		paramHash:   key.ParamHash,
		inputHash:   key.InputHash,
		size:        size,
		accessCount: 1,
		lastAccess:  time.Now(),
	}
	c.used += size
	c.checkPressureLocked()
	return true
}

// InvalidateFrom drops the given stage and every later one. Geometry
// and resolution changes ripple forward, so everything downstream of
// the edit is garbage.
func (c *Cache) InvalidateFrom(from stage.Stage) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key, e := range c.entries {
		if key.Stage >= from {
			c.removeLocked(e)
			n++
		}
	}
	if n > 0 {
		c.log.Debug("invalidated cached stages",
			"from", from.String(), "removed", n)
	}
	return n
}

// Clear drops everything. Used on image swap, explicit reset, and
// low-memory signals.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		c.removeLocked(e)
	}
	c.lastBand = 0
}

// TrimTo evicts low-score entries until usage sits at or below the
// given fraction of the ceiling, keeping the retained floor. Memory
// watchers call this to shed load without wiping warm state.
func (c *Cache) TrimTo(fraction float64) int64 {
	fraction = math.Min(math.Max(fraction, 0), 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	before := c.used
	c.purgeToLocked(int64(fraction * float64(c.limit)))
	if c.used < before {
		c.log.Info("cache trimmed",
			"released", before-c.used, "used", c.used)
	}
	if float64(c.used) < warnFrac*float64(c.limit) {
		c.lastBand = 0
	}
	return before - c.used
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:    len(c.entries),
		UsedBytes:  c.used,
		LimitBytes: c.limit,
		Hits:       c.hits,
		Misses:     c.misses,
		Evictions:  c.evictions,
		Purges:     c.purges,
	}
}

func (c *Cache) Usage() (used, limit int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used, c.limit
}

func (c *Cache) removeLocked(e *entry) {
	delete(c.entries, e.key)
	c.used -= e.size
	e.buf.Close()
}

func (c *Cache) victimLocked() *entry {
	now := time.Now()
	var victim *entry
	best := math.Inf(1)
	for _, e := range c.entries {
		if s := e.score(now); s < best {
			best = s
			victim = e
		}
	}
	return victim
}

// purgeToLocked sheds lowest-score entries until used fits under
// target, stopping at the retained floor. Insertion eviction in Put
// is not floored: making room for a just-rendered buffer beats
// protecting colder ones.
func (c *Cache) purgeToLocked(target int64) {
	for c.used > target && len(c.entries) > minEntries {
		c.removeLocked(c.victimLocked())
		c.evictions++
	}
}

func (c *Cache) checkPressureLocked() {
	ratio := float64(c.used) / float64(c.limit)
	band := 0
	switch {
	case ratio >= emergencyFrac:
		band = 3
	case ratio >= criticalFrac:
		band = 2
	case ratio >= warnFrac:
		band = 1
	}
	if band == 3 {
		c.log.Error("cache memory emergency, purging",
			"used", c.used, "limit", c.limit)
		c.purgeToLocked(int64(purgeToFrac * float64(c.limit)))
		c.purges++
		c.lastBand = 1
		return
	}
	if band > c.lastBand {
		msg := "cache memory warning"
		if band == 2 {
			msg = "cache memory critical"
		}
		c.log.Warn(msg, "used", c.used, "limit", c.limit)
	}
	c.lastBand = band
}
