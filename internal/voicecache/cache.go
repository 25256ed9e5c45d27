// Package voicecache keeps loaded voice models resident up to a memory
// ceiling, evicting in least-recently-used order. Models are expensive
// both to load and to keep, so the cache measures the process RSS delta
// around each load as the entry's cost estimate.
package voicecache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sync/singleflight"

	"github.com/vocalcast/speakerd/internal/synth"
)

type entry struct {
	model   synth.Model
	costMiB float64
}

// Cache is safe for concurrent use. Loads for the same path are
// deduplicated; unrelated paths load concurrently.
type Cache struct {
	engine     synth.Engine
	ceilingMiB float64
	log        *slog.Logger

	mu    sync.Mutex
	lru   *lru.LRU[string, *entry]
	total float64

	group singleflight.Group
	rss   func() (float64, error)
}

func New(engine synth.Engine, ceilingMiB int, log *slog.Logger) (*Cache, error) {
	if ceilingMiB <= 0 {
		return nil, fmt.Errorf("cache ceiling must be positive")
	}
	c := &Cache{
		engine:     engine,
		ceilingMiB: float64(ceilingMiB),
		log:        log.With(slog.String("component", "voice-cache")),
		rss:        processRSS,
	}
	// Entry count is effectively unbounded; the memory ceiling is the
	// real limit and is enforced in insert.
	l, err := lru.NewLRU[string, *entry](1<<20, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

// Get returns the model for path, loading it on first access. At most
// one load runs per path at a time.
func (c *Cache) Get(ctx context.Context, path string) (synth.Model, error) {
	c.mu.Lock()
	if e, ok := c.lru.Get(path); ok {
		c.mu.Unlock()
		return e.model, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(path, func() (interface{}, error) {
		// Re-check: a concurrent caller may have completed the load
		// between the miss and the flight.
		c.mu.Lock()
		if e, ok := c.lru.Get(path); ok {
			c.mu.Unlock()
			return e.model, nil
		}
		c.mu.Unlock()

		before, _ := c.rss()
		model, err := c.engine.Load(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("load voice model: %w", err)
		}
		after, _ := c.rss()

		cost := after - before
		if cost < 1 {
			// RSS deltas are an approximation; never let an entry
			// count as free or the ceiling stops meaning anything.
			cost = 1
		}
		c.insert(path, &entry{model: model, costMiB: cost})
		c.log.Info("voice model loaded",
			slog.String("path", path),
			slog.Float64("estimated_mib", cost))
		return model, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(synth.Model), nil
}

func (c *Cache) insert(path string, e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Add(path, e)
	c.total += e.costMiB
	// A single model larger than the ceiling evicts everything else and
	// stays resident; the bound degrades to best-effort in that case.
	for c.total > c.ceilingMiB && c.lru.Len() > 1 {
		c.lru.RemoveOldest()
	}
}

// onEvict runs under c.mu via the LRU callbacks.
func (c *Cache) onEvict(path string, e *entry) {
	c.total -= e.costMiB
	if err := e.model.Close(); err != nil {
		c.log.Warn("closing evicted model failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
	c.log.Info("voice model evicted",
		slog.String("path", path),
		slog.Float64("estimated_mib", e.costMiB))
}

// TotalMiB reports the estimated resident cost of live entries.
func (c *Cache) TotalMiB() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Len reports the number of cached models.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Purge evicts every cached model.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

func processRSS() (float64, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	info, err := proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return float64(info.RSS) / (1024 * 1024), nil
}
