package refdata

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ironsheep/plotting-mcp/internal/logger"
)

// Cache memoizes datasets per key for the lifetime of the process.
//
// Concurrent first readers of a key share a single load and receive the same
// *Dataset. Failed loads are not remembered: the next Get tries storage again.
// Datasets are never evicted; the catalog is small and fixed.
type Cache struct {
	loader Loader
	log    *logger.Logger

	mu       sync.RWMutex
	datasets map[Key]*Dataset

	group singleflight.Group
	loads atomic.Int64
}

// NewCache creates an empty cache backed by loader.
func NewCache(loader Loader, log *logger.Logger) *Cache {
	if log == nil {
		log = logger.Nop()
	}
	return &Cache{
		loader:   loader,
		log:      log.WithComponent("refdata"),
		datasets: make(map[Key]*Dataset),
	}
}

// Get returns the dataset for key, loading it on first use.
//
// The load itself is not bound to ctx: a caller that gives up does not fail
// the load for the other callers waiting on it. Get returns early with the
// context error when ctx ends first.
func (c *Cache) Get(ctx context.Context, key Key) (*Dataset, error) {
	if ds := c.lookup(key); ds != nil {
		return ds, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key.String(), func() (interface{}, error) {
		// A load that finished between lookup and DoChan already stored it.
		if ds := c.lookup(key); ds != nil {
			return ds, nil
		}

		start := time.Now()
		c.loads.Add(1)
		ds, err := c.loader.Load(loadCtx, key)
		if err != nil {
			c.log.FromContext(loadCtx).WithError(err).Warn("reference dataset load failed", "key", key.String())
			return nil, err
		}

		c.mu.Lock()
		c.datasets[key] = ds
		c.mu.Unlock()

		points, lines, polygons := ds.Counts()
		c.log.Info("reference dataset loaded",
			"key", key.String(),
			"version", ds.Version,
			"features", ds.Len(),
			"points", points,
			"lines", lines,
			"polygons", polygons,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return ds, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Dataset), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) lookup(key Key) *Dataset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.datasets[key]
}

// Loads returns how many times storage was read.
func (c *Cache) Loads() int64 {
	return c.loads.Load()
}

// Warm loads keys ahead of the first request. Failures are logged and
// skipped; the number of datasets now resident is returned.
func (c *Cache) Warm(ctx context.Context, keys []Key) int {
	n := 0
	for _, key := range keys {
		if ctx.Err() != nil {
			break
		}
		if _, err := c.Get(ctx, key); err != nil {
			continue
		}
		n++
	}
	return n
}

// Status describes one catalog key for health and list_datasets output.
type Status struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Tier     string `json:"tier"`
	Present  bool   `json:"present"`
	Loaded   bool   `json:"loaded"`
	Version  string `json:"version,omitempty"`
	Features int    `json:"features,omitempty"`
}

type locator interface {
	Locate(key Key) (string, bool)
}

// Status reports every catalog key. Present is known only when the loader
// can locate files without loading them.
func (c *Cache) Status() []Status {
	loc, canLocate := c.loader.(locator)

	keys := SupportedKeys()
	out := make([]Status, 0, len(keys))
	for _, key := range keys {
		s := Status{Key: key.String(), Name: key.Name, Tier: string(key.Tier)}
		if ds := c.lookup(key); ds != nil {
			s.Present = true
			s.Loaded = true
			s.Version = ds.Version
			s.Features = ds.Len()
		} else if canLocate {
			_, s.Present = loc.Locate(key)
		}
		out = append(out, s)
	}
	return out
}
