// Package snapshot caches the latest telemetry of each device and refreshes
// it in the background after the device is invalidated.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fleetconsole/pkg/models"
	"fleetconsole/pkg/worker"
)

// Kind selects which telemetry snapshot of a device is meant.
type Kind string

const (
	KindStatus  Kind = "status"
	KindMetrics Kind = "metrics"
)

// Fetcher loads snapshots from the backend.
type Fetcher interface {
	FetchDeviceStatus(ctx context.Context, deviceID int64) (models.Snapshot, error)
	FetchDeviceMetrics(ctx context.Context, deviceID int64) (models.Snapshot, error)
}

type key struct {
	deviceID int64
	kind     Kind
}

type entry struct {
	snapshot  models.Snapshot
	fetchedAt time.Time
}

type refreshTask struct {
	key        key
	generation uint64
}

type refreshResult struct {
	task     refreshTask
	snapshot models.Snapshot
	err      error
}

// Cache holds one snapshot per device and kind. A snapshot is replaced
// wholesale, never merged. It is safe for concurrent use.
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration
	now     func() time.Time
	pool    *worker.Pool[refreshTask, refreshResult]

	mu          sync.Mutex
	entries     map[key]entry
	generations map[key]uint64
}

// NewCache creates a cache whose entries expire after ttl; ttl <= 0 keeps
// entries until invalidated.
func NewCache(fetcher Fetcher, ttl time.Duration, workers, queueSize int) *Cache {
	c := &Cache{
		fetcher:     fetcher,
		ttl:         ttl,
		now:         time.Now,
		entries:     make(map[key]entry),
		generations: make(map[key]uint64),
	}
	c.pool = worker.NewPool(workers, "SnapshotRefresh", queueSize, c.refresh)
	return c
}

// Start runs the background refresh workers until ctx is cancelled.
func (c *Cache) Start(ctx context.Context) {
	c.pool.Start(ctx)
	go c.collect()
}

// Get returns the cached snapshot, fetching it when absent or expired.
func (c *Cache) Get(ctx context.Context, deviceID int64, kind Kind) (models.Snapshot, error) {
	k := key{deviceID: deviceID, kind: kind}

	c.mu.Lock()
	cached, ok := c.entries[k]
	generation := c.generations[k]
	c.mu.Unlock()
	if ok && !c.expired(cached) {
		return cached.snapshot, nil
	}

	snapshot, err := c.fetch(ctx, k)
	if err != nil {
		return models.Snapshot{}, err
	}
	c.store(refreshTask{key: k, generation: generation}, snapshot)
	return snapshot, nil
}

// Invalidate drops both snapshots of a device and queues a background
// refresh for each.
func (c *Cache) Invalidate(deviceID int64) {
	for _, kind := range []Kind{KindStatus, KindMetrics} {
		k := key{deviceID: deviceID, kind: kind}

		c.mu.Lock()
		delete(c.entries, k)
		c.generations[k]++
		task := refreshTask{key: k, generation: c.generations[k]}
		c.mu.Unlock()

		c.pool.Submit(task)
	}
	slog.Debug("Invalidated device telemetry", "component", "SnapshotCache", "device_id", deviceID)
}

func (c *Cache) refresh(ctx context.Context, task refreshTask) refreshResult {
	snapshot, err := c.fetch(ctx, task.key)
	return refreshResult{task: task, snapshot: snapshot, err: err}
}

func (c *Cache) collect() {
	for result := range c.pool.Results() {
		if result.err != nil {
			slog.Warn("Background refresh failed", "component", "SnapshotCache", "device_id", result.task.key.deviceID, "kind", result.task.key.kind, "error", result.err)
			continue
		}
		c.store(result.task, result.snapshot)
	}
}

// store keeps snapshot unless the key was invalidated after the fetch began.
func (c *Cache) store(task refreshTask, snapshot models.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[task.key] != task.generation {
		return
	}
	c.entries[task.key] = entry{snapshot: snapshot, fetchedAt: c.now()}
}

func (c *Cache) expired(e entry) bool {
	return c.ttl > 0 && c.now().Sub(e.fetchedAt) >= c.ttl
}

func (c *Cache) fetch(ctx context.Context, k key) (models.Snapshot, error) {
	switch k.kind {
	case KindStatus:
		return c.fetcher.FetchDeviceStatus(ctx, k.deviceID)
	case KindMetrics:
		return c.fetcher.FetchDeviceMetrics(ctx, k.deviceID)
	}
	return models.Snapshot{}, fmt.Errorf("unknown snapshot kind %q", k.kind)
}
