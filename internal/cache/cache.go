// Package cache keeps loaded projects in memory and writes them behind.
package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/serroba/taskgrid/internal/lock"
	"github.com/serroba/taskgrid/internal/project"
	"github.com/serroba/taskgrid/internal/storage"
	"go.uber.org/zap"
)

// DefaultFlushInterval is how often dirty projects are written.
const DefaultFlushInterval = 2 * time.Second

// Locker serializes access to one project's live document.
type Locker interface {
	Lock(name string) (unlock func())
}

// Config holds configuration for creating a Cache.
type Config struct {
	Store         storage.Store
	Locks         Locker
	FlushInterval time.Duration
	Logger        *zap.Logger
}

// Cache owns the authoritative in-memory copy of every loaded project.
//
// Live documents returned by Get are mutated only under the project's lock.
// The flush cycle takes the same lock while it copies a document, then writes
// the copy with no lock held.
type Cache struct {
	mu    sync.Mutex
	docs  map[string]*project.Document
	dirty map[string]struct{}

	// flushMu keeps the periodic and the final flush from interleaving.
	flushMu sync.Mutex

	store    storage.Store
	locks    Locker
	interval time.Duration
	logger   *zap.Logger

	running  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a cache on top of a store.
func New(cfg Config) *Cache {
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = DefaultFlushInterval
	}

	locks := cfg.Locks
	if locks == nil {
		locks = lock.NewRegistry()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Cache{
		docs:     make(map[string]*project.Document),
		dirty:    make(map[string]struct{}),
		store:    cfg.Store,
		locks:    locks,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Get returns the live document for a project, loading it on first access.
// A project that was never saved starts as the empty skeleton.
func (c *Cache) Get(name string) (*project.Document, error) {
	c.mu.Lock()
	doc, exists := c.docs[name]
	c.mu.Unlock()

	if exists {
		return doc, nil
	}

	loaded, err := c.store.Load(name)

	switch {
	case errors.Is(err, storage.ErrDocumentNotFound):
		loaded = project.NewDocument()
	case err != nil:
		return nil, fmt.Errorf("load %s: %w", name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check: another caller may have loaded it meanwhile
	if doc, exists = c.docs[name]; exists {
		return doc, nil
	}

	c.docs[name] = loaded
	cachedDocuments.Set(float64(len(c.docs)))

	return loaded, nil
}

// Snapshot returns a deep copy of a project that is safe to use without any lock.
// It takes the project lock itself, so callers must not already hold it.
func (c *Cache) Snapshot(name string) (*project.Document, error) {
	unlock := c.locks.Lock(name)
	defer unlock()

	doc, err := c.Get(name)
	if err != nil {
		return nil, err
	}

	return doc.Clone(), nil
}

// Put replaces a project's document and marks it dirty.
func (c *Cache) Put(name string, doc *project.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.docs[name] = doc
	c.dirty[name] = struct{}{}
	cachedDocuments.Set(float64(len(c.docs)))
	dirtyDocuments.Set(float64(len(c.dirty)))
}

// MarkDirty schedules a loaded project for the next flush.
func (c *Cache) MarkDirty(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.docs[name]; !ok {
		return
	}

	c.dirty[name] = struct{}{}
	dirtyDocuments.Set(float64(len(c.dirty)))
}

// IsLoaded reports whether a project is held in memory.
func (c *Cache) IsLoaded(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.docs[name]

	return ok
}

// IsDirty reports whether a project has changes not yet written.
func (c *Cache) IsDirty(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.dirty[name]

	return ok
}

// Loaded returns the names of all projects held in memory, sorted.
func (c *Cache) Loaded() []string {
	c.mu.Lock()
	names := make([]string, 0, len(c.docs))

	for name := range c.docs {
		names = append(names, name)
	}
	c.mu.Unlock()

	slices.Sort(names)

	return names
}

// FlushAll writes every dirty project. A project whose write fails is marked
// dirty again for the next cycle. The returned error joins all failures.
func (c *Cache) FlushAll(ctx context.Context) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	start := time.Now()
	defer func() { flushDurationSeconds.Observe(time.Since(start).Seconds()) }()

	var errs []error

	for _, name := range c.dirtyNames() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)

			break
		}

		doc, ok := c.take(name)
		if !ok {
			continue
		}

		if err := c.store.Save(name, doc); err != nil {
			c.MarkDirty(name)
			flushFailuresTotal.Inc()
			c.logger.Error("flush failed",
				zap.String("project", name),
				zap.Int("version", doc.Version),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("save %s: %w", name, err))

			continue
		}

		documentsFlushedTotal.Inc()
		c.logger.Debug("project flushed", zap.String("project", name), zap.Int("version", doc.Version))
	}

	return errors.Join(errs...)
}

// Run flushes dirty projects every interval until ctx is cancelled or
// Shutdown is called.
func (c *Cache) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("cache flush loop already running")
	}
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info("flush loop started", zap.Duration("interval", c.interval))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.stop:
			return nil
		case <-ticker.C:
			// Failures are logged per project and retried next tick.
			_ = c.FlushAll(ctx)
		}
	}
}

// Shutdown stops the flush loop and performs one final flush.
func (c *Cache) Shutdown(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.stop) })

	if c.running.Load() {
		select {
		case <-c.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := c.FlushAll(ctx)
	if err != nil {
		c.logger.Error("final flush incomplete", zap.Error(err))
	} else {
		c.logger.Info("final flush complete")
	}

	return err
}

func (c *Cache) dirtyNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.dirty))
	for name := range c.dirty {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// take copies a dirty project and clears its mark. Any mutation after the
// copy re-marks the project, so it is never lost.
func (c *Cache) take(name string) (*project.Document, bool) {
	unlock := c.locks.Lock(name)
	defer unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	doc, ok := c.docs[name]
	if !ok {
		delete(c.dirty, name)

		return nil, false
	}

	if _, dirty := c.dirty[name]; !dirty {
		return nil, false
	}

	delete(c.dirty, name)
	dirtyDocuments.Set(float64(len(c.dirty)))

	return doc.Clone(), true
}
