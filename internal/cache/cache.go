// Package cache memoizes compiled module artifacts per target.
//
// Entries are addressed by a content key, so an unchanged module under an
// unchanged import map and module set is never compiled twice. A Store makes
// entries outlive a single build.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/toastdotdev/toast/internal/compiler"
	"github.com/toastdotdev/toast/internal/errors"
	"github.com/toastdotdev/toast/internal/logging"
	"github.com/toastdotdev/toast/internal/registry"
)

// DefaultMemoryEntries bounds the in-memory memo when Options leaves it unset.
const DefaultMemoryEntries = 4096

// Options configures a Cache.
type Options struct {
	// MemoryEntries is the LRU capacity of the in-process memo.
	MemoryEntries int
	// Store persists artifacts across builds. Nil keeps the cache in memory.
	Store Store
	// Logger receives store failures, which never fail a compile.
	Logger logging.Logger
}

// Stats reports cache activity.
type Stats struct {
	Hits      int64 `json:"hits"`
	StoreHits int64 `json:"store_hits"`
	Misses    int64 `json:"misses"`
	Stored    int64 `json:"stored"`
	Entries   int   `json:"entries"`
}

// Cache owns the source registry and the artifacts compiled from it. One
// Cache may serve many builds; see Reset.
type Cache struct {
	registry atomic.Pointer[registry.Registry]
	memo     *lru.Cache[string, []byte]
	store    Store
	logger   logging.Logger

	hits      int64
	storeHits int64
	misses    int64
	stored    int64
}

// New creates a cache over reg.
func New(reg *registry.Registry, opts Options) (*Cache, error) {
	size := opts.MemoryEntries
	if size <= 0 {
		size = DefaultMemoryEntries
	}
	memo, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError, "failed to create artifact memo", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Cache{
		memo:   memo,
		store:  opts.Store,
		logger: logger.WithComponent("cache"),
	}
	c.registry.Store(reg)
	return c, nil
}

// Registry returns the registry the cache reads sources from.
func (c *Cache) Registry() *registry.Registry {
	return c.registry.Load()
}

// Reset starts a new build over reg. Activity counters restart; memoized
// artifacts are kept, since their keys already cover content, module set and
// import map.
func (c *Cache) Reset(reg *registry.Registry) {
	c.registry.Store(reg)
	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.storeHits, 0)
	atomic.StoreInt64(&c.misses, 0)
	atomic.StoreInt64(&c.stored, 0)
}

// Key derives the artifact key of src for target. The import map only
// influences browser output, so server keys leave it out.
func Key(src *registry.Source, target compiler.Target, importMapDigest, registryDigest string) string {
	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	write(compiler.FormatVersion)
	write(target.String())
	write(string(src.ID))
	write(src.Hash)
	write(registryDigest)
	if target == compiler.TargetBrowser {
		write(importMapDigest)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// JSForBrowser returns the browser artifact of id.
func (c *Cache) JSForBrowser(ctx context.Context, id registry.ID, comp *compiler.Compiler) ([]byte, error) {
	return c.get(ctx, id, compiler.TargetBrowser, comp)
}

// JSForServer returns the server artifact of id.
func (c *Cache) JSForServer(ctx context.Context, id registry.ID, comp *compiler.Compiler) ([]byte, error) {
	return c.get(ctx, id, compiler.TargetServer, comp)
}

func (c *Cache) get(ctx context.Context, id registry.ID, target compiler.Target, comp *compiler.Compiler) ([]byte, error) {
	reg := c.registry.Load()
	src, ok := reg.Get(id)
	if !ok {
		return nil, errors.NewIOError(errors.ErrCodeFileNotFound, "module is not registered", nil).
			WithSource(string(id))
	}

	key := Key(src, target, comp.ImportMap().Digest(), reg.Digest())

	if data, ok := c.memo.Get(key); ok {
		atomic.AddInt64(&c.hits, 1)
		return data, nil
	}

	if c.store != nil {
		data, found, err := c.store.Get(ctx, key)
		switch {
		case err != nil:
			c.logger.Warn(ctx, err, "Artifact store read failed, compiling",
				"source_id", id, "target", target.String())
		case found:
			atomic.AddInt64(&c.storeHits, 1)
			c.memo.Add(key, data)
			return data, nil
		}
	}

	atomic.AddInt64(&c.misses, 1)
	data, err := comp.Compile(src, target)
	if err != nil {
		return nil, err
	}
	c.memo.Add(key, data)

	if c.store != nil {
		if err := c.store.Put(ctx, key, data); err != nil {
			c.logger.Warn(ctx, err, "Artifact store write failed",
				"source_id", id, "target", target.String())
		} else {
			atomic.AddInt64(&c.stored, 1)
		}
	}
	return data, nil
}

// Stats returns a snapshot of cache activity.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      atomic.LoadInt64(&c.hits),
		StoreHits: atomic.LoadInt64(&c.storeHits),
		Misses:    atomic.LoadInt64(&c.misses),
		Stored:    atomic.LoadInt64(&c.stored),
		Entries:   c.memo.Len(),
	}
}

// Purge drops every memoized artifact. Persisted entries are kept.
func (c *Cache) Purge() {
	c.memo.Purge()
}
