// Package build runs a full compile pass: it waits for route data, discovers
// the project's modules, compiles each for the browser and the server, and
// writes both artifact trees.
package build

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/toastdotdev/toast/internal/cache"
	"github.com/toastdotdev/toast/internal/compiler"
	"github.com/toastdotdev/toast/internal/errors"
	"github.com/toastdotdev/toast/internal/importmap"
	"github.com/toastdotdev/toast/internal/logging"
	"github.com/toastdotdev/toast/internal/registry"
	"github.com/toastdotdev/toast/internal/routes"
	"github.com/toastdotdev/toast/internal/scanner"
	"github.com/toastdotdev/toast/internal/session"
)

// Options configures an Orchestrator.
type Options struct {
	InputDir  string
	OutputDir string
	// SrcDir holds the modules, relative to InputDir.
	SrcDir string
	// TmpDir receives server artifacts, relative to InputDir.
	TmpDir string
	// ImportMap is the import map location, relative to OutputDir.
	ImportMap  string
	Extensions []string
	Exclude    []string
	Workers    int
	// DrainTimeout bounds the wait for route data. Zero waits for ctx only.
	DrainTimeout time.Duration
	// Store persists compiled artifacts between runs. Nil disables persistence.
	Store         cache.Store
	MemoryEntries int
}

// DefaultOptions returns the conventional project layout.
func DefaultOptions() Options {
	return Options{
		InputDir:   ".",
		OutputDir:  "public",
		SrcDir:     "src",
		TmpDir:     ".tmp",
		ImportMap:  importmap.DefaultPath,
		Extensions: []string{".js"},
		Workers:    4,
	}
}

// Result describes a successful run.
type Result struct {
	// Slugs lists the registered route slugs in arrival order.
	Slugs []string `json:"slugs"`
	// Modules lists the browser URL of every compiled module, sorted.
	Modules []string         `json:"modules"`
	Routes  []*routes.Record `json:"routes"`
	Stats   cache.Stats      `json:"cache"`
	// Duration is the wall time of the run.
	Duration time.Duration `json:"duration"`
}

// Orchestrator performs builds. Runs are serialized by the session manager.
type Orchestrator struct {
	opts    Options
	logger  logging.Logger
	metrics *Metrics
	// artifacts lives across runs so rebuilds hit the in-memory memo.
	artifacts *cache.Cache
}

// New creates an orchestrator. Zero-valued options fall back to DefaultOptions.
func New(opts Options, logger logging.Logger) *Orchestrator {
	def := DefaultOptions()
	if opts.InputDir == "" {
		opts.InputDir = def.InputDir
	}
	if opts.OutputDir == "" {
		opts.OutputDir = def.OutputDir
	}
	if opts.SrcDir == "" {
		opts.SrcDir = def.SrcDir
	}
	if opts.TmpDir == "" {
		opts.TmpDir = def.TmpDir
	}
	if opts.ImportMap == "" {
		opts.ImportMap = def.ImportMap
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = def.Extensions
	}
	if opts.Workers < 1 {
		opts.Workers = def.Workers
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		opts:    opts,
		logger:  logger.WithComponent("build"),
		metrics: NewMetrics(),
	}
}

// Options returns the effective options.
func (o *Orchestrator) Options() Options {
	return o.opts
}

// Metrics returns the run metrics.
func (o *Orchestrator) Metrics() *Metrics {
	return o.metrics
}

// Run performs one build. It opens a session on mgr, so producers can send
// route data as soon as Run starts; the session is released when Run returns.
// A failed compile writes no artifacts.
func (o *Orchestrator) Run(ctx context.Context, mgr *session.Manager) (*Result, error) {
	start := time.Now()
	perf := logging.StartOperation(o.logger, "build")

	sess, err := mgr.Begin()
	if err != nil {
		return nil, err
	}
	defer mgr.Finish(sess)

	o.logger.Debug(ctx, "Build session opened", "session", sess.ID,
		"input_dir", o.opts.InputDir, "output_dir", o.opts.OutputDir)

	result, err := o.run(ctx, sess)
	duration := time.Since(start)
	o.metrics.RecordBuild(result, duration, err)
	if err != nil {
		perf.EndWithError(ctx, err)
		return nil, err
	}
	result.Duration = duration
	perf.End(ctx,
		"modules", len(result.Modules),
		"routes", len(result.Slugs),
		"cache_hits", result.Stats.Hits+result.Stats.StoreHits,
		"cache_misses", result.Stats.Misses)
	return result, nil
}

// Incremental runs a build and reports only the route slugs. Failures are
// logged and yield an empty list.
func Incremental(ctx context.Context, o *Orchestrator, mgr *session.Manager) []string {
	result, err := o.Run(ctx, mgr)
	if err != nil {
		errors.NewErrorHandler(o.logger).Handle(ctx, err)
		return []string{}
	}
	return result.Slugs
}

func (o *Orchestrator) run(ctx context.Context, sess *session.Session) (*Result, error) {
	if err := os.MkdirAll(o.opts.OutputDir, 0o755); err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeMkdirFailed, "failed to create output directory", o.opts.OutputDir)
	}

	im, err := importmap.Load(filepath.Join(o.opts.OutputDir, filepath.FromSlash(o.opts.ImportMap)))
	if err != nil {
		return nil, err
	}
	o.logger.Debug(ctx, "Import map loaded", "entries", im.Len())

	tmpDir := filepath.Join(o.opts.InputDir, o.opts.TmpDir)
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeMkdirFailed, "failed to create server staging directory", tmpDir)
	}

	records, err := o.drain(ctx, sess)
	if err != nil {
		return nil, err
	}

	reg := registry.NewRegistry(o.opts.InputDir)
	ids, err := scanner.NewModuleScanner(reg, scanner.Options{
		SrcDir:     o.opts.SrcDir,
		Extensions: o.opts.Extensions,
		Exclude:    o.opts.Exclude,
	}).Scan()
	if err != nil {
		return nil, err
	}
	o.logger.Debug(ctx, "Modules discovered", "count", len(ids))

	artifactCache, err := o.cacheFor(reg)
	if err != nil {
		return nil, err
	}
	comp := compiler.New(reg, im, compiler.Options{Extensions: o.opts.Extensions})

	artifacts, err := o.compileAll(ctx, artifactCache, comp, ids)
	if err != nil {
		return nil, err
	}

	if err := o.writeAll(ids, artifacts, tmpDir); err != nil {
		return nil, err
	}

	result := &Result{
		Slugs:   make([]string, 0, len(records)),
		Modules: make([]string, 0, len(ids)),
		Routes:  records,
		Stats:   artifactCache.Stats(),
	}
	for _, rec := range records {
		result.Slugs = append(result.Slugs, rec.Slug)
	}
	for _, id := range ids {
		result.Modules = append(result.Modules, "/"+string(id))
	}
	return result, nil
}

// cacheFor returns the artifact cache reset to reg, creating it on the first
// run.
func (o *Orchestrator) cacheFor(reg *registry.Registry) (*cache.Cache, error) {
	if o.artifacts == nil {
		c, err := cache.New(reg, cache.Options{
			MemoryEntries: o.opts.MemoryEntries,
			Store:         o.opts.Store,
			Logger:        o.logger,
		})
		if err != nil {
			return nil, err
		}
		o.artifacts = c
		return c, nil
	}
	o.artifacts.Reset(reg)
	return o.artifacts, nil
}

func (o *Orchestrator) drain(ctx context.Context, sess *session.Session) ([]*routes.Record, error) {
	if o.opts.DrainTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.DrainTimeout)
		defer cancel()
	}
	records, err := sess.Barrier.Drain(ctx)
	if err != nil {
		if errors.IsProtocolError(err) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrorTypeProtocol, errors.ErrCodeDrainTimeout,
			"stopped waiting for route data before data sourcing ended").
			WithContext("pending_events", sess.Barrier.Pending())
	}
	o.logger.Debug(ctx, "Route data collected", "routes", len(records))
	return records, nil
}

// compileAll builds both variants of every module. Every module is attempted
// so the reported failure is the one with the smallest ID, not whichever
// worker failed first.
func (o *Orchestrator) compileAll(ctx context.Context, c *cache.Cache, comp *compiler.Compiler, ids []registry.ID) ([]compiler.Artifacts, error) {
	artifacts := make([]compiler.Artifacts, len(ids))
	failures := errors.NewErrorCollector()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			browser, err := c.JSForBrowser(gctx, id, comp)
			if err != nil {
				failures.Add(string(id), err)
				return nil
			}
			server, err := c.JSForServer(gctx, id, comp)
			if err != nil {
				failures.Add(string(id), err)
				return nil
			}
			artifacts[i] = compiler.Artifacts{Browser: browser, Server: server}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if failures.HasErrors() {
		o.logger.Debug(ctx, "Compilation failed", "failed_modules", failures.Len())
		return nil, failures.First()
	}
	return artifacts, nil
}

func (o *Orchestrator) writeAll(ids []registry.ID, artifacts []compiler.Artifacts, tmpDir string) error {
	for i, id := range ids {
		rel := filepath.FromSlash(string(id))
		if err := writeArtifact(filepath.Join(o.opts.OutputDir, rel), artifacts[i].Browser); err != nil {
			return err
		}
		if err := writeArtifact(filepath.Join(tmpDir, rel), artifacts[i].Server); err != nil {
			return err
		}
	}
	return nil
}

func writeArtifact(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WrapIO(err, errors.ErrCodeMkdirFailed, "failed to create artifact directory", filepath.Dir(path))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.WrapIO(err, errors.ErrCodeWriteFailed, "failed to write artifact", path)
	}
	return nil
}
