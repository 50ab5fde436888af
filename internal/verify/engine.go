// Package verify orchestrates a verification run: it builds a call graph per
// configured adapter, assembles data chains, checks every contract and
// aggregates the outcome. Adapters run concurrently; each owns its builder
// and graph.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/dcverify/internal/builder"
	"github.com/leapstack-labs/dcverify/internal/cache"
	"github.com/leapstack-labs/dcverify/internal/callgraph"
	"github.com/leapstack-labs/dcverify/internal/chain"
	"github.com/leapstack-labs/dcverify/internal/contract"
	"github.com/leapstack-labs/dcverify/internal/discovery"
	"github.com/leapstack-labs/dcverify/internal/frontend/python"
	"github.com/leapstack-labs/dcverify/internal/frontend/typescript"
	"github.com/leapstack-labs/dcverify/internal/openapi"
)

// SourceExtensions are the files a typescript adapter walks.
var SourceExtensions = []string{".ts", ".tsx"}

// Config holds engine configuration.
type Config struct {
	Adapters []Adapter
	// EntryPoint overrides entry discovery for fastapi adapters.
	EntryPoint string
	// MaxDepth bounds file recursion; zero is unbounded.
	MaxDepth int
	// Rules maps rule IDs to a severity or "off".
	Rules map[string]string
	// CachePath is the cache database; empty disables caching.
	CachePath string
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Engine runs verifications. It is safe to call Run repeatedly, as watch
// mode does, but not concurrently.
type Engine struct {
	adapters   []Adapter
	entryPoint string
	maxDepth   int
	checker    *contract.Checker
	logger     *slog.Logger

	store   *cache.Store
	storeMu sync.Mutex
}

// New creates an engine, opening the cache when configured.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	rules, err := contract.ConfigFromSettings(cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("failed to configure rules: %w", err)
	}

	e := &Engine{
		adapters:   cfg.Adapters,
		entryPoint: cfg.EntryPoint,
		maxDepth:   cfg.MaxDepth,
		checker:    contract.NewChecker(rules, contract.WithLogger(logger)),
		logger:     logger,
	}

	if cfg.CachePath != "" {
		store, err := cache.Open(cfg.CachePath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache: %w", err)
		}
		e.store = store
	}
	return e, nil
}

// Close releases the cache.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// Checker returns the contract checker in use.
func (e *Engine) Checker() *contract.Checker {
	return e.checker
}

// Run performs a full verification. Soft failures are reported as
// diagnostics; parse, depth and cache corruption errors abort the run.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	result := &Result{StartedAt: time.Now()}

	run := e.startRun()
	if run != nil {
		result.RunID = run.ID
	}

	adapters, diags, err := e.runAdapters(ctx, true)
	if err != nil {
		e.finishRun(run, Summary{}, err)
		return nil, err
	}

	result.Adapters = adapters
	result.Diagnostics = diags
	for _, ar := range adapters {
		for _, c := range ar.Chains {
			result.Chains = append(result.Chains, c)
			result.Summary.Add(c)
		}
	}
	result.Duration = time.Since(result.StartedAt)

	e.finishRun(run, result.Summary, nil)
	e.logger.Info("verification complete",
		slog.Int("chains", result.Summary.TotalChains),
		slog.Int("critical", result.Summary.Critical),
		slog.Int("warnings", result.Summary.Warnings),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// BuildGraphs builds (or loads) every adapter's call graph without
// assembling chains.
func (e *Engine) BuildGraphs(ctx context.Context) ([]*AdapterResult, []Diagnostic, error) {
	return e.runAdapters(ctx, false)
}

func (e *Engine) runAdapters(ctx context.Context, withChains bool) ([]*AdapterResult, []Diagnostic, error) {
	results := make([]*AdapterResult, len(e.adapters))
	diags := make([][]Diagnostic, len(e.adapters))

	g, gctx := errgroup.WithContext(ctx)
	for i, a := range e.adapters {
		g.Go(func() error {
			r := &adapterRun{engine: e, index: i, adapter: a}
			ar, err := r.run(gctx, withChains)
			diags[i] = r.diags
			if err != nil {
				return fmt.Errorf("adapter %s: %w", a.Name(), err)
			}
			results[i] = ar
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var out []*AdapterResult
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	var all []Diagnostic
	for _, d := range diags {
		all = append(all, d...)
	}
	return out, all, nil
}

func (e *Engine) startRun() *cache.Run {
	if e.store == nil {
		return nil
	}
	e.storeMu.Lock()
	defer e.storeMu.Unlock()
	run, err := e.store.CreateRun()
	if err != nil {
		e.logger.Warn("failed to record run", slog.String("error", err.Error()))
		return nil
	}
	return run
}

func (e *Engine) finishRun(run *cache.Run, summary Summary, runErr error) {
	if run == nil {
		return
	}
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	e.storeMu.Lock()
	defer e.storeMu.Unlock()
	if err := e.store.CompleteRun(run.ID, summary.record(), msg); err != nil {
		e.logger.Warn("failed to complete run", slog.String("id", run.ID), slog.String("error", err.Error()))
	}
}

// RecentRuns lists recorded runs, newest first.
func (e *Engine) RecentRuns(limit int) ([]*cache.Run, error) {
	if e.store == nil {
		return nil, nil
	}
	e.storeMu.Lock()
	defer e.storeMu.Unlock()
	return e.store.RecentRuns(limit)
}

// adapterRun is the state of one adapter within a run.
type adapterRun struct {
	engine  *Engine
	index   int
	adapter Adapter
	diags   []Diagnostic
}

func (r *adapterRun) diag(kind, file, msg string) {
	r.diags = append(r.diags, Diagnostic{Adapter: r.adapter.Name(), Kind: kind, File: file, Message: msg})
	r.engine.logger.Warn(msg, slog.String("adapter", r.adapter.Name()), slog.String("kind", kind), slog.String("file", file))
}

func (r *adapterRun) run(ctx context.Context, withChains bool) (*AdapterResult, error) {
	ar := &AdapterResult{Index: r.index, Name: r.adapter.Name(), Type: r.adapter.Type}

	g, files, err := r.graph(ctx, ar)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, nil
	}
	ar.Graph = g
	ar.Files = files

	if !withChains {
		return ar, nil
	}

	opts := []chain.Option{
		chain.WithLogger(r.engine.logger),
		chain.WithIDPrefix(fmt.Sprintf("%s%d:", r.adapter.Type, r.index)),
	}
	if r.adapter.OpenAPIPath != "" {
		doc, err := openapi.ParseFile(r.adapter.OpenAPIPath)
		if err != nil {
			r.diag("openapi", r.adapter.OpenAPIPath, err.Error())
		} else {
			opts = append(opts, chain.WithRouteSchemas(doc.RouteSchema))
		}
	}

	chains, err := chain.NewBuilder(g, opts...).FindAllChains()
	if err != nil {
		return nil, fmt.Errorf("failed to build chains: %w", err)
	}
	for _, c := range chains {
		for _, ct := range c.Contracts {
			r.engine.checker.Check(ct)
		}
	}
	ar.Chains = chains
	return ar, nil
}

// graph returns the adapter's call graph, from the cache when every source
// is unchanged. A nil graph with no error means the adapter was skipped.
func (r *adapterRun) graph(ctx context.Context, ar *AdapterResult) (*callgraph.Graph, []string, error) {
	var (
		entries []string
		root    string
	)
	switch r.adapter.Type {
	case FastAPI:
		entry, err := discovery.FindEntryPoint(r.adapter.AppPath, r.engine.entryPoint)
		if err != nil {
			r.diag("entry_point", r.adapter.AppPath, err.Error())
			return nil, nil, nil
		}
		entries = []string{entry}
		root = filepath.Dir(entry)
	case TypeScript:
		for _, src := range r.adapter.SrcPaths {
			files, err := discovery.SourceFiles(src, SourceExtensions)
			if err != nil {
				r.diag("source_walk", src, err.Error())
				continue
			}
			entries = append(entries, files...)
		}
		if len(r.adapter.SrcPaths) > 0 {
			root = r.adapter.SrcPaths[0]
		}
	default:
		r.diag("adapter", "", fmt.Sprintf("unknown adapter type %q", r.adapter.Type))
		return nil, nil, nil
	}

	key := r.adapter.cacheKey(r.index, r.engine.entryPoint, r.engine.maxDepth)
	if g, files, ok, err := r.cached(key, entries); err != nil {
		return nil, nil, err
	} else if ok {
		ar.FromCache = true
		return g, files, nil
	}

	b, err := r.build(ctx, entries, root)
	if err != nil {
		return nil, nil, err
	}
	files := b.ProcessedFiles()
	r.store(key, b.Graph(), files)
	return b.Graph(), files, nil
}

func (r *adapterRun) build(ctx context.Context, entries []string, root string) (*builder.Builder, error) {
	opts := []builder.Option{
		builder.WithMaxDepth(r.engine.maxDepth),
		builder.WithLogger(r.engine.logger),
	}
	if root != "" {
		opts = append(opts, builder.WithProjectRoot(root))
	}

	var b *builder.Builder
	switch r.adapter.Type {
	case FastAPI:
		b = builder.New(python.New(), opts...)
		if err := b.BuildFromEntry(ctx, entries[0]); err != nil {
			return nil, err
		}
	case TypeScript:
		b = builder.New(typescript.New(), opts...)
		for _, file := range entries {
			err := b.BuildFromEntry(ctx, file)
			switch {
			case err == nil:
			case errors.Is(err, builder.ErrMaxDepthExceeded), errors.Is(err, context.Canceled):
				return nil, err
			default:
				r.diag("file", file, err.Error())
			}
		}
	}

	for _, d := range b.Diagnostics() {
		r.diags = append(r.diags, Diagnostic{
			Adapter: r.adapter.Name(),
			Kind:    string(d.Kind),
			File:    d.File,
			Message: d.Message,
		})
	}
	return b, nil
}

// cached loads the stored graph when every file it was built from, and
// every current entry, is unchanged. Corruption is fatal; other cache
// failures fall back to a rebuild.
func (r *adapterRun) cached(key string, entries []string) (*callgraph.Graph, []string, bool, error) {
	e := r.engine
	if e.store == nil {
		return nil, nil, false, nil
	}
	e.storeMu.Lock()
	defer e.storeMu.Unlock()

	g, ok, err := e.store.LoadGraph(key)
	if err != nil {
		if errors.Is(err, cache.ErrCorruptedCache) {
			return nil, nil, false, err
		}
		e.logger.Warn("failed to load cached graph", slog.String("key", key), slog.String("error", err.Error()))
		return nil, nil, false, nil
	}
	if !ok {
		return nil, nil, false, nil
	}

	files := moduleFiles(g)
	known := make(map[string]bool, len(files))
	for _, f := range files {
		known[f] = true
	}
	for _, entry := range entries {
		if !known[canonical(entry)] {
			return nil, nil, false, nil
		}
	}

	for _, f := range files {
		content, err := os.ReadFile(f)
		if err != nil {
			return nil, nil, false, nil
		}
		changed, err := e.store.IsChanged(f, content)
		if err != nil || changed {
			return nil, nil, false, nil
		}
	}
	e.logger.Debug("using cached graph", slog.String("key", key), slog.Int("files", len(files)))
	return g, files, true, nil
}

func (r *adapterRun) store(key string, g *callgraph.Graph, files []string) {
	e := r.engine
	if e.store == nil {
		return
	}
	e.storeMu.Lock()
	defer e.storeMu.Unlock()

	if err := e.store.SaveGraph(key, g); err != nil {
		e.logger.Warn("failed to cache graph", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	for _, f := range files {
		content, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		if err := e.store.SaveFileHash(f, content); err != nil {
			e.logger.Warn("failed to cache file hash", slog.String("file", f), slog.String("error", err.Error()))
		}
	}
}

func moduleFiles(g *callgraph.Graph) []string {
	var files []string
	for _, id := range g.Find(func(_ callgraph.NodeID, n callgraph.Node) bool { return n.Kind() == callgraph.KindModule }) {
		n, _ := g.Node(id)
		files = append(files, n.Name())
	}
	return files
}

func canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real
	}
	return abs
}
