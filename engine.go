package gsp

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sync"
	"sync/atomic"

	"github.com/goserverpages/gsp/internal/compiler"
	"github.com/goserverpages/gsp/internal/generator"
	"github.com/goserverpages/gsp/internal/loader"
	"github.com/goserverpages/gsp/internal/parser"
)

// RenderResult is the outcome of rendering one template.
type RenderResult struct {
	Content    string
	StatusCode uint16
	Redirect   string
	Cookies    []loader.Cookie
	Headers    []loader.Header
}

// Engine orchestrates parse -> generate -> compile -> load -> invoke for a
// single docroot and cache directory.
//
// Render is safe for concurrent use. Invocations are serialized through the
// loader's internal mutex because generated artifacts communicate through
// package-level state and the process-global environment hand-off; see
// SPEC_FULL.md §5 for the rationale and the documented higher-concurrency
// alternative.
type Engine struct {
	config Config
	id     int64

	loader *loader.Loader

	compileMu sync.Map // content hash -> *sync.Mutex, deduplicates concurrent cache misses
}

var nextEngineID atomic.Int64

// NewEngine builds an Engine from a Config, applying opts after defaults.
func NewEngine(config Config, opts ...Option) (*Engine, error) {
	cfg := config
	cfg.Defaults()
	cfg.Apply(opts...)

	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, wrapErr(KindIO, cfg.CacheDir, err)
	}

	e := &Engine{
		config: cfg,
		id:     nextEngineID.Add(1),
		loader: loader.New(),
	}
	e.config.Logger = e.config.Logger.With("engine", e.id)
	return e, nil
}

// Render parses, generates, compiles (on cache miss), loads, and invokes the
// template whose text is given, returning the rendered result.
func (e *Engine) Render(templateText string) (RenderResult, error) {
	hash := contentHash(templateText)

	pt, err := parser.Parse(templateText)
	if err != nil {
		return RenderResult{}, wrapErr(KindParse, "", err)
	}

	gc := generator.Generate(pt)

	artifact, err := e.compile(gc, hash)
	if err != nil {
		return RenderResult{}, wrapErr(KindCompile, hash, err)
	}

	for k, v := range e.config.Env {
		os.Setenv(k, v)
	}

	resp, err := e.loader.RenderWithResponse(artifact)
	if err != nil {
		return RenderResult{}, wrapErr(KindLoad, artifact, err)
	}

	return RenderResult{
		Content:    resp.Content,
		StatusCode: resp.StatusCode,
		Redirect:   resp.Redirect,
		Cookies:    resp.Cookies,
		Headers:    resp.Headers,
	}, nil
}

// RenderFile reads path, then behaves like Render.
func (e *Engine) RenderFile(path string) (RenderResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return RenderResult{}, wrapErr(KindIO, path, err)
	}
	return e.Render(string(content))
}

// compile deduplicates concurrent compiles of the same content hash with a
// per-hash mutex, then delegates to the compiler package. Parsing and
// generation above this call are already safely parallel; only the
// toolchain invocation on a cache miss needs this protection.
func (e *Engine) compile(gc generator.GeneratedCode, hash string) (string, error) {
	muAny, _ := e.compileMu.LoadOrStore(hash, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	deps := append(append([]string{}, e.config.Dependencies...), gc.Dependencies...)
	return compiler.Compile(gc.Source, hash, gc.NeedsModule, deps, compiler.Options{
		CacheDir:      e.config.CacheDir,
		BuildCacheDir: e.config.BuildCacheDir,
		RuntimePath:   e.config.RuntimePath,
	})
}

// UnloadAll drops the engine's loader bookkeeping. See loader.Loader.UnloadAll
// for why this does not actually unmap compiled plugins from the process.
func (e *Engine) UnloadAll() {
	e.loader.UnloadAll()
}

// Id returns the engine's process-unique identity, attached to its logs.
func (e *Engine) Id() int64 { return e.id }

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
