// Package loader opens compiled plugins, reloads them when their artifact
// file's mtime changes, and invokes the six-symbol render ABI.
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrSymbol is returned when an artifact is missing a required ABI symbol or
// exports it with the wrong type.
var ErrSymbol = errors.New("gsp: artifact missing or malformed ABI symbol")

// Cookie is one Set-Cookie-equivalent record returned by an artifact.
type Cookie struct {
	Name   string
	Value  string
	MaxAge int64
}

// Header is one custom response header set by an artifact.
type Header struct {
	Name  string
	Value string
}

// RenderResponse is everything the invoker extracts from one artifact call.
type RenderResponse struct {
	Content    string
	StatusCode uint16
	Redirect   string
	Cookies    []Cookie
	Headers    []Header
}

type handles struct {
	render        func() string
	freeString    func(string)
	getStatusCode func() uint16
	getRedirect   func() string
	getCookies    func() string
	getHeaders    func() string
}

type loadedPlugin struct {
	mtime time.Time
	h     handles
}

// Loader caches opened plugins by artifact path and reloads on mtime change.
//
// Go's plugin package cannot unload a mapped .so, and calling plugin.Open
// twice with the *same path string* returns the cached *plugin.Plugin for
// that path even if the file's bytes changed underneath it. To still honor
// "reopen on mtime change", the loader opens a uniquely mtime-suffixed hard
// link next to the canonical artifact on every reload, so each distinct
// mtime gets a path plugin.Open has never seen before.
type Loader struct {
	mu      sync.Mutex
	plugins map[string]*loadedPlugin
}

// New returns a ready-to-use Loader.
func New() *Loader {
	return &Loader{plugins: map[string]*loadedPlugin{}}
}

// RenderWithResponse invokes the artifact at path, reloading it first if its
// on-disk mtime differs from what was last loaded. l.mu is held for the
// entire call, not just the reload check: generated artifacts stash their
// response control (status/redirect/cookies/headers) in package-level vars
// and runtime.NewRequest reads the process-global environment hand-off, so
// two invocations of the same (or even a different) artifact running
// concurrently would race on that shared state. This mirrors the original's
// render_with_response running under the engine's own Mutex<Loader> for the
// same reason.
func (l *Loader) RenderWithResponse(path string) (RenderResponse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, err := l.handlesForLocked(path)
	if err != nil {
		return RenderResponse{}, err
	}

	content := h.render()
	h.freeString(content)
	status := h.getStatusCode()
	redirect := h.getRedirect()
	cookies := parseCookies(h.getCookies())
	headers := parseHeaders(h.getHeaders())

	return RenderResponse{
		Content:    content,
		StatusCode: status,
		Redirect:   redirect,
		Cookies:    cookies,
		Headers:    headers,
	}, nil
}

// handlesForLocked returns the bound symbols for path, reloading if its
// on-disk mtime changed. Callers must hold l.mu.
func (l *Loader) handlesForLocked(path string) (handles, error) {
	info, err := os.Stat(path)
	if err != nil {
		return handles{}, fmt.Errorf("gsp: failed to stat artifact %s: %w", path, err)
	}
	mtime := info.ModTime()

	if existing, ok := l.plugins[path]; ok && existing.mtime.Equal(mtime) {
		return existing.h, nil
	}

	openPath, err := linkForReload(path, mtime)
	if err != nil {
		return handles{}, err
	}

	p, err := plugin.Open(openPath)
	if err != nil {
		return handles{}, fmt.Errorf("gsp: failed to open plugin %s: %w", openPath, err)
	}

	h, err := bindSymbols(p)
	if err != nil {
		return handles{}, err
	}

	l.plugins[path] = &loadedPlugin{mtime: mtime, h: h}
	return h, nil
}

// linkForReload returns a path that plugin.Open has never seen for this
// artifact's current content: a hard link suffixed with the artifact's
// mtime in nanoseconds. The link is intentionally left on disk (plugins are
// never unloaded); a stale link for this same canonical path is swept on the
// next reload of that path.
func linkForReload(path string, mtime time.Time) (string, error) {
	suffix := strconv.FormatInt(mtime.UnixNano(), 10)
	linked := path + "." + suffix
	if _, err := os.Stat(linked); err == nil {
		return linked, nil
	}
	if err := os.Link(path, linked); err != nil {
		// Fall back to the canonical path; this only degrades the reload
		// guarantee on filesystems without hard link support, it does not
		// fail the render.
		return path, nil
	}
	sweepStaleLinks(path, linked)
	return linked, nil
}

func sweepStaleLinks(canonical, keep string) {
	dir := filepath.Dir(canonical)
	base := filepath.Base(canonical)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	prefix := base + "."
	for _, e := range entries {
		name := e.Name()
		if name == filepath.Base(keep) || !strings.HasPrefix(name, prefix) {
			continue
		}
		os.Remove(filepath.Join(dir, name))
	}
}

func bindSymbols(p *plugin.Plugin) (handles, error) {
	var h handles
	var err error
	if h.render, err = lookupFunc[func() string](p, "Render"); err != nil {
		return handles{}, err
	}
	if h.freeString, err = lookupFunc[func(string)](p, "FreeString"); err != nil {
		return handles{}, err
	}
	if h.getStatusCode, err = lookupFunc[func() uint16](p, "GetStatusCode"); err != nil {
		return handles{}, err
	}
	if h.getRedirect, err = lookupFunc[func() string](p, "GetRedirect"); err != nil {
		return handles{}, err
	}
	if h.getCookies, err = lookupFunc[func() string](p, "GetCookies"); err != nil {
		return handles{}, err
	}
	if h.getHeaders, err = lookupFunc[func() string](p, "GetHeaders"); err != nil {
		return handles{}, err
	}
	return h, nil
}

func lookupFunc[T any](p *plugin.Plugin, name string) (T, error) {
	var zero T
	sym, err := p.Lookup(name)
	if err != nil {
		return zero, fmt.Errorf("%w: %s: %v", ErrSymbol, name, err)
	}
	fn, ok := sym.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s has unexpected type %T", ErrSymbol, name, sym)
	}
	return fn, nil
}

// ParseCookies parses the tab-separated, newline-delimited wire format
// GetCookies returns. Exported for use by loader tests and callers that want
// to validate the wire format independently of a real plugin.
func ParseCookies(s string) []Cookie { return parseCookies(s) }

func parseCookies(s string) []Cookie {
	if s == "" {
		return nil
	}
	var out []Cookie
	for _, line := range strings.Split(s, "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			continue
		}
		maxAge, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			maxAge = 0
		}
		out = append(out, Cookie{Name: fields[0], Value: fields[1], MaxAge: maxAge})
	}
	return out
}

// ParseHeaders parses the colon-separated, newline-delimited wire format
// GetHeaders returns.
func ParseHeaders(s string) []Header { return parseHeaders(s) }

func parseHeaders(s string) []Header {
	if s == "" {
		return nil
	}
	var out []Header
	for _, line := range strings.Split(s, "\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		out = append(out, Header{Name: name, Value: value})
	}
	return out
}

// UnloadAll drops the loader's bookkeeping for every loaded artifact. Go
// plugins themselves are never unmapped from the process; this only clears
// the mtime/symbol cache so the next render reopens (Go dedupes to the
// already-mapped image for an unchanged path).
func (l *Loader) UnloadAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.plugins = map[string]*loadedPlugin{}
}
