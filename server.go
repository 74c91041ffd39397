package gsp

import (
	"compress/gzip"
	"context"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
)

// staticFile records precomputed metadata for one logical static asset,
// possibly available in several precompressed encodings.
type staticFile struct {
	hash        string
	contentType string
	encodings   []encodingInfo
}

type encodingInfo struct {
	encoding, path string
	modtime        time.Time
}

// Server is a reloadable http.Handler over an Engine: it routes a request for
// /name (or / for /index) through the engine when <Docroot>/name<TemplateExtension>
// exists, and serves every non-template file under the docroot as a static
// asset with compressed-encoding negotiation. A request that names the
// template file itself, extension included, is not served.
//
// Unlike the engine itself, Server concerns are not swapped atomically on
// Reload the way the teacher repo swaps whole template instances — there is
// no analog here to re-parsing template definitions, since .gsp files are
// compiled independently and cached by content hash. Reload only rescans the
// docroot's static-file index.
type Server struct {
	engine *Engine
	files  atomic.Pointer[map[string]*staticFile]
	fsys   afero.Fs
	config Config
}

// NewServer builds a Server from a Config, creating its Engine and
// performing an initial static-file scan.
func NewServer(config Config, opts ...Option) (*Server, error) {
	engine, err := NewEngine(config, opts...)
	if err != nil {
		return nil, err
	}
	s := &Server{
		engine: engine,
		fsys:   afero.NewBasePathFs(afero.NewOsFs(), engine.config.Docroot),
		config: engine.config,
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload rescans the docroot's static files. Compiled template artifacts are
// unaffected: they stay cached by content hash and the engine's loader
// reloads an individual artifact only when its own mtime changes.
func (s *Server) Reload() error {
	index := map[string]*staticFile{}
	err := afero.Walk(s.fsys, ".", func(p string, d fs.FileInfo, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		p = filepath.ToSlash(p)
		if strings.HasSuffix(p, s.config.TemplateExtension) {
			return nil
		}
		return indexStaticFile(s.fsys, index, p)
	})
	if err != nil {
		return wrapErr(KindIO, s.config.Docroot, err)
	}
	s.files.Store(&index)
	return nil
}

var extensionContentTypes = map[string]string{
	".css": "text/css; charset=utf-8",
	".js":  "text/javascript; charset=utf-8",
	".csv": "text/csv",
	".gsp": "text/html; charset=utf-8",
}

// indexStaticFile records p into index, recognizing a precompressed sibling
// (.gz/.br/.zst) of an already-indexed identity file by matching content
// hash, the same way the teacher's static file builder validates encoded
// variants against their identity file.
func indexStaticFile(fsys afero.Fs, index map[string]*staticFile, p string) error {
	f, err := fsys.Open(p)
	if err != nil {
		return fmt.Errorf("gsp: failed to open static file %s: %w", p, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("gsp: failed to stat static file %s: %w", p, err)
	}

	ext := filepath.Ext(p)
	identityPath := strings.TrimSuffix(path.Clean("/"+p), ext)

	var reader io.Reader = f
	encoding := "identity"
	entry, exists := index[identityPath]

	if exists {
		switch ext {
		case ".gz":
			reader, err = gzip.NewReader(f)
			encoding = "gzip"
		case ".zst":
			reader, err = zstd.NewReader(f)
			encoding = "zstd"
		case ".br":
			reader = brotli.NewReader(f)
			encoding = "br"
		default:
			exists = false
		}
		if err != nil {
			return fmt.Errorf("gsp: failed to decompress %s: %w", p, err)
		}
	}
	if !exists {
		identityPath = path.Clean("/" + p)
		entry = &staticFile{}
	}

	hash := sha512.New384()
	if _, err := io.Copy(hash, reader); err != nil {
		return fmt.Errorf("gsp: failed to hash %s: %w", p, err)
	}
	sri := "sha384-" + base64.URLEncoding.EncodeToString(hash.Sum(nil))

	if encoding == "identity" {
		entry.hash = sri
		if ctype, ok := extensionContentTypes[ext]; ok {
			entry.contentType = ctype
		} else {
			buf := make([]byte, 512)
			f.Seek(0, io.SeekStart)
			n, _ := f.Read(buf)
			entry.contentType = http.DetectContentType(buf[:n])
		}
		entry.encodings = append(entry.encodings, encodingInfo{encoding: encoding, path: p, modtime: stat.ModTime()})
		index[identityPath] = entry
	} else {
		if entry.hash != sri {
			return fmt.Errorf("gsp: encoded file %s does not match identity content hash", p)
		}
		entry.encodings = append(entry.encodings, encodingInfo{encoding: encoding, path: p, modtime: stat.ModTime()})
		sort.Slice(entry.encodings, func(i, j int) bool { return entry.encodings[i].encoding < entry.encodings[j].encoding })
	}
	return nil
}

type requestIDKeyType struct{}

var requestIDKey = requestIDKeyType{}

// UnloadAll releases every cached plugin handle held by the server's engine.
func (s *Server) UnloadAll() {
	s.engine.UnloadAll()
}

// Serve opens a net listener on addr and serves requests from it.
func (s *Server) Serve(addr string) error {
	s.config.Logger.Info("starting server", slog.String("addr", addr))
	return http.ListenAndServe(addr, s)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rid := uuid.NewString()
	ctx := context.WithValue(r.Context(), requestIDKey, rid)
	r = r.WithContext(ctx)

	log := s.config.Logger.With(slog.String("requestid", rid), slog.String("method", r.Method), slog.String("path", r.URL.Path))
	metrics := httpsnoop.CaptureMetrics(http.HandlerFunc(s.route), w, r)
	log.Debug("request served", slog.Duration("duration", metrics.Duration), slog.Int("status", metrics.Code), slog.Int64("bytes", metrics.Written))
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	clean := path.Clean(r.URL.Path)

	templatePath := strings.TrimSuffix(clean, "/")
	if templatePath == "" {
		templatePath = "/index"
	}
	candidate := filepath.Join(s.config.Docroot, templatePath+s.config.TemplateExtension)
	if _, err := os.Stat(candidate); err == nil {
		s.serveTemplate(w, r, candidate)
		return
	}

	files := *s.files.Load()
	if entry, ok := files[clean]; ok {
		serveStaticEntry(s.fsys, w, r, entry)
		return
	}

	http.NotFound(w, r)
}

func (s *Server) serveTemplate(w http.ResponseWriter, r *http.Request, path string) {
	setEnvFromRequest(r)
	result, err := s.engine.RenderFile(path)
	if err != nil {
		s.config.Logger.Error("render failed", slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	for _, h := range result.Headers {
		w.Header().Add(h.Name, h.Value)
	}
	for _, c := range result.Cookies {
		w.Header().Add("Set-Cookie", fmt.Sprintf("%s=%s; Path=/; Max-Age=%d; HttpOnly", c.Name, c.Value, c.MaxAge))
	}
	if result.Redirect != "" {
		http.Redirect(w, r, result.Redirect, int(result.StatusCode))
		return
	}
	status := int(result.StatusCode)
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	io.WriteString(w, result.Content)
}

func serveStaticEntry(fsys afero.Fs, w http.ResponseWriter, r *http.Request, entry *staticFile) {
	enc, err := negotiateEncoding(r.Header["Accept-Encoding"], entry.encodings)
	if err != nil || enc == nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	f, err := fsys.Open(enc.path)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Etag", `"`+entry.hash+`"`)
	w.Header().Set("Content-Type", entry.contentType)
	w.Header().Set("Content-Encoding", enc.encoding)
	w.Header().Set("Vary", "Accept-Encoding")
	if r.URL.Query().Get("hash") != "" {
		w.Header().Set("Cache-Control", "public, max-age=31536000")
	}
	http.ServeContent(w, r, enc.path, enc.modtime, f.(io.ReadSeeker))
}

// negotiateEncoding picks the best encoding to serve given the client's
// Accept-Encoding preference and the available precomputed encodings,
// preferring identity unless the client expresses a clear preference for an
// alternative (same q-value tiebreak rule as the teacher's file handler).
func negotiateEncoding(acceptHeaders []string, encodings []encodingInfo) (*encodingInfo, error) {
	if len(encodings) == 0 {
		return nil, fmt.Errorf("gsp: no encodings available")
	}
	maxqIdx := -1
	for i, e := range encodings {
		if e.encoding == "identity" {
			maxqIdx = i
			break
		}
	}
	if maxqIdx == -1 {
		maxqIdx = 0
	}
	var maxq float64

	for _, header := range acceptHeaders {
		for _, part := range strings.Split(header, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			fields := strings.Split(part, ";")
			encName := strings.TrimSpace(fields[0])

			requestedIdx := -1
			for i, e := range encodings {
				if e.encoding == encName {
					requestedIdx = i
					break
				}
			}
			if requestedIdx == -1 {
				continue
			}

			q := 1.0
			for _, f := range fields[1:] {
				f = strings.TrimSpace(f)
				if v, ok := strings.CutPrefix(f, "q="); ok {
					if parsed, err := strconv.ParseFloat(v, 64); err == nil {
						q = parsed
					}
				}
			}

			if q-maxq > 0.1 || (math.Abs(q-maxq) <= 0.1 && requestedIdx < maxqIdx) {
				maxq = q
				maxqIdx = requestedIdx
			}
		}
	}
	return &encodings[maxqIdx], nil
}

// setEnvFromRequest sets the process environment hand-off a generated
// artifact's runtime.NewRequest reads from. This makes the environment
// process-global, which is why Engine.Render serializes invocations; see
// SPEC_FULL.md §5 and §6.4.
func setEnvFromRequest(r *http.Request) {
	setenv("REQUEST_METHOD", r.Method)
	setenv("REQUEST_URI", r.URL.RequestURI())
	setenv("QUERY_STRING", r.URL.RawQuery)
	setenv("HTTP_COOKIE", r.Header.Get("Cookie"))
	setenv("CONTENT_TYPE", r.Header.Get("Content-Type"))
	setenv("CONTENT_LENGTH", r.Header.Get("Content-Length"))

	var body strings.Builder
	if r.Body != nil {
		io.Copy(&body, r.Body)
	}
	setenv("GSP_BODY", body.String())

	for name, values := range r.Header {
		key := "HTTP_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		if len(values) > 0 {
			setenv(key, values[0])
		}
	}
}

func setenv(key, value string) {
	os.Setenv(key, value)
}
