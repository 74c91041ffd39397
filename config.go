// Package gsp compiles server pages written as text mixed with Go code into
// native Go plugins, caches them by content hash, and invokes them to
// produce HTTP responses. See SPEC_FULL.md for the full design.
package gsp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// Config configures an Engine. The zero value is invalid; use New or
// Config.Defaults to fill in required fields.
type Config struct {
	// Docroot is the directory containing *.gsp template files and static
	// assets.
	Docroot string `json:"docroot,omitempty"`

	// TemplateExtension selects which files under Docroot are templates.
	// Default ".gsp".
	TemplateExtension string `json:"template_extension,omitempty"`

	// CacheDir holds compiled artifacts. Default "<Docroot>/.gsp-cache".
	CacheDir string `json:"cache_dir,omitempty"`

	// BuildCacheDir overrides the shared GOCACHE used for module builds.
	BuildCacheDir string `json:"build_cache_dir,omitempty"`

	// RuntimePath is the filesystem path to this module's own root (the one
	// containing the runtime subpackage), used as a replace target for
	// generated module builds that import github.com/goserverpages/gsp/runtime.
	RuntimePath string `json:"runtime_path,omitempty"`

	// Dependencies are go.mod require-line bodies merged into every module
	// build, in addition to whatever `dep`/known-alias directives a
	// template declares.
	Dependencies []string `json:"dependencies,omitempty"`

	// Database names a default sqlite DSN. It is stored on the Config only:
	// it is not passed to generated artifacts, and runtime.Database opens
	// exactly the DSN it is given.
	Database string `json:"database,omitempty"`

	// Env is set into the process environment by Engine.Render before every
	// invocation, after the per-request values the front-end sets.
	Env map[string]string `json:"env,omitempty"`

	Logger   *slog.Logger `json:"-"`
	LogLevel int          `json:"log_level,omitempty"`
}

// New returns a Config with defaults filled in.
func New() *Config {
	c := &Config{}
	c.Defaults()
	return c
}

// Defaults fills in unset fields and returns the receiver for chaining.
func (c *Config) Defaults() *Config {
	if c.Docroot == "" {
		c.Docroot = "."
	}
	if c.TemplateExtension == "" {
		c.TemplateExtension = ".gsp"
	}
	if c.CacheDir == "" {
		c.CacheDir = c.Docroot + "/.gsp-cache"
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.Level(c.LogLevel)}))
	}
	if c.Env == nil {
		c.Env = map[string]string{}
	}
	return c
}

// Option overrides fields of a Config after defaults are applied.
type Option func(*Config)

func WithDocroot(path string) Option {
	return func(c *Config) { c.Docroot = path }
}

func WithCacheDir(path string) Option {
	return func(c *Config) { c.CacheDir = path }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

func WithDependencies(deps ...string) Option {
	return func(c *Config) { c.Dependencies = append(c.Dependencies, deps...) }
}

func WithDatabase(dsn string) Option {
	return func(c *Config) { c.Database = dsn }
}

// Apply runs every opt against the config in order.
func (c *Config) Apply(opts ...Option) *Config {
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadTOMLFile merges gsp.toml-formatted configuration from path into c.
func (c *Config) LoadTOMLFile(path string) error {
	if _, err := toml.DecodeFile(path, c); err != nil {
		return fmt.Errorf("gsp: failed to decode toml config %s: %w", path, err)
	}
	return nil
}

// LoadJSONFile merges gsp.json-formatted configuration from path into c.
func (c *Config) LoadJSONFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("gsp: failed to open json config %s: %w", path, err)
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(c); err != nil {
		return fmt.Errorf("gsp: failed to decode json config %s: %w", path, err)
	}
	return nil
}
