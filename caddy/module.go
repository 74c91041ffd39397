package gsp_caddy

import (
	"fmt"
	"net/http"

	"github.com/caddyserver/caddy/v2"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp"

	"github.com/goserverpages/gsp"
)

func init() {
	caddy.RegisterModule(GspModule{})
}

// CaddyModule returns the Caddy module information.
func (GspModule) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "http.handlers.gsp",
		New: func() caddy.Module { return new(GspModule) },
	}
}

// GspModule mounts a gsp Server as a Caddy HTTP middleware handler.
type GspModule struct {
	// Docroot is the directory containing *.gsp template files and static
	// assets. Default is the current working directory.
	Docroot string `json:"docroot,omitempty"`

	// TemplateExtension selects which files under Docroot are templates.
	// Default ".gsp".
	TemplateExtension string `json:"template_extension,omitempty"`

	// CacheDir holds compiled artifacts.
	CacheDir string `json:"cache_dir,omitempty"`

	// BuildCacheDir overrides the shared GOCACHE used for module builds.
	BuildCacheDir string `json:"build_cache_dir,omitempty"`

	// Database is copied to gsp.Config.Database; it is not passed to
	// generated artifacts.
	Database string `json:"database,omitempty"`

	// Dependencies are go.mod require-line bodies merged into every module
	// build.
	Dependencies []string `json:"dependencies,omitempty"`

	server *gsp.Server
}

// Validate ensures m has a valid configuration. Implements caddy.Validator.
func (m *GspModule) Validate() error {
	if m.Docroot == "" {
		return fmt.Errorf("gsp: docroot must be set")
	}
	return nil
}

// Provision provisions m. Implements caddy.Provisioner.
func (m *GspModule) Provision(ctx caddy.Context) error {
	log := ctx.Slogger()

	config := gsp.Config{
		Docroot:           m.Docroot,
		TemplateExtension: m.TemplateExtension,
		CacheDir:          m.CacheDir,
		BuildCacheDir:     m.BuildCacheDir,
		Database:          m.Database,
		Dependencies:      m.Dependencies,
		Logger:            log,
	}
	config.Defaults()

	server, err := gsp.NewServer(config)
	if err != nil {
		return fmt.Errorf("gsp: failed to provision server: %w", err)
	}
	m.server = server
	return nil
}

func (m *GspModule) ServeHTTP(w http.ResponseWriter, r *http.Request, next caddyhttp.Handler) error {
	m.server.ServeHTTP(w, r)
	return nil
}

// Cleanup discards resources held by m. Implements caddy.CleanerUpper.
func (m *GspModule) Cleanup() error {
	if m.server != nil {
		m.server.UnloadAll()
		m.server = nil
	}
	return nil
}

// Interface guards
var (
	_ caddy.Validator             = (*GspModule)(nil)
	_ caddy.Provisioner           = (*GspModule)(nil)
	_ caddyhttp.MiddlewareHandler = (*GspModule)(nil)
	_ caddy.CleanerUpper          = (*GspModule)(nil)
)
