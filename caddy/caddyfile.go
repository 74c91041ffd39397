package gsp_caddy

import (
	"github.com/caddyserver/caddy/v2/caddyconfig/httpcaddyfile"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
)

func init() {
	httpcaddyfile.RegisterHandlerDirective("gsp", parseCaddyfile)
}

// parseCaddyfile sets up the handler from Caddyfile tokens, e.g.:
//
//	gsp {
//	    docroot ./site
//	    template_extension .gsp
//	    cache_dir ./.gsp-cache
//	    database file:app.db
//	    dep github.com/example/extra v1.2.3
//	}
func parseCaddyfile(h httpcaddyfile.Helper) (caddyhttp.MiddlewareHandler, error) {
	m := &GspModule{
		TemplateExtension: ".gsp",
	}

	for h.Next() {
		if h.NextArg() {
			m.Docroot = h.Val()
		}
		for h.NextBlock(0) {
			switch h.Val() {
			case "docroot":
				if !h.AllArgs(&m.Docroot) {
					return nil, h.ArgErr()
				}
			case "template_extension":
				if !h.AllArgs(&m.TemplateExtension) {
					return nil, h.ArgErr()
				}
			case "cache_dir":
				if !h.AllArgs(&m.CacheDir) {
					return nil, h.ArgErr()
				}
			case "build_cache_dir":
				if !h.AllArgs(&m.BuildCacheDir) {
					return nil, h.ArgErr()
				}
			case "database":
				if !h.AllArgs(&m.Database) {
					return nil, h.ArgErr()
				}
			case "dep":
				args := h.RemainingArgs()
				if len(args) == 0 {
					return nil, h.ArgErr()
				}
				m.Dependencies = append(m.Dependencies, joinArgs(args))
			default:
				return nil, h.Errf("unknown gsp config option %q", h.Val())
			}
		}
	}
	if m.Docroot == "" {
		m.Docroot = "."
	}
	return m, nil
}

func joinArgs(args []string) string {
	out := args[0]
	for _, a := range args[1:] {
		out += " " + a
	}
	return out
}
