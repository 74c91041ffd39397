package gsp

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/goserverpages/gsp/internal/generator"
	"github.com/goserverpages/gsp/internal/parser"
)

// PrecompileStats summarizes a Precompile run.
type PrecompileStats struct {
	TemplatesFound    int
	TemplatesCompiled int
	TotalBytes        int64
	Duration          time.Duration
}

// Precompile walks the engine's docroot and compiles every template file
// eagerly, warming the artifact cache ahead of the first request.
func (e *Engine) Precompile() (PrecompileStats, error) {
	start := time.Now()
	var stats PrecompileStats

	fsys := afero.NewBasePathFs(afero.NewOsFs(), e.config.Docroot)
	err := afero.Walk(fsys, ".", func(p string, d fs.FileInfo, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if !strings.HasSuffix(filepath.ToSlash(p), e.config.TemplateExtension) {
			return nil
		}
		stats.TemplatesFound++
		stats.TotalBytes += d.Size()

		content, err := afero.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		pt, err := parser.Parse(string(content))
		if err != nil {
			return err
		}
		if _, err := e.compile(generator.Generate(pt), contentHash(string(content))); err != nil {
			return err
		}
		stats.TemplatesCompiled++
		return nil
	})
	stats.Duration = time.Since(start)

	e.config.Logger.Info("precompile finished",
		slog.Int("templates_found", stats.TemplatesFound),
		slog.Int("templates_compiled", stats.TemplatesCompiled),
		slog.String("total_size", humanize.Bytes(uint64(stats.TotalBytes))),
		slog.Duration("duration", stats.Duration),
	)

	if err != nil {
		return stats, wrapErr(KindIO, e.config.Docroot, err)
	}
	return stats, nil
}
