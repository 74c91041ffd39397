// Package app implements the default gsp command-line entry point: run a
// single template once, serve a docroot, precompile it ahead of time, or
// dump diagnostics for one template with --explain.
package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/goserverpages/gsp"

	"github.com/alexflint/go-arg"
	"github.com/infogulch/watch"
)

type Args struct {
	gsp.Config
	Render      string   `arg:"positional" json:"-"`
	Watch       []string `json:"watch_dirs" arg:",separate"`
	WatchDocroot bool    `json:"watch_docroot" default:"true"`
	Listen      string   `json:"listen" arg:"-l" default:"0.0.0.0:8080"`
	LogLevel    int      `json:"log_level" default:"-2"`
	Precompile  bool     `json:"precompile" arg:"--precompile"`
	Explain     string   `json:"-" arg:"--explain"`
	Configs     []string `json:"-" arg:"-c,--config,separate"`
	ConfigFiles []string `json:"-" arg:"-f,--config-file,separate"`
}

var version = "development"

func (Args) Version() string { return version }

// Main can be called from your func main() to act like the default gsp CLI,
// or used as a reference for building your own.
//
//	app.Main(gsp.WithDatabase("file:app.db"))
func Main(overrides ...gsp.Option) {
	var args Args
	var log *slog.Logger

	arg.MustParse(&args)
	args.Config.Defaults()

	level := args.LogLevel
	log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.Level(level)}))

	var jsonArgs Args
	var decoded bool
	for _, name := range args.ConfigFiles {
		func() {
			f, err := os.Open(name)
			if err != nil {
				log.Error("failed to open config file", slog.String("filename", name), slog.Any("error", err))
				os.Exit(1)
			}
			defer f.Close()
			if err := json.NewDecoder(f).Decode(&jsonArgs); err != nil {
				log.Error("failed to decode config file", slog.String("filename", name), slog.Any("error", err))
				os.Exit(1)
			}
			decoded = true
		}()
	}
	for _, conf := range args.Configs {
		if err := json.NewDecoder(bytes.NewBufferString(conf)).Decode(&jsonArgs); err != nil {
			log.Error("failed to decode config flag", slog.Any("error", err))
			os.Exit(1)
		}
		decoded = true
	}
	if decoded {
		args = jsonArgs
	}
	if args.LogLevel != level {
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.Level(args.LogLevel)}))
	}
	args.Config.Logger = log

	args.Config.Apply(overrides...)

	switch {
	case args.Explain != "":
		runExplain(log, args.Explain)
	case args.Precompile:
		runPrecompile(log, args)
	case args.Render != "":
		runOnce(log, args)
	default:
		runServe(log, args)
	}
}

func runExplain(log *slog.Logger, path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		log.Error("failed to read template", slog.Any("error", err))
		os.Exit(1)
	}
	result, err := gsp.Explain(string(content))
	if err != nil {
		log.Error("failed to explain template", slog.Any("error", err))
		os.Exit(1)
	}
	out, err := result.YAML()
	if err != nil {
		log.Error("failed to marshal explain result", slog.Any("error", err))
		os.Exit(1)
	}
	fmt.Println(out)
}

func runPrecompile(log *slog.Logger, args Args) {
	engine, err := gsp.NewEngine(args.Config)
	if err != nil {
		log.Error("failed to build engine", slog.Any("error", err))
		os.Exit(2)
	}
	stats, err := engine.Precompile()
	if err != nil {
		log.Error("precompile failed", slog.Any("error", err))
		os.Exit(3)
	}
	log.Info("precompile complete", slog.Int("templates", stats.TemplatesCompiled), slog.Duration("duration", stats.Duration))
}

func runOnce(log *slog.Logger, args Args) {
	engine, err := gsp.NewEngine(args.Config)
	if err != nil {
		log.Error("failed to build engine", slog.Any("error", err))
		os.Exit(2)
	}
	result, err := engine.RenderFile(args.Render)
	if err != nil {
		log.Error("render failed", slog.Any("error", err))
		os.Exit(3)
	}
	fmt.Print(result.Content)
}

func runServe(log *slog.Logger, args Args) {
	server, err := gsp.NewServer(args.Config)
	if err != nil {
		log.Error("failed to build server", slog.Any("error", err))
		os.Exit(2)
	}

	if args.WatchDocroot {
		args.Watch = append(args.Watch, args.Config.Docroot)
	}
	if len(args.Watch) != 0 {
		_, err := watch.Watch(args.Watch, 200*time.Millisecond, log.WithGroup("fswatch"), func() bool {
			if err := server.Reload(); err != nil {
				log.Error("reload failed", slog.Any("error", err))
			}
			return true
		})
		if err != nil {
			log.Info("failed to watch directories", slog.Any("error", err), slog.Any("directories", args.Watch))
			os.Exit(4)
		}
	}

	log.Info("server stopped", slog.Any("exit", server.Serve(args.Listen)))
}
