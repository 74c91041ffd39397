// Package compiler drives the Go toolchain to turn generated source into a
// native plugin, keyed by content hash so identical templates never compile
// twice.
package compiler

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrUnsupportedPlatform is returned up front on hosts where Go's plugin
// package doesn't support -buildmode=plugin, rather than failing deep in a
// linker error.
var ErrUnsupportedPlatform = fmt.Errorf("gsp: -buildmode=plugin is not supported on %s/%s", runtime.GOOS, runtime.GOARCH)

// CompileError wraps a nonzero go build exit with the toolchain's stderr.
type CompileError struct {
	Stderr string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("gsp: go build failed: %s", strings.TrimSpace(e.Stderr))
}

// Options configures a single Compile call.
type Options struct {
	// CacheDir holds artifacts (<hash>.so) and scratch module directories.
	CacheDir string
	// BuildCacheDir overrides GOCACHE for the invoked toolchain, shared
	// across templates so dependency compilation is amortized. Defaults to
	// $GSP_BUILD_CACHE, then $HOME/.gsp/buildcache, then <CacheDir>/buildcache.
	BuildCacheDir string
	// RuntimePath is the filesystem path to this project's own module root
	// (the one containing the runtime subpackage), used as a replace target
	// for module builds that import github.com/goserverpages/gsp/runtime.
	// Defaults to $GSP_RUNTIME_PATH.
	RuntimePath string
	// ModulePrefix names the scratch module, default "gsprsp".
	ModulePrefix string
}

func supportedPlatform() bool {
	switch runtime.GOOS {
	case "linux", "freebsd":
		return true
	default:
		return false
	}
}

func artifactExt() string {
	return ".so"
}

// Compile builds source (identified by content hash) into a native plugin
// and returns the artifact's path, <CacheDir>/<hash>.so. If the artifact already exists
// on disk, Compile returns its path immediately without invoking the
// toolchain.
func Compile(source, hash string, needsModule bool, deps []string, opts Options) (string, error) {
	if !supportedPlatform() {
		return "", ErrUnsupportedPlatform
	}
	if opts.CacheDir == "" {
		return "", fmt.Errorf("gsp: compiler.Options.CacheDir must be set")
	}
	if err := os.MkdirAll(opts.CacheDir, 0o755); err != nil {
		return "", fmt.Errorf("gsp: failed to create cache dir: %w", err)
	}

	artifact := filepath.Join(opts.CacheDir, hash+artifactExt())
	if _, err := os.Stat(artifact); err == nil {
		return artifact, nil
	}

	buildCache := resolveBuildCache(opts)
	if err := os.MkdirAll(buildCache, 0o755); err != nil {
		return "", fmt.Errorf("gsp: failed to create build cache dir: %w", err)
	}

	if needsModule {
		return compileModule(source, hash, deps, opts, artifact, buildCache)
	}
	return compileSimple(source, hash, opts, artifact, buildCache)
}

func resolveBuildCache(opts Options) string {
	if opts.BuildCacheDir != "" {
		return opts.BuildCacheDir
	}
	if v := os.Getenv("GSP_BUILD_CACHE"); v != "" {
		return v
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".gsp", "buildcache")
	}
	return filepath.Join(opts.CacheDir, "buildcache")
}

func compileSimple(source, hash string, opts Options, artifact, buildCache string) (string, error) {
	srcPath := filepath.Join(opts.CacheDir, hash+".go")
	if err := os.WriteFile(srcPath, []byte(source), 0o644); err != nil {
		return "", fmt.Errorf("gsp: failed to write source %s: %w", srcPath, err)
	}

	cmd := exec.Command("go", "build", "-buildmode=plugin", "-ldflags=-s -w", "-o", artifact, srcPath)
	cmd.Env = append(os.Environ(), "GOCACHE="+buildCache)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &CompileError{Stderr: stderr.String()}
	}

	os.Remove(srcPath)
	return artifact, nil
}

func compileModule(source, hash string, deps []string, opts Options, artifact, buildCache string) (string, error) {
	prefix := opts.ModulePrefix
	if prefix == "" {
		prefix = "gsprsp"
	}
	moduleDir := filepath.Join(opts.CacheDir, "module", hash)
	if err := os.MkdirAll(moduleDir, 0o755); err != nil {
		return "", fmt.Errorf("gsp: failed to create scratch module dir: %w", err)
	}

	runtimePath := opts.RuntimePath
	if runtimePath == "" {
		runtimePath = os.Getenv("GSP_RUNTIME_PATH")
	}

	needsRuntime := strings.Contains(source, "github.com/goserverpages/gsp/runtime")
	goMod := buildGoMod(prefix, hash, runtimePath, deps, needsRuntime)
	if err := os.WriteFile(filepath.Join(moduleDir, "go.mod"), []byte(goMod), 0o644); err != nil {
		return "", fmt.Errorf("gsp: failed to write scratch go.mod: %w", err)
	}
	if err := os.WriteFile(filepath.Join(moduleDir, "main.go"), []byte(source), 0o644); err != nil {
		return "", fmt.Errorf("gsp: failed to write scratch main.go: %w", err)
	}

	cmd := exec.Command("go", "build", "-buildmode=plugin", "-ldflags=-s -w", "-o", artifact, ".")
	cmd.Dir = moduleDir
	cmd.Env = append(os.Environ(), "GOCACHE="+buildCache, "GOFLAGS=-mod=mod")
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		// Leave the scratch directory in place for debugging a failed build.
		return "", &CompileError{Stderr: stderr.String()}
	}

	return artifact, nil
}

// buildGoMod writes the scratch module's go.mod. The `runtime` package a
// generated artifact imports (github.com/goserverpages/gsp/runtime) is a
// plain subpackage of this project's own module, not a separate module, so
// pulling it in means requiring and replacing the whole gsp module at
// runtimePath; Go only compiles the subpackage actually imported.
func buildGoMod(prefix, hash, runtimePath string, deps []string, needsRuntime bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "module %s/m%s\n\ngo 1.24\n\n", prefix, hash)
	if needsRuntime && runtimePath != "" {
		fmt.Fprintf(&b, "replace github.com/goserverpages/gsp => %s\n\n", runtimePath)
	}
	if len(deps) > 0 || needsRuntime {
		b.WriteString("require (\n")
		for _, d := range deps {
			fmt.Fprintf(&b, "\t%s\n", d)
		}
		if needsRuntime {
			b.WriteString("\tgithub.com/goserverpages/gsp v0.0.0\n")
		}
		b.WriteString(")\n")
	}
	return b.String()
}
