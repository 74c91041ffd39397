package compiler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCompileReturnsCachedArtifactWithoutInvokingToolchain(t *testing.T) {
	dir := t.TempDir()
	hash := "deadbeef"
	artifact := filepath.Join(dir, hash+".so")
	if err := os.WriteFile(artifact, []byte("not a real plugin"), 0o644); err != nil {
		t.Fatalf("failed to seed artifact: %v", err)
	}

	got, err := Compile("package main", hash, false, nil, Options{CacheDir: dir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != artifact {
		t.Errorf("got %s, want %s", got, artifact)
	}
}

func TestResolveBuildCachePrefersExplicitOption(t *testing.T) {
	got := resolveBuildCache(Options{CacheDir: "/cache", BuildCacheDir: "/explicit"})
	if got != "/explicit" {
		t.Errorf("got %s, want /explicit", got)
	}
}

func TestResolveBuildCacheFallsBackToCacheDir(t *testing.T) {
	t.Setenv("GSP_BUILD_CACHE", "")
	t.Setenv("HOME", "")
	got := resolveBuildCache(Options{CacheDir: "/cache"})
	want := filepath.Join("/cache", "buildcache")
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestBuildGoModIncludesDeclaredDependencies(t *testing.T) {
	mod := buildGoMod("gsprsp", "abc123", "", []string{"github.com/foo/bar v1.0.0"}, false)
	if !strings.Contains(mod, "module gsprsp/mabc123") {
		t.Errorf("missing module line: %s", mod)
	}
	if !strings.Contains(mod, "github.com/foo/bar v1.0.0") {
		t.Errorf("missing dependency: %s", mod)
	}
}

func TestBuildGoModAddsRuntimeReplaceWhenNeeded(t *testing.T) {
	mod := buildGoMod("gsprsp", "abc123", "/path/to/gsp", nil, true)
	if !strings.Contains(mod, "replace github.com/goserverpages/gsp => /path/to/gsp") {
		t.Errorf("expected gsp replace directive, got: %s", mod)
	}
	if !strings.Contains(mod, "github.com/goserverpages/gsp v0.0.0") {
		t.Errorf("expected gsp require, got: %s", mod)
	}
}
