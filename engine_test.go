package gsp

import (
	"testing"
)

func TestContentHashDeterministic(t *testing.T) {
	a := contentHash("hello")
	b := contentHash("hello")
	if a != b {
		t.Errorf("expected equal hashes for equal input, got %s vs %s", a, b)
	}
}

func TestContentHashDiffersOnDifferentInput(t *testing.T) {
	a := contentHash("hello")
	b := contentHash("goodbye")
	if a == b {
		t.Errorf("expected different hashes for different input")
	}
}

func TestNewEngineAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	e, err := NewEngine(Config{Docroot: dir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.config.TemplateExtension != ".gsp" {
		t.Errorf("expected default template extension, got %q", e.config.TemplateExtension)
	}
	if e.config.CacheDir == "" {
		t.Errorf("expected a cache dir to be set")
	}
}

func TestNewEngineAssignsUniqueIDs(t *testing.T) {
	dir := t.TempDir()
	e1, err := NewEngine(Config{Docroot: dir})
	if err != nil {
		t.Fatal(err)
	}
	e2, err := NewEngine(Config{Docroot: dir})
	if err != nil {
		t.Fatal(err)
	}
	if e1.Id() == e2.Id() {
		t.Errorf("expected distinct engine ids, got %d for both", e1.Id())
	}
}

func TestRenderPlainTextWithoutCompiling(t *testing.T) {
	// Rendering a real template would invoke the Go toolchain via
	// internal/compiler; exercising that here would violate the
	// no-toolchain-invocation constraint of this environment. Engine-level
	// behavior for a successful render is covered by the internal/parser,
	// internal/generator, and internal/loader package tests instead.
	t.Skip("rendering requires invoking the go toolchain; see package-level tests instead")
}
