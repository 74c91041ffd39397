package gsp

import (
	"strings"
	"testing"
)

func TestExplainPlainText(t *testing.T) {
	result, err := Explain("Hello, World")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Tokens) != 1 || result.Tokens[0].Kind != "Text" {
		t.Fatalf("unexpected tokens: %+v", result.Tokens)
	}
	if result.NeedsModule {
		t.Errorf("plain text should not need a module build")
	}
}

func TestExplainUnclosedTag(t *testing.T) {
	_, err := Explain("prefix <% x :=")
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestExplainYAML(t *testing.T) {
	result, err := Explain(`<%@ sqlite %>hi`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := result.YAML()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "needs_module: true") {
		t.Errorf("expected needs_module: true in YAML, got:\n%s", out)
	}
}
