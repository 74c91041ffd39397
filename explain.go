package gsp

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/goserverpages/gsp/internal/generator"
	"github.com/goserverpages/gsp/internal/parser"
)

// ExplainResult is the diagnostic dump Explain produces for one template: the
// token stream it parsed to and the build metadata the generator derived
// from it, without invoking the compiler.
type ExplainResult struct {
	Hash         string         `yaml:"hash"`
	Tokens       []explainToken `yaml:"tokens"`
	Directives   []string       `yaml:"directives"`
	Declarations []string       `yaml:"declarations"`
	NeedsModule  bool           `yaml:"needs_module"`
	Dependencies []string       `yaml:"dependencies,omitempty"`
	Source       string         `yaml:"source"`
}

type explainToken struct {
	Kind    string `yaml:"kind"`
	Payload string `yaml:"payload"`
}

// Explain parses and generates (without compiling) the given template text
// and returns a diagnostic dump suitable for `gsp --explain`.
func Explain(templateText string) (ExplainResult, error) {
	pt, err := parser.Parse(templateText)
	if err != nil {
		return ExplainResult{}, wrapErr(KindParse, "", err)
	}

	gc := generator.Generate(pt)

	result := ExplainResult{
		Hash:         contentHash(templateText),
		Directives:   pt.Directives,
		Declarations: pt.Declarations,
		NeedsModule:  gc.NeedsModule,
		Dependencies: gc.Dependencies,
		Source:       gc.Source,
	}
	for _, tok := range pt.Tokens {
		result.Tokens = append(result.Tokens, explainToken{Kind: tok.Kind.String(), Payload: tok.Payload})
	}
	return result, nil
}

// YAML renders an ExplainResult as YAML text.
func (r ExplainResult) YAML() (string, error) {
	out, err := yaml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("gsp: failed to marshal explain result: %w", err)
	}
	return string(out), nil
}
