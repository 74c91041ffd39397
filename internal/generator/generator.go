// Package generator turns a parsed template into a complete Go source file
// implementing the six-symbol plugin ABI (see gsp/internal/loader), plus the
// build metadata (module-or-simple build, extra go.mod requires) the
// compiler needs to turn that source into a native plugin.
package generator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goserverpages/gsp/internal/parser"
)

// GeneratedCode is the output of Generate: a self-contained package main
// compilation unit plus whatever the compiler needs to build it.
type GeneratedCode struct {
	// Source is the full text of main.go for this artifact.
	Source string
	// NeedsModule is true when Source can't be compiled as a single file
	// (it imports gsp/runtime or a directive-pulled dependency).
	NeedsModule bool
	// Dependencies are go.mod require-line bodies, e.g.
	// "github.com/ncruces/go-sqlite3 v0.28.0", in first-seen order.
	Dependencies []string
}

// directiveDep is a known directive alias mapped to the go.mod requires it
// pulls in.
type directiveDep struct {
	requires []string
}

var knownDirectives = map[string]directiveDep{
	"sqlite": {requires: []string{"github.com/ncruces/go-sqlite3 v0.28.0"}},
	"markdown": {requires: []string{
		"github.com/yuin/goldmark v1.7.8",
		"github.com/yuin/goldmark-highlighting/v2 v2.0.0-20230729083705-37449abec8cc",
		"github.com/alecthomas/chroma/v2 v2.15.0",
	}},
	"sanitize": {requires: []string{"github.com/microcosm-cc/bluemonday v1.0.27"}},
	"lazy":     {}, // sync.OnceValue is stdlib; no extra requires.
}

// scan is the set of booleans the generator derives from a single pass over
// a template's tokens, driving which imports and helpers get emitted.
type scan struct {
	hasLazy            bool
	hasRequest         bool
	hasEscapeHTML      bool
	hasMarkdown        bool
	hasSanitize        bool
	hasResponseControl bool
	hasExpression      bool
	hasSqlite          bool
	needsModule        bool
	extraRequires      []string
	extraImports       []string // raw "path" or quoted import lines from `use` directives
}

func scanTemplate(t parser.ParsedTemplate) scan {
	var s scan
	seenRequire := map[string]bool{}
	seenImport := map[string]bool{}

	addRequires := func(reqs []string) {
		for _, r := range reqs {
			if !seenRequire[r] {
				seenRequire[r] = true
				s.extraRequires = append(s.extraRequires, r)
			}
		}
	}

	for _, tok := range t.Tokens {
		payload := tok.Payload
		if tok.Kind == parser.Expression {
			s.hasExpression = true
		}

		if strings.Contains(payload, "runtime.Lazy") || strings.Contains(payload, "OnceValue") {
			s.hasLazy = true
		}
		if strings.Contains(payload, "req.") || strings.Contains(payload, "req(") {
			s.hasRequest = true
		}
		if strings.Contains(payload, "EscapeHTML") {
			s.hasEscapeHTML = true
		}
		if strings.Contains(payload, "Markdown(") {
			s.hasMarkdown = true
		}
		if strings.Contains(payload, "SanitizeHTML(") {
			s.hasSanitize = true
		}
		if strings.Contains(payload, "Header(") || strings.Contains(payload, "HeaderURL(") ||
			strings.Contains(payload, "SetCookie(") || strings.Contains(payload, "CleanCookie(") {
			s.hasResponseControl = true
		}

		if tok.Kind == parser.Directive {
			fields := strings.Fields(payload)
			if len(fields) == 0 {
				continue
			}
			switch fields[0] {
			case "use":
				imp := strings.TrimSpace(strings.TrimPrefix(payload, "use"))
				if !seenImport[imp] {
					seenImport[imp] = true
					s.extraImports = append(s.extraImports, imp)
				}
				s.needsModule = true
			case "dep":
				dep := strings.TrimSpace(strings.TrimPrefix(payload, "dep"))
				addRequires([]string{dep})
				s.needsModule = true
			default:
				if d, ok := knownDirectives[fields[0]]; ok {
					addRequires(d.requires)
					s.needsModule = true
					if fields[0] == "sqlite" {
						s.hasSqlite = true
					}
				}
			}
		}
	}

	if s.hasRequest || s.hasResponseControl || s.hasEscapeHTML || s.hasMarkdown || s.hasSanitize || s.hasSqlite {
		s.needsModule = true
	}

	return s
}

// Generate assembles a full Go source file implementing the plugin ABI for t.
func Generate(t parser.ParsedTemplate) GeneratedCode {
	s := scanTemplate(t)

	var b strings.Builder

	b.WriteString("package main\n\n")

	imports := []string{`"strconv"`, `"strings"`}
	if s.hasExpression {
		imports = append(imports, `"fmt"`)
	}
	if s.hasLazy {
		imports = append(imports, `"sync"`)
	}
	if s.hasRequest || s.hasResponseControl || s.hasEscapeHTML || s.hasMarkdown || s.hasSanitize || s.hasSqlite {
		imports = append(imports, `"github.com/goserverpages/gsp/runtime"`)
	}
	for _, imp := range s.extraImports {
		if strings.HasPrefix(imp, `"`) {
			imports = append(imports, imp)
		} else {
			imports = append(imports, strconv.Quote(imp))
		}
	}
	imports = dedupStrings(imports)

	b.WriteString("import (\n")
	for _, imp := range imports {
		fmt.Fprintf(&b, "\t%s\n", imp)
	}
	b.WriteString(")\n\n")

	// Render() resets these at entry, so a value set by one invocation
	// (HeaderURL, SetCookie, ...) never leaks into the next call to the same
	// cached artifact.
	b.WriteString("var (\n")
	b.WriteString("\tstatus   uint16 = 200\n")
	b.WriteString("\tredirect string\n")
	b.WriteString("\tcookies  []cookieRecord\n")
	b.WriteString("\theaders  []headerRecord\n")
	b.WriteString(")\n\n")

	b.WriteString("type cookieRecord struct {\n\tname, value string\n\tmaxAge int64\n}\n\n")
	b.WriteString("type headerRecord struct {\n\tname, value string\n}\n\n")

	b.WriteString(`func Header(code uint16) { status = code }

func HeaderURL(url string) {
	redirect = url
	status = 302
}

func SetCookie(name, value string, maxAge int64) {
	cookies = append(cookies, cookieRecord{name, value, maxAge})
}

func CleanCookie(name string) {
	cookies = append(cookies, cookieRecord{name, "", -1})
}

func addHeader(name, value string) {
	headers = append(headers, headerRecord{name, value})
}

`)

	for _, decl := range t.Declarations {
		b.WriteString(decl)
		b.WriteString("\n\n")
	}

	b.WriteString("func Render() string {\n")
	b.WriteString("\tvar output strings.Builder\n")
	b.WriteString("\tstatus, redirect, cookies, headers = 200, \"\", nil, nil\n")
	if s.hasRequest || s.hasResponseControl {
		b.WriteString("\treq := runtime.NewRequest()\n\t_ = req\n")
	}
	for _, tok := range t.Tokens {
		switch tok.Kind {
		case parser.Text:
			fmt.Fprintf(&b, "\toutput.WriteString(%s)\n", goQuote(tok.Payload))
		case parser.Expression:
			fmt.Fprintf(&b, "\toutput.WriteString(fmt.Sprint(%s))\n", tok.Payload)
		case parser.Code:
			for _, line := range strings.Split(tok.Payload, "\n") {
				fmt.Fprintf(&b, "\t%s\n", line)
			}
		case parser.Directive, parser.Declaration:
			// consumed during scanning/emission above
		}
	}
	b.WriteString("\treturn output.String()\n")
	b.WriteString("}\n\n")

	b.WriteString(`func FreeString(s string) {}

func GetStatusCode() uint16 { return status }

func GetRedirect() string { return redirect }

func GetCookies() string {
	var b strings.Builder
	for i, c := range cookies {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(c.name)
		b.WriteString("\t")
		b.WriteString(c.value)
		b.WriteString("\t")
		b.WriteString(strconv.FormatInt(c.maxAge, 10))
	}
	return b.String()
}

func GetHeaders() string {
	var b strings.Builder
	for i, h := range headers {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(h.name)
		b.WriteString(":")
		b.WriteString(h.value)
	}
	return b.String()
}
`)

	return GeneratedCode{
		Source:       b.String(),
		NeedsModule:  s.needsModule,
		Dependencies: s.extraRequires,
	}
}

// dedupStrings removes repeats while preserving first-seen order.
func dedupStrings(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// goQuote renders s as a double-quoted Go string literal.
func goQuote(s string) string {
	return strconv.Quote(s)
}
