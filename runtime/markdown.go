package runtime

import (
	"bytes"
	"fmt"
	"sync"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
)

var markdownBufPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

var markdownConverter = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Footnote,
		highlighting.NewHighlighting(
			highlighting.WithFormatOptions(chromahtml.WithClasses(true)),
		),
	),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
)

// Markdown renders CommonMark+GFM input to HTML with syntax-highlighted
// fenced code blocks. Raw HTML in the input passes through unchanged;
// templates that render untrusted markdown should pipe the result through
// SanitizeHTML.
func Markdown(input string) (string, error) {
	buf := markdownBufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer markdownBufPool.Put(buf)

	if err := markdownConverter.Convert([]byte(input), buf); err != nil {
		return "", fmt.Errorf("gsp/runtime: markdown conversion failed: %w", err)
	}
	return buf.String(), nil
}
