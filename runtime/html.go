package runtime

import "strings"

var htmlEscaper = strings.NewReplacer(
	`&`, "&amp;",
	`<`, "&lt;",
	`>`, "&gt;",
	`"`, "&#34;",
	`'`, "&#39;",
)

// EscapeHTML replaces &, <, >, ", and ' with their HTML entity equivalents.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
