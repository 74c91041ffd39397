// Command gsp is the default CLI entry point: render a template once, serve
// a docroot, precompile it ahead of time, or explain a single template.
package main

import (
	"github.com/goserverpages/gsp/app"
)

func main() {
	app.Main()
}
