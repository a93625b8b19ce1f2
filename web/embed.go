// Package web embeds the dashboard page served by the API server.
//
// Usage in the API server:
//
//	import "github.com/seenimoa/finanalyst/web"
//	fs := web.StaticFS() // io/fs.FS rooted at static/
package web

import (
	"embed"
	"io/fs"
)

//go:embed all:static
var dist embed.FS

// StaticFS returns a filesystem rooted at the embedded static/ directory,
// ready for http.FileServerFS.
func StaticFS() fs.FS {
	sub, err := fs.Sub(dist, "static")
	if err != nil {
		panic("web: embedded static directory missing: " + err.Error())
	}
	return sub
}
