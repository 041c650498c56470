// Package web embeds the browser recorder served at "/".
package web

import (
	"embed"
	"io/fs"
)

//go:embed static
var files embed.FS

// IndexFile is the page served at "/".
const IndexFile = "index.html"

// Static returns the embedded assets rooted at the static directory.
func Static() fs.FS {
	sub, err := fs.Sub(files, "static")
	if err != nil {
		// fs.Sub only fails for invalid paths.
		panic(err)
	}
	return sub
}
