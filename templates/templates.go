// Package templates embeds the shop's HTML pages and static assets.
package templates

import (
	"embed"
	"io/fs"
)

//go:embed *.html static/*
var FS embed.FS

// Static is the static/ subtree, served under /static/.
func Static() fs.FS {
	sub, err := fs.Sub(FS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
