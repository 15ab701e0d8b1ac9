// Package web embeds the single page UI served at the site root.
package web

import "embed"

// StaticFS holds index.html and its assets under static/.
//
//go:embed static
var StaticFS embed.FS
