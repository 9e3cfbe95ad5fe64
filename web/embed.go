// Package web embeds the built frontend so the binary is self contained.
package web

import "embed"

//go:embed frontend/dist
var Assets embed.FS
