// Package migrations embeds the versioned goose SQL files.
package migrations

import "embed"

// FS holds every *.sql migration at the package root.
//
//go:embed *.sql
var FS embed.FS
