package migrations

import "embed"

// FS contains embedded SQLite migrations for the ephemeral cache.
//
//go:embed *.sql
var FS embed.FS
