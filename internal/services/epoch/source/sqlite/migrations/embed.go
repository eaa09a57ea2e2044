package migrations

import "embed"

// FS contains embedded SQLite migrations for the epoch mirror.
//
//go:embed *.sql
var FS embed.FS
