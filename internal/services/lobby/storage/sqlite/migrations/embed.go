package migrations

import "embed"

// FS contains embedded SQLite migrations for lobby activity storage.
//
//go:embed *.sql
var FS embed.FS
