// filepath: internal/db/migrations/embed.go
package migrations

import "embed"

// FS holds the goose migrations of the local sqlite gallery backend.
//
//go:embed *.sql
var FS embed.FS
