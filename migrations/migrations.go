// Package migrations embeds the goose-formatted SQL migrations for the
// PostgreSQL store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
