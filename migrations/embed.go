// Package migrations embeds the Postgres schema used by the dead-letter
// snapshot backend.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
