// Package migrations embeds the Postgres ledger schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
