// Package migrations embeds the Postgres schema for the booking engine.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
