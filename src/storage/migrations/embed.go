// Package migrations embeds the SQL migrations for the history database.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
