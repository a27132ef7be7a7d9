// Package migrations embeds the goose SQL migrations for the Core's four
// tables, so the binary can run them without a separate migrations module
// on disk.
package migrations

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS
