// Package migrations embeds the schema of the local CLI session database.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
