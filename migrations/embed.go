// Package migrations embeds the SQL schema of the console.
package migrations

import "embed"

// FS holds the golang-migrate files of the console schema.
//
//go:embed *.sql
var FS embed.FS
