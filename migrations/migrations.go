// Package migrations embeds the SQL schema so the binaries and tests apply
// the same files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
