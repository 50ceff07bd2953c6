// Package migrations embeds the goose migrations for the session table, for
// deployments that version the schema instead of relying on the persister's
// built-in bootstrap.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
