// Package appfs embeds the database migrations and the static assets into the binaries.
package appfs

import "embed"

//go:embed migrations/*.sql all:assets
var FS embed.FS
