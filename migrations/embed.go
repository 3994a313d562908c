// Package migrations embeds SQL migration files into the binary.
//
// Importing this package (usually with a blank import from main) registers
// the files with the database package.
package migrations

import (
	"embed"

	"github.com/flockweigh/flockweigh-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
