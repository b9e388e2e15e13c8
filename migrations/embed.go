// Package migrations embeds the Keyfold schema migrations into the
// binary, so deployments never depend on SQL files being present on
// disk. Importing the package (usually blank, from main) registers the
// files with the database package.
package migrations

import (
	"embed"

	"github.com/keyfold/keyfold-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
