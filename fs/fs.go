// Package appfs embeds the files the binaries need at runtime.
package appfs

import "embed"

//go:embed migrations all:assets
var FS embed.FS

const (
	EmailTemplatesDir   = "assets/templates/email"
	CommonPasswordsFile = "assets/common-passwords.txt.gz"
)

// MigrationsDir returns the goose migrations directory of the given database engine.
func MigrationsDir(engine string) string {
	return "migrations/" + engine
}
