package appfs

import "embed"

// FS holds the goose migrations, one directory per database engine (migrations/<engine>).
//
//go:embed migrations
var FS embed.FS

// DefaultCatalog is the achievements catalog used when no catalog file is configured.
//
//go:embed catalog/default.yaml
var DefaultCatalog []byte

func MigrationsDir(engine string) string {
	return "migrations/" + engine
}
