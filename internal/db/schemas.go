package db

import "embed"

// sqlSchemas holds the numbered up/down migrations, applied in order by
// golang-migrate.
//
//go:embed migrations/*.sql
var sqlSchemas embed.FS
