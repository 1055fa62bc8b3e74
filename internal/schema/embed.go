package schema

import "embed"

// MigrationsDir is the directory inside Migrations holding the scripts.
const MigrationsDir = "migrations"

//go:embed migrations/*.sql
var Migrations embed.FS
