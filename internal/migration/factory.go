package migration

// NewMigratorFromSQLitePath creates a migrator for the cooldown mirror
// store's sqlite file, the one migration target RouteCodex actually
// runs against (see vrouter/cooldownstore).
func NewMigratorFromSQLitePath(path string) (*DefaultMigrator, error) {
	return NewMigrator(&Config{
		DatabaseType: DatabaseTypeSQLite,
		DatabaseURL:  BuildDatabaseURL(DatabaseTypeSQLite, "", 0, path, "", "", ""),
		TableName:    "schema_migrations",
	})
}

// NewMigratorFromURL creates a new migrator from a database URL.
func NewMigratorFromURL(dbType, dbURL string) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}

	return NewMigrator(&Config{
		DatabaseType: dt,
		DatabaseURL:  dbURL,
		TableName:    "schema_migrations",
	})
}
