// Package all wires every built-in storage backend into the storage factory.
// Importing it for side effects makes the "sqlite", "postgres", "mssql", and
// "mysql" kinds available to storage.New and storage.EnsureTable.
package all

import (
	_ "csvingest/internal/storage/mssql"
	_ "csvingest/internal/storage/mysql"
	_ "csvingest/internal/storage/postgres"
	_ "csvingest/internal/storage/sqlite"
)
