// Package database provides relational storage for the device server.
//
// This package manages:
//   - SQLite (default, embedded) or PostgreSQL connections
//   - Placeholder rebinding so queries are written once with ?
//   - Embedded schema migrations
//   - Connection pooling and lifecycle management
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The SQLite file is restricted to 0600
//
// Usage:
//
//	db, err := database.Open(database.Config{
//	    Driver: cfg.Database.Driver,
//	    Path:   cfg.Database.Path,
//	    DSN:    cfg.Database.DSN,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration Strategy:
//
// Migration SQL must run unchanged on SQLite and PostgreSQL. Each file
// pair is YYYYMMDD_HHMMSS_name.up.sql / .down.sql.
package database
