// Package database provides SQLite connectivity for SwitchSync Core.
//
// This package manages:
//   - Opening the database with WAL mode and busy timeout pragmas
//   - Embedded SQL migrations (versioned up/down files)
//   - Health checks and connection pool statistics
//   - Transaction helpers
//
// SQLite is the durable store for accounts, device records, the device
// catalog, and the state-change audit trail. The connection pool is limited
// to a single writer, which is the serialization point the device
// repository's atomic state writes rely on.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: "./data/switchsync.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
