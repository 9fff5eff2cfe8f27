// Package database provides SQLite connectivity for the Gray Logic Hub.
//
// This package manages:
//   - Opening the database with WAL mode and a busy timeout
//   - Applying versioned SQL migrations from an fs.FS
//   - Health checks and lifecycle management
//
// All repositories (devices, driver settings, events) share the single
// connection returned by Open. SQLite has one writer, so the pool is
// capped at one connection.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
