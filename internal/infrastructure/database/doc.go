// Package database provides the SQLite persistence layer for LiquiSense Core.
//
// The database holds data that must survive restarts but is too relational
// for the YAML calibration document: the consumable ledger (actuator
// channel runtime and dispensed-volume counters) lives here.
//
// # Features
//
//   - WAL mode for concurrent reads during writes
//   - Embedded SQL migrations applied at startup (see the migrations package)
//   - Health checks for supervision
//   - Restricted file permissions (0600)
//
// # Usage
//
//	db, err := database.Open(database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
