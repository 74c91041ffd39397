package runtime

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// dbPool mirrors the original runtime's thread-local connection pool with a
// package-level map: one *sql.DB per distinct dsn, shared across
// invocations within the process.
var dbPool sync.Map // dsn string -> *sql.DB

// Database opens (and caches by dsn) a database/sql handle over the pure-Go
// sqlite3 driver, enabled by the `sqlite` directive.
func Database(dsn string) (*sql.DB, error) {
	if v, ok := dbPool.Load(dsn); ok {
		return v.(*sql.DB), nil
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("gsp/runtime: failed to open sqlite database %q: %w", dsn, err)
	}

	actual, loaded := dbPool.LoadOrStore(dsn, db)
	if loaded {
		db.Close()
		return actual.(*sql.DB), nil
	}
	return db, nil
}
