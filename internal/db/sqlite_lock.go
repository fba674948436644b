package db

import "sync"

// SQLiteWriteMutex is a global mutex for serializing SQLite write transactions.
//
// SQLite only allows 1 writer at a time, even with WAL mode enabled. Write
// paths that open an IMMEDIATE transaction (task transitions, rotation
// pointer advances, version activation) acquire this lock first so in-process
// writers queue instead of hitting SQLITE_BUSY.
//
// Usage:
//
//	db.SQLiteWriteMutex.Lock()
//	defer db.SQLiteWriteMutex.Unlock()
//	// ... perform database write transaction ...
var SQLiteWriteMutex sync.Mutex
