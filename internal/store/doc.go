// Package store provides the SQLite-backed event store shared by every stage
// of a simulation pipeline.
//
// The store owns:
//   - The native handle: a *sql.DB pinned to a single connection so that
//     TEMPORARY tables created by one stage are visible to the next
//   - The connection identity: the path given to Open and the URI it resolves to
//   - The random source: a per-store generator, reseedable, never global
//
// # Lifetime
//
// A store is opened once and closed exactly once. Every handle derived from a
// store (transformers, scoped connections) checks the store before touching
// the database; after Close all of them fail with ErrUseAfterClose.
//
// # Path forms
//
//   - ""                   private shared-cache in-memory database (unique name)
//   - ":memory:"           exclusive in-memory database, no scoped connections
//   - "file:...?..."       SQLite URI, used verbatim
//   - anything else        database file, created if missing
//
// Shared-cache and file stores allow WithConnection to open an independent
// host-side handle that observes the same tables. TEMPORARY tables are per
// connection and are never visible through a scoped connection.
//
// # Database Configuration
//
//   - busy_timeout=5000 on every connection
//   - WAL journal and synchronous=NORMAL for file-backed stores
//   - Custom SQL functions (see functions.go) on every connection
package store
