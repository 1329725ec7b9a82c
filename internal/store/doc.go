// Package store is the relational data layer behind the action pipeline.
//
// It loads resources with the SQL produced by querysql and the eager-load
// plan produced by include, and maps create/update/delete mutations onto
// rows. Supported engines: SQLite (mattn/go-sqlite3), PostgreSQL
// (jackc/pgx stdlib) and MySQL (go-sql-driver/mysql).
//
// # Round trips
//
// A list or retrieve issues:
//   - one primary query; to-one includes are LEFT JOINed into it and the
//     pagination total comes from COUNT(*) OVER () in the same statement
//   - one IN query per to-many include hop, with that hop's own to-one
//     includes joined in
//   - a separate COUNT(*) only when a page past the last row is requested
//
// # Critical Patterns
//
//   - Every query has a deterministic ORDER BY ending in the primary key
//   - All values are bound parameters, never interpolated
//   - Reads return empty slices, not nil
//
// # SQLite Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
