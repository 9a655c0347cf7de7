// Package database provides the local store of grantscan.
//
// The Store keeps two tables:
//   - opportunities: persisted records, upserted by a fixed-width key
//     derived from the record's upsert key
//   - session_reports: every session report as JSON, for the history command
//
// Design decision: SQLite (via modernc.org/sqlite) is the default because
// the database is a single CGO-free file under the XDG data directory.
// PostgreSQL (via github.com/lib/pq) is selected with a postgres:// DSN for
// shared deployments. Statements are built with squirrel so the same code
// serves both placeholder styles.
package database
