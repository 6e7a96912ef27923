// Package store provides persistent storage for bankd using SQLite.
//
// # Architecture
//
// The store package exposes three interfaces:
//
//   - Queries: user, account and transaction operations
//   - AuditStore: append-only audit log
//   - Store: Queries + AuditStore + WithTx + Close
//
// SQLiteStore implements all of them. The same Queries implementation runs
// against the connection pool or against an open *sql.Tx, so callers write
// ledger logic once and choose the scope with WithTx.
//
// # Data Models
//
//   - User: identity with a closed Role (user, admin)
//   - Account: one per user, decimal balance plus a version counter
//   - Transaction: immutable ledger entry (deposit when FromAccountID is nil)
//   - AuditLog: immutable record of a security-relevant attempt
//
// # SQLite Configuration
//
// Every pooled connection is opened with:
//
//	PRAGMA busy_timeout=5000;
//	PRAGMA foreign_keys=ON;
//	PRAGMA journal_mode=WAL;
//
// and transactions begin IMMEDIATE, so concurrent balance mutations are
// serialized by SQLite's write lock. UpdateBalance additionally checks the
// account version and reports ErrConflict when it moved.
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist
//   - ErrEmailExists: duplicate registration
//   - ErrConflict: lost an optimistic race or timed out waiting for the lock
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewSQLiteStore(filepath.Join(t.TempDir(), "test.db")) for tests.
// ":memory:" is supported but pinned to a single connection.
package store
