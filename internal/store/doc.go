// Package store persists stack state for strategic-faas using SQLite.
//
// # Data Models
//
//   - Stack: a named deployment target, keyed by project and stack name
//     (faas/demo by default). Destroying a stack marks it; selecting it again
//     revives it.
//   - Config: per-stack key/value settings such as aws:region.
//   - Resource: one provisioned object (function, server or gateway) with its
//     outputs. Resources are removed from the store when torn down, so the
//     rows left for a stack are exactly what a destroy must reclaim.
//   - Deployment: one history entry per up or destroy, with its strategy,
//     final status and route URL.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Timestamps are stored as RFC3339 text in UTC.
//
// MockStore is an in-memory implementation for tests that do not need SQLite.
package store
