// Package storage provides the optional delivery journal.
//
// Every publish attempt can be appended as one Delivery record. The journal
// is write-only from remarker's point of view: it exists for operators to
// audit what was sent where, and is never read back to replay messages.
//
// Drivers:
//   - "file": dependency-free JSON Lines file
//   - "sqlite": SQLite database (modernc.org/sqlite, pure Go)
package storage
