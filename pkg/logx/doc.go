// Package logx configures remarker's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured, append-only, rotated at midnight
//     and pruned after a bounded number of days
package logx
