// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for human readability
//
// Fatal is reserved for the one unrecoverable condition in the system,
// stack exhaustion of a monitored worker; everything else logs and
// continues.
package logging
