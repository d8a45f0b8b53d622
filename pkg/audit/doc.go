// Package audit records security-relevant account events: registrations,
// logins, credential changes and admin actions on other users.
//
// Events go through the Logger interface. Two sinks are provided:
//
//   - StructuredLogger writes each event as a structured line on the
//     application logger
//   - FileLogger appends newline-delimited JSON to <dir>/audit.log and
//     rotates the file by size
//
// MultiLogger fans one event out to several sinks.
//
// Usage:
//
//	logger := audit.NewMultiLogger(audit.NewStructuredLogger(appLogger), fileLogger)
//	event := audit.NewEvent(r, audit.EventAdminRoleChange, audit.StatusSuccess)
//	event.TargetUserID = audit.Int64(id)
//	_ = logger.Log(r.Context(), event)
//
// Audit failures never fail the request that produced the event.
package audit
