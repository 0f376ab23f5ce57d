// Package audit records policy lifecycle mutations.
//
// Every create, update, replace, delete, grant and revoke emits one Event
// after the owning transaction commits. Emission is best-effort: a failed
// audit write is logged by the caller and dropped, never propagated back
// into the lifecycle operation.
//
// Backends:
//
//	NewNoOpLogger: discards everything, used in tests and when auditing is off.
//	NewDBLogger:   appends to the audit_events table in PostgreSQL.
//	NewMultiLogger: fans out to several backends.
//
// The S3Archiver moves aged rows out of the database into object storage;
// the sweeper binary drives it on a schedule.
package audit
