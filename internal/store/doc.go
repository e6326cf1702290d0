// Package store persists pipeline state in SQLite and is the only writer
// interface the batch jobs share.
//
// Four entity kinds are tracked: Study, Participant, Session, and Series.
// Progress through the pipeline is recorded as nullable per-stage timestamps
// on sessions and series; those columns double as the audit log, and the
// stage selector derives eligibility from them.
//
// One advisory file lock per database location serializes multi-process
// access; each statement retries a configurable number of times before
// surfacing a query error. Partial updates go through typed Update structs
// (nil field = untouched) and explicit Clear calls (named field = NULL), so
// "absent" and "erase" never blur. Batch jobs own transaction boundaries via
// Commit.
//
// The schema is created and upgraded idempotently on Open; columns introduced
// by later revisions are added with ALTER TABLE without destroying data.
package store
