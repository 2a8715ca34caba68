// Package zerovault is a local-first, reactive SQL data store: reads
// and writes hit an embedded SQLite database directly, every committed
// write is diffed into an append-only, per-field CRDT changelog, and
// that changelog can be exchanged with other replicas through an
// object store (S3, a local directory, or an in-memory backend for
// tests) with automatic last-write-wins conflict resolution.
//
// Open (or OpenMemory) returns a *DB. Save and Delete write through the
// changelog; Query runs a one-shot SQL read; Subscribe keeps a sink
// function fed with the live result of a query, re-running it only
// when a write touches one of the tables it depends on. NewSync builds
// a reusable sync client against a storage URL; its Sync method pulls
// every other replica's new changes, merges them in, and pushes this
// replica's own.
package zerovault
