// Package storage provides the key-value state stores backing the registry host.
//
// Every store implements interfaces.StateStore: point Get/Set/Delete on
// (collection, key) pairs, atomic per call, with no range queries. Stores that
// can apply several mutations atomically also implement interfaces.BatchWriter,
// which the host uses to commit a transaction in one step.
//
// # Store URI Format
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//
//   - memory://
//   - file:///var/lib/registry/state.json
//   - sqlite:///var/lib/registry/registry.db
//   - redis://:password@localhost:6379/0?prefix=registry:
//   - s3://ACCESS:SECRET@bucket/prefix?region=us-west-2&endpoint=minio.local:9000
//   - vault://vault.example.com:8200/secret/registry?token=...
//
// # Atomicity
//
// memory, file, sqlite and redis commit batches atomically and may be the
// primary store. s3 and vault only write key by key, so the factory accepts
// them as replicas only and CommitBatch refuses them with ErrNotAtomic.
//
// # Replication
//
// ReplicatedStore writes to a primary and mirrors every committed batch to
// replicas on a best-effort basis. Reads go to the primary and fall back to
// replicas only while the primary is unreachable.
package storage
