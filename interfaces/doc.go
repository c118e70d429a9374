// Package interfaces defines the core types and contracts of the equipment and
// service-provider registry, separating them from their implementations.
//
// # Registry Types
//
//   - Identity: a 20-byte address identifying callers, owners, certifiers and providers
//   - EquipmentID: dense, strictly increasing identifier starting at 1
//   - EquipmentRecord: descriptive record of tokenized equipment plus its owner
//   - ProviderRecord: credential record of a service provider
//
// # Host Contract
//
// Registry operations run against an Env supplied by the host for the duration
// of one transaction. The Env exposes the caller, the clock height, point
// key-value access, persisted counters and the tokenized ownership ledger.
// The host serializes transactions and commits a transaction's writes only if
// the operation returns without error.
//
// # Storage Interfaces
//
//   - StateStore: point key-value store backing the host
//   - BatchWriter: optional atomic multi-key commit
//   - StateStoreFactory: creates stores from URIs
//   - Clock: source of the height value
//
// # Error Types
//
// Registry failures are one of ErrNotFound, ErrUnauthorized or ErrForbidden
// and carry no further payload; ErrorKind maps any error to the kind reported
// to callers.
package interfaces
