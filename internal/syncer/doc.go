// Package syncer keeps the local bundle index in step with a remote catalog.
//
// Fetch compares the catalog against the index without side effects. SyncOne
// downloads one bundle and its dependencies, dependencies first, and records
// each bundle in the index only after its payload is durably stored. SyncAll
// processes a comparison report in two phases, stale bundles before new ones,
// with bounded parallelism inside each phase and per-bundle failure isolation.
//
// The engine is the single writer of the index. Every mutation is applied to
// a copy, persisted through the index store, and only then swapped in, so a
// failed write or a crash leaves the previously recorded state intact.
package syncer
