// Package registry keeps the runtime table of loaded bundles. Loading a bundle
// loads its dependency closure from local storage, dependencies first, and
// reference counts every member so shared dependencies stay loaded until the
// last bundle that needs them is unloaded. Concurrent first loads of the same
// bundle are coalesced into a single storage read.
package registry
