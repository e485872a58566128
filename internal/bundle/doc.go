// Package bundle defines the data model shared by the sync engine and the
// runtime registry: remote descriptors, local index entries, the persisted
// index, and the error taxonomy used across packages.
package bundle
