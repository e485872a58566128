// Package graph resolves bundle dependencies. It builds a validated DAG from a
// catalog snapshot or the local index, rejects cycles, reports dangling
// dependencies, and produces deterministic dependency-first closures.
package graph
