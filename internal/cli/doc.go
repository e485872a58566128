// Package cli defines the Cobra command tree for the nebula CLI. Each file in
// this package registers one top-level command (fetch, sync, load, etc.) with
// the root command. Commands build their components from the decoded config
// and delegate to internal packages; they only handle flags and output.
package cli
