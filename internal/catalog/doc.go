// Package catalog talks to the bundle origin. A Client fetches the catalog
// document and payload bytes; HTTPClient serves a remote origin and DirClient
// serves a local mirror directory. Catalog documents are validated against an
// embedded JSON schema and a supported format version before use.
package catalog
