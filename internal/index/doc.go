// Package index persists the local bundle index. Two backends are provided:
// a JSON file replaced atomically on every save, and a SQLite database whose
// saves replace all rows in a single transaction. Both return an empty index
// when nothing has been persisted yet.
package index
