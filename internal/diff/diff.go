// Package diff compares the local index against a remote catalog snapshot.
// Comparison is pure: it performs no I/O and never mutates its inputs.
package diff

import (
	"sort"

	"github.com/nebula-labs/nebula/internal/bundle"
)

// Report partitions the remote ids into UpToDate, Stale and RemoteOnly. Local
// ids the remote no longer offers are listed in Orphaned and appear in none of
// the three partitions. Id lists are sorted.
type Report struct {
	UpToDate   []string
	Stale      []string
	RemoteOnly []string
	Orphaned   []string

	// Remote is the snapshot the report was computed from.
	Remote []bundle.Descriptor

	byID map[string]int
}

// Compare classifies every remote descriptor against the local entries. A
// bundle is up to date only when its content hashes are exactly equal.
func Compare(local []bundle.IndexEntry, remote []bundle.Descriptor) *Report {
	r := &Report{
		UpToDate:   []string{},
		Stale:      []string{},
		RemoteOnly: []string{},
		Orphaned:   []string{},
		Remote:     make([]bundle.Descriptor, len(remote)),
		byID:       make(map[string]int, len(remote)),
	}
	for i, d := range remote {
		r.Remote[i] = d.Clone()
	}

	hashes := make(map[string]string, len(local))
	for _, e := range local {
		hashes[e.ID] = e.ContentHash
	}

	for i, d := range remote {
		if _, dup := r.byID[d.ID]; dup {
			continue
		}
		r.byID[d.ID] = i

		hash, ok := hashes[d.ID]
		switch {
		case !ok:
			r.RemoteOnly = append(r.RemoteOnly, d.ID)
		case hash == d.ContentHash:
			r.UpToDate = append(r.UpToDate, d.ID)
		default:
			r.Stale = append(r.Stale, d.ID)
		}
	}

	for _, e := range local {
		if _, ok := r.byID[e.ID]; !ok {
			r.Orphaned = append(r.Orphaned, e.ID)
		}
	}

	sort.Strings(r.UpToDate)
	sort.Strings(r.Stale)
	sort.Strings(r.RemoteOnly)
	sort.Strings(r.Orphaned)
	return r
}

// Has reports whether id is part of the remote snapshot.
func (r *Report) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// Descriptor returns a copy of the remote descriptor for id.
func (r *Report) Descriptor(id string) (bundle.Descriptor, bool) {
	i, ok := r.byID[id]
	if !ok {
		return bundle.Descriptor{}, false
	}
	return r.Remote[i].Clone(), true
}

// Pending returns the number of bundles that need a download.
func (r *Report) Pending() int {
	return len(r.Stale) + len(r.RemoteOnly)
}
