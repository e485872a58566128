package bundle

import (
	"maps"
	"slices"
	"time"
)

// Descriptor describes a bundle as offered by the remote catalog. The origin
// is authoritative for every field.
type Descriptor struct {
	ID              string            `json:"id" yaml:"id"`
	DisplayName     string            `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	Version         int               `json:"version" yaml:"version"`
	ContentHash     string            `json:"contentHash" yaml:"contentHash"`
	Dependencies    []string          `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	PayloadLocator  string            `json:"payloadLocator" yaml:"payloadLocator"`
	ManifestLocator string            `json:"manifestLocator,omitempty" yaml:"manifestLocator,omitempty"`
	UpdatedAt       time.Time         `json:"updatedAt" yaml:"updatedAt"`
	Notes           string            `json:"notes,omitempty" yaml:"notes,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Clone returns a copy of d that shares no slices or maps with it.
func (d Descriptor) Clone() Descriptor {
	d.Dependencies = slices.Clone(d.Dependencies)
	d.Metadata = maps.Clone(d.Metadata)
	return d
}

// IndexEntry is the local record of a synced bundle.
type IndexEntry struct {
	ID           string            `json:"id"`
	DisplayName  string            `json:"displayName,omitempty"`
	Version      int               `json:"version"`
	ContentHash  string            `json:"contentHash"`
	Dependencies []string          `json:"dependencies,omitempty"`
	UpdatedAt    time.Time         `json:"updatedAt"`
	StoragePath  string            `json:"storagePath"`
	ManifestPath string            `json:"manifestPath,omitempty"`
	SyncedAt     time.Time         `json:"syncedAt"`
	Notes        string            `json:"notes,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// EntryFromDescriptor builds the index entry recorded after a successful sync.
func EntryFromDescriptor(d Descriptor, storagePath, manifestPath string, syncedAt time.Time) IndexEntry {
	return IndexEntry{
		ID:           d.ID,
		DisplayName:  d.DisplayName,
		Version:      d.Version,
		ContentHash:  d.ContentHash,
		Dependencies: slices.Clone(d.Dependencies),
		UpdatedAt:    d.UpdatedAt,
		StoragePath:  storagePath,
		ManifestPath: manifestPath,
		SyncedAt:     syncedAt,
		Notes:        d.Notes,
		Metadata:     maps.Clone(d.Metadata),
	}
}

func (e IndexEntry) clone() IndexEntry {
	e.Dependencies = slices.Clone(e.Dependencies)
	e.Metadata = maps.Clone(e.Metadata)
	return e
}

// IndexMeta holds bucket-level information about the origin the index was
// synced from.
type IndexMeta struct {
	OriginID   string    `json:"originId,omitempty"`
	OriginName string    `json:"originName,omitempty"`
	LastSync   time.Time `json:"lastSync,omitempty"`
}

// Index is the persisted set of local bundles. Entries keep insertion order;
// replacing an entry keeps its position.
type Index struct {
	Entries []IndexEntry `json:"entries"`
	Meta    IndexMeta    `json:"metadata"`
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{Entries: []IndexEntry{}}
}

// Get returns the entry for id.
func (x *Index) Get(id string) (IndexEntry, bool) {
	if i := x.position(id); i >= 0 {
		return x.Entries[i], true
	}
	return IndexEntry{}, false
}

// Upsert inserts entry or replaces the existing entry with the same id.
func (x *Index) Upsert(entry IndexEntry) {
	if i := x.position(entry.ID); i >= 0 {
		x.Entries[i] = entry
		return
	}
	x.Entries = append(x.Entries, entry)
}

// Remove deletes the entry for id and reports whether it existed.
func (x *Index) Remove(id string) bool {
	i := x.position(id)
	if i < 0 {
		return false
	}
	x.Entries = slices.Delete(x.Entries, i, i+1)
	return true
}

// IDs returns entry ids in index order.
func (x *Index) IDs() []string {
	ids := make([]string, len(x.Entries))
	for i, e := range x.Entries {
		ids[i] = e.ID
	}
	return ids
}

// Len returns the number of entries.
func (x *Index) Len() int {
	return len(x.Entries)
}

// Clone returns a deep copy that shares no slices or maps with x.
func (x *Index) Clone() *Index {
	out := &Index{
		Entries: make([]IndexEntry, len(x.Entries)),
		Meta:    x.Meta,
	}
	for i, e := range x.Entries {
		out.Entries[i] = e.clone()
	}
	return out
}

func (x *Index) position(id string) int {
	for i := range x.Entries {
		if x.Entries[i].ID == id {
			return i
		}
	}
	return -1
}
