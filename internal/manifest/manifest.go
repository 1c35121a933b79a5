package manifest

import "time"

// SchemaVersion is the manifest schema marker. A persisted manifest with a
// different version is treated as unreadable and replaced with a fresh one.
const SchemaVersion = 1

// FileRecord tracks one successfully uploaded source file
type FileRecord struct {
	Path       string    `json:"path"`        // relative path under the handshake dir
	Size       int64     `json:"size"`        // fingerprint: size in bytes
	ModTime    time.Time `json:"mtime"`       // fingerprint: modification time
	UploadedAt time.Time `json:"uploaded_at"` // last successful transfer
	Extension  string    `json:"extension"`   // suffix, used only for statistics
}

// Manifest is the durable record of which files have been uploaded.
// An entry exists iff the file was successfully uploaded at least once
// since the last reset; files without an entry are considered new.
type Manifest struct {
	Version    int                   `json:"version"`
	Generation uint64                `json:"generation"`
	Entries    map[string]FileRecord `json:"entries"`
}

// New returns an empty manifest at the given generation
func New(generation uint64) *Manifest {
	return &Manifest{
		Version:    SchemaVersion,
		Generation: generation,
		Entries:    make(map[string]FileRecord),
	}
}

// Clone returns an independent copy the orchestrator can mutate while the
// original stays visible to readers.
func (m *Manifest) Clone() *Manifest {
	c := New(m.Generation)
	for path, rec := range m.Entries {
		c.Entries[path] = rec
	}
	return c
}

// Record stores or refreshes the entry for a successfully uploaded file
func (m *Manifest) Record(rec FileRecord) {
	m.Entries[rec.Path] = rec
}

// Lookup returns the record for a path, if one exists
func (m *Manifest) Lookup(path string) (FileRecord, bool) {
	rec, ok := m.Entries[path]
	return rec, ok
}
