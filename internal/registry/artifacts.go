package registry

import (
	"fmt"

	"github.com/JakeFAU/media-archiver/internal/archive"
)

// Artifacts is the artifact store keyed by artifact key.
type Artifacts struct {
	records map[string]archive.ArtifactRecord
}

// NewArtifacts returns an empty store.
func NewArtifacts() *Artifacts {
	return &Artifacts{records: make(map[string]archive.ArtifactRecord)}
}

// Add inserts rec. Keys are never reused.
func (a *Artifacts) Add(rec archive.ArtifactRecord) error {
	if rec.Key == "" {
		return archive.NewValidationError("key", "is required")
	}
	if _, ok := a.records[rec.Key]; ok {
		return fmt.Errorf("artifact %s: %w", rec.Key, archive.ErrDuplicate)
	}
	a.records[rec.Key] = rec
	return nil
}

// Remove deletes and returns the record for key.
func (a *Artifacts) Remove(key string) (archive.ArtifactRecord, error) {
	rec, ok := a.records[key]
	if !ok {
		return archive.ArtifactRecord{}, fmt.Errorf("artifact %s: %w", key, archive.ErrNotFound)
	}
	delete(a.records, key)
	return rec, nil
}

// Get returns the record for key.
func (a *Artifacts) Get(key string) (archive.ArtifactRecord, bool) {
	rec, ok := a.records[key]
	return rec, ok
}

// Snapshot returns every record sorted by pretty name, then key.
func (a *Artifacts) Snapshot() []archive.ArtifactRecord {
	out := make([]archive.ArtifactRecord, 0, len(a.records))
	for _, rec := range a.records {
		out = append(out, rec)
	}
	archive.SortArtifacts(out)
	return out
}

// Len reports the number of artifacts.
func (a *Artifacts) Len() int {
	return len(a.records)
}
