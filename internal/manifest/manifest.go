// Package manifest defines the schema of the generated manifest.json artifact
// and its canonical serialization. Serialization must be deterministic: the
// same logical manifest always produces byte-identical output, because the
// refresher's change detection compares raw bytes.
package manifest

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
)

// SchemaVersion identifies the manifest document layout. Bump on breaking
// field changes so downstream consumers can branch.
const SchemaVersion = 1

// Manifest is a complete inventory of a repository snapshot.
type Manifest struct {
	SchemaVersion int         `json:"schema_version"`
	Project       Project     `json:"project"`
	Files         []FileEntry `json:"files"`
	FileCount     int         `json:"file_count"`
	TotalSize     int64       `json:"total_size"`
	ContentHash   string      `json:"content_hash"`
}

// Project carries repository-level metadata extracted from the snapshot.
type Project struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// FileEntry describes one file in the snapshot.
type FileEntry struct {
	Path   string `json:"path"` // slash-separated, relative to the repository root
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// New assembles a manifest from its parts, sorting entries and filling the
// derived fields (count, total size, content hash).
func New(project Project, files []FileEntry) *Manifest {
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	var total int64
	for _, f := range files {
		total += f.Size
	}

	m := &Manifest{
		SchemaVersion: SchemaVersion,
		Project:       project,
		Files:         files,
		FileCount:     len(files),
		TotalSize:     total,
	}
	m.ContentHash = m.computeContentHash()
	return m
}

// computeContentHash hashes the sorted entry list. It deliberately excludes
// project metadata so cosmetic README edits still change the hash only via
// the README's own file entry.
func (m *Manifest) computeContentHash() string {
	h := sha256.New()
	for _, f := range m.Files {
		fmt.Fprintf(h, "%s\x00%d\x00%s\x00", f.Path, f.Size, f.SHA256)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// ShortHash returns an abbreviated content hash for commit messages and logs.
func (m *Manifest) ShortHash() string {
	if len(m.ContentHash) < 12 {
		return m.ContentHash
	}
	return m.ContentHash[:12]
}

// ToJSON serializes the manifest to canonical bytes: two-space indent, struct
// field order, trailing newline.
func (m *Manifest) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// FromJSON deserializes a manifest from JSON.
func FromJSON(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return &m, nil
}
