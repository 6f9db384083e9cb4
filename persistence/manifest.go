package persistence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	// CurrentFileName names the pointer to the active manifest.
	CurrentFileName = "CURRENT"

	manifestPrefix = "MANIFEST-"
	snapshotPrefix = "SNAPSHOT-"

	// ManifestVersion is the manifest format version.
	ManifestVersion = 1
)

// Manifest describes one snapshot of a workspace.
type Manifest struct {
	Version     int            `json:"version"`
	ID          uint64         `json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	Backend     string         `json:"backend"`
	Metric      string         `json:"metric"`
	Codec       string         `json:"codec"`
	Compression string         `json:"compression"`
	Dims        map[string]int `json:"dims"`
	NumDocs     int            `json:"num_docs"`

	// Indexes maps each embedding field to the section holding its index.
	Indexes map[string]string `json:"indexes"`

	Files []FileInfo `json:"files"`
}

// FileInfo describes one section file of a snapshot.
type FileInfo struct {
	Section  string `json:"section"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Checksum uint64 `json:"xxhash64"`
}

// File returns the entry for section.
func (m *Manifest) File(section string) (FileInfo, bool) {
	for _, f := range m.Files {
		if f.Section == section {
			return f, true
		}
	}
	return FileInfo{}, false
}

// ManifestName returns the blob name of manifest id.
func ManifestName(id uint64) string {
	return fmt.Sprintf("%s%06d.json", manifestPrefix, id)
}

// SnapshotDir returns the directory holding the sections of snapshot id.
func SnapshotDir(id uint64) string {
	return fmt.Sprintf("%s%06d", snapshotPrefix, id)
}

func sectionPath(id uint64, section string) string {
	return SnapshotDir(id) + "/" + section + ".bin"
}

// parseID extracts the snapshot id from a manifest or snapshot blob name.
func parseID(name string) (uint64, bool) {
	var rest string
	switch {
	case strings.HasPrefix(name, manifestPrefix):
		rest = strings.TrimSuffix(strings.TrimPrefix(name, manifestPrefix), ".json")
	case strings.HasPrefix(name, snapshotPrefix):
		rest = strings.TrimPrefix(name, snapshotPrefix)
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i]
		}
	default:
		return 0, false
	}

	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func encodeManifest(m *Manifest) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func decodeManifest(data []byte) (*Manifest, error) {
	m := &Manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: decode manifest: %v", ErrCorrupt, err)
	}
	if m.Version != ManifestVersion {
		return nil, fmt.Errorf("%w: manifest version %d", ErrCorrupt, m.Version)
	}
	return m, nil
}
