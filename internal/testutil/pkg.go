package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"testing/fstest"
)

// ManifestPath mirrors artifact.ManifestPath without importing it.
const ManifestPath = "package.manifest.json"

// PackageBuilder assembles an in-memory content package. Unless overridden,
// the manifest's content_index is computed from the files added with
// WithFile or WithJSON, so a built package passes index verification.
type PackageBuilder struct {
	manifest  map[string]any
	files     map[string][]byte
	unindexed map[string]bool
	index     map[string]string // explicit content_index overrides
}

// NewPackage starts a package with a valid manifest for packageID.
func NewPackage(packageID string) *PackageBuilder {
	return &PackageBuilder{
		manifest: map[string]any{
			"package_id":            packageID,
			"schema_version":        1,
			"engine_contract_range": ">=1.0.0, <2.0.0",
			"ruleset_version":       "srd-5.1",
		},
		files:     make(map[string][]byte),
		unindexed: make(map[string]bool),
		index:     make(map[string]string),
	}
}

// WithManifestField sets a manifest field. A nil value removes it.
func (b *PackageBuilder) WithManifestField(key string, value any) *PackageBuilder {
	if value == nil {
		delete(b.manifest, key)
		return b
	}
	b.manifest[key] = value
	return b
}

// WithFile adds a file and indexes it.
func (b *PackageBuilder) WithFile(path string, data []byte) *PackageBuilder {
	b.files[path] = data
	return b
}

// WithJSON adds a JSON-encoded file and indexes it.
func (b *PackageBuilder) WithJSON(path string, v any) *PackageBuilder {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		panic(fmt.Sprintf("PackageBuilder: marshal %s: %v", path, err))
	}
	return b.WithFile(path, append(data, '\n'))
}

// WithUnindexedFile adds a file the manifest does not list.
func (b *PackageBuilder) WithUnindexedFile(path string, data []byte) *PackageBuilder {
	b.files[path] = data
	b.unindexed[path] = true
	return b
}

// WithIndexEntry overrides the content_index entry for path. The path does
// not need to exist.
func (b *PackageBuilder) WithIndexEntry(path, hash string) *PackageBuilder {
	b.index[path] = hash
	return b
}

// ContentIndex returns the content_index the manifest will carry.
func (b *PackageBuilder) ContentIndex() map[string]string {
	index := make(map[string]string, len(b.files))
	for path, data := range b.files {
		if b.unindexed[path] {
			continue
		}
		index[path] = SHA256Hex(data)
	}
	maps.Copy(index, b.index)
	return index
}

// Manifest returns the encoded manifest.
func (b *PackageBuilder) Manifest() []byte {
	m := maps.Clone(b.manifest)
	if _, ok := m["content_index"]; !ok {
		m["content_index"] = b.ContentIndex()
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		panic(fmt.Sprintf("PackageBuilder: marshal manifest: %v", err))
	}
	return append(data, '\n')
}

// FS returns the package as an in-memory filesystem.
func (b *PackageBuilder) FS() fstest.MapFS {
	fsys := fstest.MapFS{ManifestPath: {Data: b.Manifest()}}
	for path, data := range b.files {
		fsys[path] = &fstest.MapFile{Data: data}
	}
	return fsys
}

// WriteDir writes the package under dir and returns dir.
func (b *PackageBuilder) WriteDir(t testing.TB, dir string) string {
	t.Helper()
	fsys := b.FS()
	for _, name := range slices.Sorted(maps.Keys(fsys)) {
		target := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", name, err)
		}
		if err := os.WriteFile(target, fsys[name].Data, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

// SHA256Hex returns the lowercase hex SHA-256 of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Greenhollow returns a small package with two entities and one edge:
// npc:alric resides_in location:greenhollow.
func Greenhollow() *PackageBuilder {
	return NewPackage("greenhollow-core").
		WithManifestField("title", "Greenhollow").
		WithJSON("entities/alric.json", map[string]any{
			"stable_id":  "npc:alric",
			"kind":       "npc",
			"name":       "Alric",
			"tags":       []string{"innkeeper"},
			"attributes": map[string]any{"hp": 12},
		}).
		WithJSON("entities/greenhollow.json", map[string]any{
			"stable_id": "location:greenhollow",
			"kind":      "location",
			"name":      "Greenhollow",
		}).
		WithJSON("edges/alric_home.json", map[string]any{
			"stable_id": "edge:alric_resides_in_greenhollow",
			"type":      "resides_in",
			"src_ref":   "npc:alric",
			"dst_ref":   "location:greenhollow",
		})
}
