package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
)

// ManifestPath is the manifest location relative to the package root.
const ManifestPath = "package.manifest.json"

// Layout lists the artifact files of a package by phase. Paths are
// slash-separated, relative to the package root and sorted.
type Layout struct {
	Entities []string
	Edges    []string
	Ontology []string
	Lore     []string
}

// All returns every artifact path except the manifest, sorted.
func (l Layout) All() []string {
	all := slices.Concat(l.Entities, l.Edges, l.Ontology, l.Lore)
	slices.Sort(all)
	return all
}

// Discover walks the package directories. Missing directories are treated
// as empty. Hidden files and files with other extensions are ignored.
func Discover(fsys fs.FS) (Layout, error) {
	var l Layout
	var err error
	if l.Entities, err = walk(fsys, "entities", ".json"); err != nil {
		return Layout{}, err
	}
	if l.Edges, err = walk(fsys, "edges", ".json"); err != nil {
		return Layout{}, err
	}
	ontology, err := walk(fsys, "ontology", ".json")
	if err != nil {
		return Layout{}, err
	}
	ontologies, err := walk(fsys, "ontologies", ".json")
	if err != nil {
		return Layout{}, err
	}
	l.Ontology = slices.Concat(ontology, ontologies)
	slices.Sort(l.Ontology)
	if l.Lore, err = walk(fsys, "lore", ".md"); err != nil {
		return Layout{}, err
	}
	return l, nil
}

func walk(fsys fs.FS, root, ext string) ([]string, error) {
	var paths []string
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && p != root {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && path.Ext(p) == ext {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", root, err)
	}
	slices.Sort(paths)
	return paths, nil
}
