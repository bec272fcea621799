package artifact

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/roach88/loreledger/internal/ir"
)

// ParseManifest parses package.manifest.json.
func (v *Validator) ParseManifest(path string, data []byte) (Manifest, error) {
	obj, err := parseObject(path, data)
	if err != nil {
		return Manifest{}, err
	}

	var m Manifest
	normalized, err := v.validate(defManifest, path, "", obj, &m)
	if err != nil {
		return Manifest{}, err
	}
	if m.Source, err = newSource(path, "", normalized); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// ParseEntities parses an entity file holding one object or an array.
func (v *Validator) ParseEntities(path string, data []byte) ([]Entity, error) {
	objs, err := parseObjects(path, data)
	if err != nil {
		return nil, err
	}

	entities := make([]Entity, 0, len(objs))
	for _, o := range objs {
		var e Entity
		normalized, err := v.validate(defEntity, path, o.field, o.obj, &e)
		if err != nil {
			return nil, err
		}
		if !e.Kind.Valid() {
			return nil, schemaErrorf(path, joinField(o.field, "kind"), "unknown entity kind %q", e.Kind)
		}
		if e.Source, err = newSource(path, o.field, normalized); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// ParseEdges parses an edge file holding one object or an array.
func (v *Validator) ParseEdges(path string, data []byte) ([]Edge, error) {
	objs, err := parseObjects(path, data)
	if err != nil {
		return nil, err
	}

	edges := make([]Edge, 0, len(objs))
	for _, o := range objs {
		var e Edge
		normalized, err := v.validate(defEdge, path, o.field, o.obj, &e)
		if err != nil {
			return nil, err
		}
		if !e.Type.Valid() {
			return nil, schemaErrorf(path, joinField(o.field, "type"), "unknown edge type %q", e.Type)
		}
		if e.Source, err = newSource(path, o.field, normalized); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, nil
}

// ParseOntology parses an ontology file into its tags followed by its
// affordances.
func (v *Validator) ParseOntology(path string, data []byte) ([]OntologyItem, error) {
	obj, err := parseObject(path, data)
	if err != nil {
		return nil, err
	}

	var doc struct{}
	normalized, err := v.validate(defOntology, path, "", obj, &doc)
	if err != nil {
		return nil, err
	}

	var items []OntologyItem
	for _, kind := range []OntologyKind{OntologyTag, OntologyAffordance} {
		key := ontologyKey(kind)
		list, _ := normalized[key].(ir.IRArray)
		for i, elem := range list {
			field := fmt.Sprintf("%s[%d]", key, i)
			itemObj, ok := elem.(ir.IRObject)
			if !ok {
				return nil, schemaErrorf(path, field, "expected object")
			}
			item := OntologyItem{
				Kind:        kind,
				ID:          itemObj.GetString("id"),
				Category:    itemObj.GetString("category"),
				Label:       itemObj.GetString("label"),
				Description: itemObj.GetString("description"),
			}
			if item.Source, err = newSource(path, field, itemObj); err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	}
	return items, nil
}

func ontologyKey(kind OntologyKind) string {
	switch kind {
	case OntologyTag:
		return "tags"
	case OntologyAffordance:
		return "affordances"
	default:
		panic(fmt.Sprintf("unknown ontology kind %q", kind))
	}
}

// ParseLore parses a Markdown lore chunk. The YAML front matter is
// validated on its own; the body becomes the content field of the hashed
// object.
func (v *Validator) ParseLore(path string, data []byte) (LoreChunk, error) {
	front, body, err := splitFrontMatter(data)
	if err != nil {
		return LoreChunk{}, schemaErrorf(path, "", "%v", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(front, &raw); err != nil {
		return LoreChunk{}, &SchemaError{Path: path, Message: fmt.Sprintf("front matter: %v", err), Err: err}
	}
	value, err := ir.FromAny(raw)
	if err != nil {
		return LoreChunk{}, &SchemaError{Path: path, Message: fmt.Sprintf("front matter: %v", err), Err: err}
	}
	obj, ok := value.(ir.IRObject)
	if !ok {
		// An empty front matter block decodes to nil.
		obj = ir.IRObject{}
	}

	var chunk LoreChunk
	normalized, err := v.validate(defLoreFrontMatter, path, "", obj, &chunk)
	if err != nil {
		return LoreChunk{}, err
	}

	chunk.Content = string(body)
	normalized["content"] = ir.IRString(body)
	if chunk.Source, err = newSource(path, "", normalized); err != nil {
		return LoreChunk{}, err
	}
	return chunk, nil
}

var fence = []byte("---")

// splitFrontMatter separates a "---" fenced YAML header from the body.
// The newline after the closing fence is not part of the body.
func splitFrontMatter(data []byte) (front, body []byte, err error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	first, rest, ok := cutLine(data)
	if !ok || !bytes.Equal(bytes.TrimRight(first, " \t\r"), fence) {
		return nil, nil, fmt.Errorf("missing front matter: file must start with ---")
	}

	start := len(data) - len(rest)
	for len(rest) > 0 {
		line, next, _ := cutLine(rest)
		if bytes.Equal(bytes.TrimRight(line, " \t\r"), fence) {
			end := len(data) - len(rest)
			return data[start:end], next, nil
		}
		rest = next
	}
	return nil, nil, fmt.Errorf("unterminated front matter: missing closing ---")
}

// cutLine splits off the first line, excluding its newline.
func cutLine(data []byte) (line, rest []byte, found bool) {
	return bytes.Cut(data, []byte("\n"))
}

type fieldObject struct {
	field string
	obj   ir.IRObject
}

// parseObjects accepts a top-level object or an array of objects.
func parseObjects(path string, data []byte) ([]fieldObject, error) {
	value, err := ir.ParseJSON(data)
	if err != nil {
		return nil, &SchemaError{Path: path, Message: err.Error(), Err: err}
	}

	switch val := value.(type) {
	case ir.IRObject:
		return []fieldObject{{obj: val}}, nil
	case ir.IRArray:
		if len(val) == 0 {
			return nil, schemaErrorf(path, "", "empty array")
		}
		objs := make([]fieldObject, len(val))
		for i, elem := range val {
			field := fmt.Sprintf("[%d]", i)
			obj, ok := elem.(ir.IRObject)
			if !ok {
				return nil, schemaErrorf(path, field, "expected object")
			}
			objs[i] = fieldObject{field: field, obj: obj}
		}
		return objs, nil
	default:
		return nil, schemaErrorf(path, "", "expected object or array of objects")
	}
}

func parseObject(path string, data []byte) (ir.IRObject, error) {
	obj, err := ir.ParseJSONObject(data)
	if err != nil {
		return nil, &SchemaError{Path: path, Message: err.Error(), Err: err}
	}
	return obj, nil
}

func newSource(path, field string, obj ir.IRObject) (Source, error) {
	hash, err := ir.ContentHash(obj)
	if err != nil {
		return Source{}, &SchemaError{Path: path, Field: field, Message: err.Error(), Err: err}
	}
	return Source{Path: path, Object: obj, Hash: hash}, nil
}
