// Package artifact parses and validates content-package artifacts.
//
// A package is any fs.FS laid out as:
//
//	package.manifest.json
//	entities/**/*.json     one entity object per file, or an array of them
//	edges/**/*.json        one edge or an array
//	ontology/**/*.json     {"tags":[...],"affordances":[...]} (ontologies/ also accepted)
//	lore/**/*.md           YAML front matter between --- fences, Markdown body
//
// Every artifact goes through the same steps: decode into the ir value tree
// (integers only), canonicalize, validate against a closed CUE definition,
// then decode into a typed struct. Unknown fields are rejected. Failures are
// reported as *SchemaError qualified by the package-relative path.
package artifact
