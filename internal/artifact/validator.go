package artifact

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/roach88/loreledger/internal/ir"
)

//go:embed schema.cue
var schemaCUE string

// Definition names in schema.cue.
const (
	defManifest        = "#Manifest"
	defEntity          = "#Entity"
	defEdge            = "#Edge"
	defOntology        = "#Ontology"
	defLoreFrontMatter = "#LoreFrontMatter"
)

// Validator checks artifacts against the embedded CUE schema.
// A cue.Context is not safe for concurrent use, so calls are serialized.
type Validator struct {
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
}

// NewValidator compiles the artifact schema.
func NewValidator() (*Validator, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile artifact schema: %w", err)
	}
	return &Validator{ctx: ctx, schema: schema}, nil
}

// validate checks obj against the named definition, decodes it into target
// and returns the normalized object. field prefixes reported field paths.
//
// obj is canonicalized first, which drops null members and normalizes
// strings, so the value CUE sees is exactly the value that gets hashed.
func (v *Validator) validate(def, path, field string, obj ir.IRObject, target any) (ir.IRObject, error) {
	canonical, err := ir.MarshalCanonical(obj)
	if err != nil {
		return nil, &SchemaError{Path: path, Field: field, Message: err.Error(), Err: err}
	}

	if err := v.check(def, path, field, canonical); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(canonical, target); err != nil {
		return nil, &SchemaError{Path: path, Field: field, Message: fmt.Sprintf("decode: %v", err), Err: err}
	}
	normalized, err := ir.ParseJSONObject(canonical)
	if err != nil {
		return nil, &SchemaError{Path: path, Field: field, Message: err.Error(), Err: err}
	}
	return normalized, nil
}

func (v *Validator) check(def, path, field string, canonical []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	expr, err := cuejson.Extract(path, canonical)
	if err != nil {
		return &SchemaError{Path: path, Field: field, Message: err.Error(), Err: err}
	}

	value := v.ctx.BuildExpr(expr)
	if err := value.Err(); err != nil {
		return formatCUEError(err, path, field)
	}

	unified := v.schema.LookupPath(cue.ParsePath(def)).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err, path, field)
	}
	return nil
}
