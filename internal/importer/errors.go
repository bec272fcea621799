package importer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/loreledger/internal/ir"
)

// Sentinel errors. Typed errors below match them via errors.Is.
var (
	ErrImportDisabled      = errors.New("import disabled")
	ErrContentHash         = errors.New("content hash mismatch")
	ErrCollision           = errors.New("stable id collision")
	ErrUnresolvedReference = errors.New("unresolved reference")
	ErrDependency          = errors.New("missing package dependency")
	ErrContract            = errors.New("engine contract not satisfied")
)

// ContentHashReason says why a file failed content index verification.
type ContentHashReason string

const (
	// ReasonMismatch means the file's sha256 differs from its index entry.
	ReasonMismatch ContentHashReason = "mismatch"

	// ReasonMissing means an indexed file does not exist.
	ReasonMissing ContentHashReason = "missing"

	// ReasonUnindexed means an artifact file is not listed in the index.
	ReasonUnindexed ContentHashReason = "unindexed"

	// ReasonInvalidPath means an index key is not a valid package path.
	ReasonInvalidPath ContentHashReason = "invalid_path"
)

// ContentHashError reports a manifest content_index violation.
type ContentHashError struct {
	Path     string
	Reason   ContentHashReason
	Expected string // index entry; empty when unindexed
	Actual   string // sha256 of the file; empty when missing
}

// Error implements the error interface.
func (e *ContentHashError) Error() string {
	switch e.Reason {
	case ReasonMismatch:
		return fmt.Sprintf("content index: %s: hash mismatch: expected %s, actual %s", e.Path, e.Expected, e.Actual)
	case ReasonMissing:
		return fmt.Sprintf("content index: %s: indexed file does not exist", e.Path)
	case ReasonUnindexed:
		return fmt.Sprintf("content index: %s: file is not listed in content_index", e.Path)
	default:
		return fmt.Sprintf("content index: %s: %s", e.Path, e.Reason)
	}
}

// Unwrap returns ErrContentHash.
func (e *ContentHashError) Unwrap() error {
	return ErrContentHash
}

// CollisionError reports a stable id that was already imported, or appears
// twice in one run, with different content.
type CollisionError struct {
	Phase        ir.Phase
	ObjectType   string
	StableID     string
	ExistingHash string
	NewHash      string
	ExistingPath string // empty when the existing object came from an earlier run
	NewPath      string
}

// Error implements the error interface.
func (e *CollisionError) Error() string {
	existing := "previous import"
	if e.ExistingPath != "" {
		existing = e.ExistingPath
	}
	return fmt.Sprintf("%s phase: %s %s collides: %s has %s, %s has %s",
		e.Phase, e.ObjectType, e.StableID, existing, e.ExistingHash, e.NewPath, e.NewHash)
}

// Unwrap returns ErrCollision.
func (e *CollisionError) Unwrap() error {
	return ErrCollision
}

// MissingRef is one edge endpoint that names no entity from the run.
type MissingRef struct {
	EdgeID string
	Field  string // "src_ref" or "dst_ref"
	Ref    string
	Path   string
}

func (m MissingRef) String() string {
	return fmt.Sprintf("%s (%s.%s in %s)", m.Ref, m.EdgeID, m.Field, m.Path)
}

// ReferenceError lists every unresolved edge reference found in a run.
type ReferenceError struct {
	Missing []MissingRef
}

// Error implements the error interface.
func (e *ReferenceError) Error() string {
	refs := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		refs[i] = m.String()
	}
	return fmt.Sprintf("edge phase: %d unresolved references: %s", len(e.Missing), strings.Join(refs, ", "))
}

// Unwrap returns ErrUnresolvedReference.
func (e *ReferenceError) Unwrap() error {
	return ErrUnresolvedReference
}

// DependencyError lists declared dependencies that have not completed an
// import in the campaign.
type DependencyError struct {
	PackageID string
	Missing   []string
}

// Error implements the error interface.
func (e *DependencyError) Error() string {
	return fmt.Sprintf("package %s: dependencies not imported: %s", e.PackageID, strings.Join(e.Missing, ", "))
}

// Unwrap returns ErrDependency.
func (e *DependencyError) Unwrap() error {
	return ErrDependency
}

// ContractError reports a manifest engine_contract_range that is invalid or
// excludes the running engine.
type ContractError struct {
	Range         string
	EngineVersion string
	Err           error
}

// Error implements the error interface.
func (e *ContractError) Error() string {
	return fmt.Sprintf("engine %s does not satisfy contract %q: %v", e.EngineVersion, e.Range, e.Err)
}

// Unwrap returns ErrContract and the underlying error.
func (e *ContractError) Unwrap() []error {
	return []error{ErrContract, e.Err}
}
