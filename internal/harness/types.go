package harness

import (
	"errors"

	"github.com/roach88/loreledger/internal/artifact"
	"github.com/roach88/loreledger/internal/importer"
	"github.com/roach88/loreledger/internal/ir"
	"github.com/roach88/loreledger/internal/store"
)

// StepResult is the outcome of one import step.
type StepResult struct {
	Package       string `json:"package"`
	Campaign      string `json:"campaign"`
	Outcome       string `json:"outcome"`
	Error         string `json:"error,omitempty"` // ErrorKind of a failed import
	ErrorMessage  string `json:"error_message,omitempty"`
	EventsCreated int    `json:"events_created"`
	ImportLogRows int    `json:"import_log_rows"`
	StateDigest   string `json:"state_digest,omitempty"`
}

// EventRecord is a ledger event as seen by assertions and golden snapshots.
type EventRecord struct {
	Campaign  string
	Ordinal   int64
	EventType string
	Subject   string
	WorldTime int64
	Payload   ir.IRObject
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step matched its expect clause and every assertion held.
	Pass bool `json:"pass"`

	// Steps holds one entry per import step, in order.
	Steps []StepResult `json:"steps"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Events and ImportLog hold the final ledger of every campaign the
	// scenario touched, campaigns in sorted order.
	Events    []EventRecord       `json:"-"`
	ImportLog []ir.ImportLogEntry `json:"-"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// EventsFor returns the events of one campaign in replay order.
func (r *Result) EventsFor(campaign string) []EventRecord {
	var out []EventRecord
	for _, e := range r.Events {
		if e.Campaign == campaign {
			out = append(out, e)
		}
	}
	return out
}

// ImportLogFor returns the ImportLog rows of one campaign in sequence order.
func (r *Result) ImportLogFor(campaign string) []ir.ImportLogEntry {
	var out []ir.ImportLogEntry
	for _, row := range r.ImportLog {
		if row.CampaignID == campaign {
			out = append(out, row)
		}
	}
	return out
}

// Failure kinds used by ExpectClause.Error.
const (
	ErrorKindDisabled            = "disabled"
	ErrorKindSchema              = "schema"
	ErrorKindContentHash         = "content_hash"
	ErrorKindCollision           = "collision"
	ErrorKindUnresolvedReference = "unresolved_reference"
	ErrorKindDependency          = "dependency"
	ErrorKindContract            = "contract"
	ErrorKindIdempotencyConflict = "idempotency_conflict"
	ErrorKindIntegrity           = "integrity"
	ErrorKindOther               = "other"
)

// ErrorKinds lists every failure kind a scenario may expect.
func ErrorKinds() []string {
	return []string{
		ErrorKindDisabled,
		ErrorKindSchema,
		ErrorKindContentHash,
		ErrorKindCollision,
		ErrorKindUnresolvedReference,
		ErrorKindDependency,
		ErrorKindContract,
		ErrorKindIdempotencyConflict,
		ErrorKindIntegrity,
		ErrorKindOther,
	}
}

// ErrorKind classifies an import error.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, importer.ErrImportDisabled):
		return ErrorKindDisabled
	case errors.Is(err, artifact.ErrSchema):
		return ErrorKindSchema
	case errors.Is(err, importer.ErrContentHash):
		return ErrorKindContentHash
	case errors.Is(err, importer.ErrCollision):
		return ErrorKindCollision
	case errors.Is(err, importer.ErrUnresolvedReference):
		return ErrorKindUnresolvedReference
	case errors.Is(err, importer.ErrDependency):
		return ErrorKindDependency
	case errors.Is(err, importer.ErrContract):
		return ErrorKindContract
	case errors.Is(err, store.ErrIdempotencyConflict):
		return ErrorKindIdempotencyConflict
	case store.IsFatal(err):
		return ErrorKindIntegrity
	}
	return ErrorKindOther
}
