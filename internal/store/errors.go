package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/loreledger/internal/ir"
)

// Sentinel errors. Typed errors below match them via errors.Is.
var (
	ErrIdempotencyConflict = errors.New("idempotency conflict")
	ErrIntegrity           = errors.New("ledger integrity violation")
	ErrHashChainMismatch   = errors.New("hash chain mismatch")

	ErrOrdinalGap       = errors.New("replay ordinal gap")
	ErrDuplicateOrdinal = errors.New("duplicate replay ordinal")
	ErrNullOrdinal      = errors.New("null replay ordinal")
	ErrSequenceGap      = errors.New("import log sequence gap")
)

// IntegrityErrorCode categorizes storage-level invariant violations.
type IntegrityErrorCode string

const (
	// CodeOrdinalGap indicates an insert skipped an ordinal.
	CodeOrdinalGap IntegrityErrorCode = "ORDINAL_GAP"

	// CodeDuplicateOrdinal indicates an insert reused an existing ordinal.
	CodeDuplicateOrdinal IntegrityErrorCode = "DUPLICATE_ORDINAL"

	// CodeNullOrdinal indicates an insert carried no ordinal.
	CodeNullOrdinal IntegrityErrorCode = "NULL_ORDINAL"

	// CodeSequenceGap indicates ImportLog sequence numbers are not contiguous.
	CodeSequenceGap IntegrityErrorCode = "SEQUENCE_GAP"
)

// IntegrityError reports a violated ledger invariant. These are fatal: the
// caller must abort the transaction and never retry.
type IntegrityError struct {
	Code       IntegrityErrorCode
	CampaignID string
	Ordinal    int64 // replay_ordinal or sequence_no; -1 when unknown
	Err        error // underlying driver error, if any
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	msg := fmt.Sprintf("%s: campaign=%s", e.Code, e.CampaignID)
	if e.Ordinal >= 0 {
		msg += fmt.Sprintf(" ordinal=%d", e.Ordinal)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying driver error.
func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// Is matches ErrIntegrity and the sentinel for the error's code.
func (e *IntegrityError) Is(target error) bool {
	if target == ErrIntegrity {
		return true
	}
	switch e.Code {
	case CodeOrdinalGap:
		return target == ErrOrdinalGap
	case CodeDuplicateOrdinal:
		return target == ErrDuplicateOrdinal
	case CodeNullOrdinal:
		return target == ErrNullOrdinal
	case CodeSequenceGap:
		return target == ErrSequenceGap
	}
	return false
}

// IdempotencyConflictError reports a reused idempotency key whose payload
// differs from the stored event. This is a caller error: the same logical
// write was submitted with different content.
type IdempotencyConflictError struct {
	CampaignID      string
	Key             ir.IdempotencyKey
	ExistingOrdinal int64
	ExistingHash    ir.Hash
	AttemptedHash   ir.Hash
}

// Error implements the error interface.
func (e *IdempotencyConflictError) Error() string {
	return fmt.Sprintf("idempotency conflict: campaign=%s key=%s stored at ordinal %d with payload %s, attempted %s",
		e.CampaignID, e.Key, e.ExistingOrdinal, e.ExistingHash, e.AttemptedHash)
}

// Unwrap returns ErrIdempotencyConflict.
func (e *IdempotencyConflictError) Unwrap() error {
	return ErrIdempotencyConflict
}

// HashChainMismatchError reports the first broken link found by VerifyChain.
type HashChainMismatchError struct {
	CampaignID string
	Ordinal    int64
	Field      string // "prev_event_hash" or "payload_hash"
	Expected   ir.Hash
	Actual     ir.Hash
}

// Error implements the error interface.
func (e *HashChainMismatchError) Error() string {
	return fmt.Sprintf("hash chain mismatch: campaign=%s ordinal=%d field=%s expected=%s actual=%s",
		e.CampaignID, e.Ordinal, e.Field, e.Expected, e.Actual)
}

// Unwrap returns ErrHashChainMismatch.
func (e *HashChainMismatchError) Unwrap() error {
	return ErrHashChainMismatch
}

// IsFatal reports whether err is a ledger integrity failure. Fatal errors
// must never be retried.
func IsFatal(err error) bool {
	return errors.Is(err, ErrIntegrity) || errors.Is(err, ErrHashChainMismatch)
}

// IsCallerError reports whether err was caused by the caller's input rather
// than the ledger's state.
func IsCallerError(err error) bool {
	return errors.Is(err, ErrIdempotencyConflict)
}

// constraintKind classifies SQLite constraint failures on the events and
// import_log tables.
type constraintKind int

const (
	constraintNone constraintKind = iota
	constraintOrdinalGap
	constraintDuplicateOrdinal
	constraintNullOrdinal
	constraintDuplicateKey
	constraintSequenceGap
	constraintDuplicateSequence
)

// classifyConstraint maps a driver error to a constraint kind. Trigger
// failures carry the RAISE message; UNIQUE failures name the columns.
func classifyConstraint(err error) constraintKind {
	var sqlErr sqlite3.Error
	if !errors.As(err, &sqlErr) || sqlErr.Code != sqlite3.ErrConstraint {
		return constraintNone
	}
	msg := sqlErr.Error()
	switch sqlErr.ExtendedCode {
	case sqlite3.ErrConstraintTrigger:
		switch {
		case strings.Contains(msg, string(CodeOrdinalGap)):
			return constraintOrdinalGap
		case strings.Contains(msg, string(CodeSequenceGap)):
			return constraintSequenceGap
		}
	case sqlite3.ErrConstraintNotNull:
		if strings.Contains(msg, "replay_ordinal") {
			return constraintNullOrdinal
		}
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		switch {
		case strings.Contains(msg, "idempotency_key"):
			return constraintDuplicateKey
		case strings.Contains(msg, "replay_ordinal"):
			return constraintDuplicateOrdinal
		case strings.Contains(msg, "sequence_no"):
			return constraintDuplicateSequence
		}
	}
	return constraintNone
}

// integrityErrorFor converts ordinal and sequence constraint failures to
// *IntegrityError. Other errors are returned unchanged.
func integrityErrorFor(err error, campaignID string, ordinal int64) error {
	var code IntegrityErrorCode
	switch classifyConstraint(err) {
	case constraintOrdinalGap:
		code = CodeOrdinalGap
	case constraintDuplicateOrdinal:
		code = CodeDuplicateOrdinal
	case constraintNullOrdinal:
		code = CodeNullOrdinal
		ordinal = -1
	case constraintSequenceGap, constraintDuplicateSequence:
		code = CodeSequenceGap
	default:
		return err
	}
	return &IntegrityError{Code: code, CampaignID: campaignID, Ordinal: ordinal, Err: err}
}
