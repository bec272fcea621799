package store

import (
	"context"
	"fmt"

	"github.com/roach88/loreledger/internal/ir"
)

// AppendRequest describes one event to append. The idempotency key is
// derived from PlanID, CampaignID, EventType, ToolName, RulesetVersion and
// Args. ExecutionRequestID is recorded but never feeds the key, so a retried
// request with a fresh execution id still resolves to the stored event.
type AppendRequest struct {
	CampaignID string
	EventType  string
	WorldTime  int64
	Payload    ir.IRObject

	ActorID            string
	PlanID             string
	ExecutionRequestID string
	ApprovedBy         string

	ToolName       string
	RulesetVersion string
	Args           ir.IRObject
}

// IdempotencyKey derives the v2 key for the request.
func (r AppendRequest) IdempotencyKey() (ir.IdempotencyKey, error) {
	return ir.IdempotencyKeyV2(r.PlanID, r.CampaignID, r.EventType, r.ToolName, r.RulesetVersion, r.Args)
}

// AppendResult is the stored envelope and whether it already existed.
type AppendResult struct {
	Envelope ir.Envelope
	Reused   bool
}

// Append appends one event in its own campaign-locked transaction.
func (s *Store) Append(ctx context.Context, req AppendRequest) (AppendResult, error) {
	tx, err := s.BeginCampaign(ctx, req.CampaignID)
	if err != nil {
		return AppendResult{}, err
	}
	defer tx.Rollback()

	res, err := tx.Append(ctx, req)
	if err != nil {
		return AppendResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return AppendResult{}, err
	}
	return res, nil
}

// Append appends one event inside the transaction.
//
// Same key and same payload hash returns the stored envelope with
// Reused=true and writes nothing. Same key with a different payload hash
// fails with *IdempotencyConflictError. Otherwise the event takes the next
// ordinal and chains to its predecessor.
func (t *Tx) Append(ctx context.Context, req AppendRequest) (AppendResult, error) {
	res, err := t.append(ctx, req)
	switch {
	case err == nil && res.Reused:
		t.s.recorder.RecordAppend(AppendResultReused)
	case err == nil:
		t.s.recorder.RecordAppend(AppendResultCreated)
	case IsCallerError(err):
		t.s.recorder.RecordAppend(AppendResultConflict)
	default:
		t.s.recorder.RecordAppend(AppendResultError)
	}
	return res, err
}

func (t *Tx) append(ctx context.Context, req AppendRequest) (AppendResult, error) {
	if err := t.checkCampaign(req.CampaignID); err != nil {
		return AppendResult{}, fmt.Errorf("append: %w", err)
	}
	if req.EventType == "" {
		return AppendResult{}, fmt.Errorf("append: empty event type")
	}

	payload, err := marshalPayload(req.Payload)
	if err != nil {
		return AppendResult{}, fmt.Errorf("append %s: %w", req.EventType, err)
	}
	payloadHash, err := ir.PayloadHash(req.Payload)
	if err != nil {
		return AppendResult{}, fmt.Errorf("append %s: %w", req.EventType, err)
	}
	key, err := req.IdempotencyKey()
	if err != nil {
		return AppendResult{}, fmt.Errorf("append %s: %w", req.EventType, err)
	}

	if res, found, err := t.resolveExisting(ctx, key, payloadHash); found || err != nil {
		return res, err
	}

	head, hasHead, err := readHead(ctx, t.tx, t.campaignID)
	if err != nil {
		return AppendResult{}, fmt.Errorf("append %s: %w", req.EventType, err)
	}
	ordinal, prev := int64(0), ir.GenesisHash
	if hasHead {
		ordinal, prev = head.ReplayOrdinal+1, head.ChainHash()
	}

	stored, err := unmarshalPayload(payload)
	if err != nil {
		return AppendResult{}, fmt.Errorf("append %s: %w", req.EventType, err)
	}

	env := ir.Envelope{
		EventID:            t.s.ids.Generate(),
		CampaignID:         t.campaignID,
		ReplayOrdinal:      ordinal,
		EventType:          req.EventType,
		EventSchemaVersion: ir.EventSchemaVersion,
		WorldTime:          req.WorldTime,
		WallTimeUTC:        t.s.wallTime(),
		PrevEventHash:      prev,
		PayloadHash:        payloadHash,
		IdempotencyKey:     key,
		ActorID:            req.ActorID,
		PlanID:             req.PlanID,
		ExecutionRequestID: req.ExecutionRequestID,
		ApprovedBy:         req.ApprovedBy,
		Payload:            stored,
	}

	if err := t.insert(ctx, env, payload); err != nil {
		// A writer that slipped past the lock stored the same key first.
		if classifyConstraint(err) == constraintDuplicateKey {
			if res, found, rerr := t.resolveExisting(ctx, key, payloadHash); found || rerr != nil {
				return res, rerr
			}
		}
		return AppendResult{}, fmt.Errorf("append %s: %w", req.EventType, integrityErrorFor(err, t.campaignID, ordinal))
	}

	t.s.logger.Debug("event appended",
		"campaign", t.campaignID,
		"ordinal", ordinal,
		"event_type", req.EventType,
	)
	return AppendResult{Envelope: env}, nil
}

// resolveExisting applies the reuse/conflict rule for a key already present
// in the campaign.
func (t *Tx) resolveExisting(ctx context.Context, key ir.IdempotencyKey, payloadHash ir.Hash) (AppendResult, bool, error) {
	existing, found, err := readEventByKey(ctx, t.tx, t.campaignID, key)
	if err != nil || !found {
		return AppendResult{}, false, err
	}
	if existing.PayloadHash != payloadHash {
		return AppendResult{}, true, &IdempotencyConflictError{
			CampaignID:      t.campaignID,
			Key:             key,
			ExistingOrdinal: existing.ReplayOrdinal,
			ExistingHash:    existing.PayloadHash,
			AttemptedHash:   payloadHash,
		}
	}
	return AppendResult{Envelope: existing, Reused: true}, true, nil
}

// Insert writes a fully formed envelope without deriving any field. The
// database rejects ordinal gaps and duplicates; those surface as
// *IntegrityError. Used to replicate ledgers and to exercise storage
// invariants directly.
func (t *Tx) Insert(ctx context.Context, env ir.Envelope) error {
	if err := t.checkCampaign(env.CampaignID); err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	payload, err := marshalPayload(env.Payload)
	if err != nil {
		return fmt.Errorf("insert ordinal %d: %w", env.ReplayOrdinal, err)
	}
	if err := t.insert(ctx, env, payload); err != nil {
		return fmt.Errorf("insert ordinal %d: %w", env.ReplayOrdinal, integrityErrorFor(err, env.CampaignID, env.ReplayOrdinal))
	}
	return nil
}

func (t *Tx) insert(ctx context.Context, env ir.Envelope, payload string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO events (`+envelopeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		env.EventID,
		env.CampaignID,
		env.ReplayOrdinal,
		env.EventType,
		env.EventSchemaVersion,
		env.WorldTime,
		env.WallTimeUTC.UnixMilli(),
		env.PrevEventHash[:],
		env.PayloadHash[:],
		env.IdempotencyKey[:],
		nullString(env.ActorID),
		nullString(env.PlanID),
		nullString(env.ExecutionRequestID),
		nullString(env.ApprovedBy),
		payload,
	)
	return err
}
