package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/loreledger/internal/ir"
)

// querier is satisfied by *sql.DB and *sql.Tx so read helpers serve both
// Store and Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

const envelopeColumns = `event_id, campaign_id, replay_ordinal, event_type, event_schema_version,
	world_time, wall_time_utc, prev_event_hash, payload_hash, idempotency_key,
	actor_id, plan_id, execution_request_id, approved_by, payload`

// scanEnvelope reads one events row selected with envelopeColumns.
func scanEnvelope(row rowScanner) (ir.Envelope, error) {
	var (
		env                                 ir.Envelope
		wallMillis                          int64
		prevHash, payloadHash, key          []byte
		actorID, planID, execReqID, approve sql.NullString
		payload                             string
	)
	err := row.Scan(
		&env.EventID,
		&env.CampaignID,
		&env.ReplayOrdinal,
		&env.EventType,
		&env.EventSchemaVersion,
		&env.WorldTime,
		&wallMillis,
		&prevHash,
		&payloadHash,
		&key,
		&actorID,
		&planID,
		&execReqID,
		&approve,
		&payload,
	)
	if err != nil {
		return ir.Envelope{}, err
	}

	if env.PrevEventHash, err = ir.HashFromBytes(prevHash); err != nil {
		return ir.Envelope{}, fmt.Errorf("scan event %s: prev_event_hash: %w", env.EventID, err)
	}
	if env.PayloadHash, err = ir.HashFromBytes(payloadHash); err != nil {
		return ir.Envelope{}, fmt.Errorf("scan event %s: payload_hash: %w", env.EventID, err)
	}
	if env.IdempotencyKey, err = ir.IdempotencyKeyFromBytes(key); err != nil {
		return ir.Envelope{}, fmt.Errorf("scan event %s: idempotency_key: %w", env.EventID, err)
	}
	if env.Payload, err = unmarshalPayload(payload); err != nil {
		return ir.Envelope{}, fmt.Errorf("scan event %s: %w", env.EventID, err)
	}

	env.WallTimeUTC = time.UnixMilli(wallMillis).UTC()
	env.ActorID = actorID.String
	env.PlanID = planID.String
	env.ExecutionRequestID = execReqID.String
	env.ApprovedBy = approve.String
	return env, nil
}

// marshalPayload converts a payload to canonical JSON TEXT for storage.
func marshalPayload(payload ir.IRObject) (string, error) {
	if payload == nil {
		payload = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}

// unmarshalPayload parses canonical JSON TEXT to IRObject.
// Large integers are decoded via json.Number to avoid float64 precision loss.
func unmarshalPayload(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	obj, err := ir.ParseJSONObject([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return obj, nil
}

// nullString stores "" as NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

const importLogColumns = `campaign_id, sequence_no, phase, object_type, stable_id,
	file_hash, action, manifest_hash, timestamp`

func scanImportLogEntry(row rowScanner) (ir.ImportLogEntry, error) {
	var (
		e      ir.ImportLogEntry
		phase  string
		millis int64
	)
	err := row.Scan(
		&e.CampaignID,
		&e.SequenceNo,
		&phase,
		&e.ObjectType,
		&e.StableID,
		&e.FileHash,
		&e.Action,
		&e.ManifestHash,
		&millis,
	)
	if err != nil {
		return ir.ImportLogEntry{}, err
	}
	e.Phase = ir.Phase(phase)
	e.Timestamp = time.UnixMilli(millis).UTC()
	return e, nil
}
