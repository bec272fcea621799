package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/loreledger/internal/ir"
)

// ReadEvents returns every event of a campaign ordered by replay_ordinal.
// Returns an empty slice (not nil) for an unknown campaign.
func (s *Store) ReadEvents(ctx context.Context, campaignID string) ([]ir.Envelope, error) {
	return readEvents(ctx, s.reader, campaignID)
}

// ReadEventByKey returns the event stored under an idempotency key.
func (s *Store) ReadEventByKey(ctx context.Context, campaignID string, key ir.IdempotencyKey) (ir.Envelope, bool, error) {
	return readEventByKey(ctx, s.reader, campaignID, key)
}

// Head returns the highest-ordinal event of a campaign.
func (s *Store) Head(ctx context.Context, campaignID string) (ir.Envelope, bool, error) {
	return readHead(ctx, s.reader, campaignID)
}

// ListCampaigns returns every campaign with at least one event or ImportLog
// row, sorted.
func (s *Store) ListCampaigns(ctx context.Context) ([]string, error) {
	rows, err := s.reader.QueryContext(ctx, `
		SELECT campaign_id FROM events
		UNION
		SELECT campaign_id FROM import_log
		ORDER BY campaign_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list campaigns: %w", err)
		}
		campaigns = append(campaigns, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	return campaigns, nil
}

// ReadEvents returns the campaign's events as seen inside the transaction.
func (t *Tx) ReadEvents(ctx context.Context) ([]ir.Envelope, error) {
	return readEvents(ctx, t.tx, t.campaignID)
}

// ReadEventByKey looks up an event by idempotency key inside the transaction.
func (t *Tx) ReadEventByKey(ctx context.Context, key ir.IdempotencyKey) (ir.Envelope, bool, error) {
	return readEventByKey(ctx, t.tx, t.campaignID, key)
}

// Head returns the campaign head as seen inside the transaction.
func (t *Tx) Head(ctx context.Context) (ir.Envelope, bool, error) {
	return readHead(ctx, t.tx, t.campaignID)
}

func readEvents(ctx context.Context, q querier, campaignID string) ([]ir.Envelope, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+envelopeColumns+`
		FROM events
		WHERE campaign_id = ?
		ORDER BY replay_ordinal ASC
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.Envelope{}
	for rows.Next() {
		env, err := scanEnvelope(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func readEventByKey(ctx context.Context, q querier, campaignID string, key ir.IdempotencyKey) (ir.Envelope, bool, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+envelopeColumns+`
		FROM events
		WHERE campaign_id = ? AND idempotency_key = ?
	`, campaignID, key[:])
	return scanOptionalEnvelope(row, "read event by key")
}

func readHead(ctx context.Context, q querier, campaignID string) (ir.Envelope, bool, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+envelopeColumns+`
		FROM events
		WHERE campaign_id = ?
		ORDER BY replay_ordinal DESC
		LIMIT 1
	`, campaignID)
	return scanOptionalEnvelope(row, "read head")
}

func scanOptionalEnvelope(row *sql.Row, op string) (ir.Envelope, bool, error) {
	env, err := scanEnvelope(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Envelope{}, false, nil
	}
	if err != nil {
		return ir.Envelope{}, false, fmt.Errorf("%s: %w", op, err)
	}
	return env, true, nil
}
