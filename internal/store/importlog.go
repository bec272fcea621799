package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/loreledger/internal/ir"
)

// AppendImportLog writes one ImportLog row at the next sequence number and
// returns it with SequenceNo and Timestamp filled in.
func (t *Tx) AppendImportLog(ctx context.Context, entry ir.ImportLogEntry) (ir.ImportLogEntry, error) {
	if entry.CampaignID == "" {
		entry.CampaignID = t.campaignID
	}
	if err := t.checkCampaign(entry.CampaignID); err != nil {
		return ir.ImportLogEntry{}, fmt.Errorf("append import log: %w", err)
	}

	next, err := t.NextImportSequence(ctx)
	if err != nil {
		return ir.ImportLogEntry{}, err
	}
	entry.SequenceNo = next
	entry.Timestamp = t.s.wallTime()

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO import_log (`+importLogColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.CampaignID,
		entry.SequenceNo,
		string(entry.Phase),
		entry.ObjectType,
		entry.StableID,
		entry.FileHash,
		entry.Action,
		entry.ManifestHash,
		entry.Timestamp.UnixMilli(),
	)
	if err != nil {
		return ir.ImportLogEntry{}, fmt.Errorf("append import log %s/%s: %w",
			entry.ObjectType, entry.StableID, integrityErrorFor(err, entry.CampaignID, entry.SequenceNo))
	}
	return entry, nil
}

// NextImportSequence returns the sequence number the next ImportLog row will
// take.
func (t *Tx) NextImportSequence(ctx context.Context) (int64, error) {
	var next int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sequence_no), -1) + 1
		FROM import_log WHERE campaign_id = ?
	`, t.campaignID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next import sequence: %w", err)
	}
	return next, nil
}

// ReadImportLog returns a campaign's ImportLog ordered by sequence_no.
func (s *Store) ReadImportLog(ctx context.Context, campaignID string) ([]ir.ImportLogEntry, error) {
	return readImportLog(ctx, s.reader, campaignID)
}

// ReadImportLog returns the campaign's ImportLog as seen inside the
// transaction.
func (t *Tx) ReadImportLog(ctx context.Context) ([]ir.ImportLogEntry, error) {
	return readImportLog(ctx, t.tx, t.campaignID)
}

// LatestObjectHash returns the file_hash most recently recorded for an
// object. Objects are identified by (object_type, stable_id) across every
// package imported into the campaign.
func (t *Tx) LatestObjectHash(ctx context.Context, objectType, stableID string) (string, bool, error) {
	var hash string
	err := t.tx.QueryRowContext(ctx, `
		SELECT file_hash FROM import_log
		WHERE campaign_id = ? AND object_type = ? AND stable_id = ? AND action = ?
		ORDER BY sequence_no DESC
		LIMIT 1
	`, t.campaignID, objectType, stableID, ir.ActionCreated).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("latest object hash %s/%s: %w", objectType, stableID, err)
	}
	return hash, true, nil
}

// FinalizedImport reports whether an import with this manifest hash already
// completed in the campaign.
func (t *Tx) FinalizedImport(ctx context.Context, manifestHash string) (bool, error) {
	return t.exists(ctx, `
		SELECT 1 FROM import_log
		WHERE campaign_id = ? AND object_type = ? AND action = ? AND manifest_hash = ?
		LIMIT 1
	`, t.campaignID, ir.ObjectImportSummary, ir.ActionCompleted, manifestHash)
}

// PackageFinalized reports whether any version of a package completed an
// import in the campaign.
func (t *Tx) PackageFinalized(ctx context.Context, packageID string) (bool, error) {
	return t.exists(ctx, `
		SELECT 1 FROM import_log
		WHERE campaign_id = ? AND object_type = ? AND action = ? AND stable_id = ?
		LIMIT 1
	`, t.campaignID, ir.ObjectImportSummary, ir.ActionCompleted, packageID)
}

// CheckImportSequence verifies the campaign's ImportLog sequence numbers
// from start onward are contiguous.
func (t *Tx) CheckImportSequence(ctx context.Context, start int64) error {
	var (
		count  int64
		lo, hi sql.NullInt64
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(sequence_no), MAX(sequence_no)
		FROM import_log WHERE campaign_id = ? AND sequence_no >= ?
	`, t.campaignID, start).Scan(&count, &lo, &hi)
	if err != nil {
		return fmt.Errorf("check import sequence: %w", err)
	}
	if count == 0 {
		return nil
	}
	if lo.Int64 != start || hi.Int64-lo.Int64+1 != count {
		return &IntegrityError{Code: CodeSequenceGap, CampaignID: t.campaignID, Ordinal: start}
	}
	return nil
}

func (t *Tx) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query import log: %w", err)
	}
	return true, nil
}

func readImportLog(ctx context.Context, q querier, campaignID string) ([]ir.ImportLogEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+importLogColumns+`
		FROM import_log
		WHERE campaign_id = ?
		ORDER BY sequence_no ASC
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("query import log: %w", err)
	}
	defer rows.Close()

	entries := []ir.ImportLogEntry{}
	for rows.Next() {
		e, err := scanImportLogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan import log: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate import log: %w", err)
	}
	return entries, nil
}
