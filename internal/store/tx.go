package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// Tx is a write transaction holding one campaign's writer lock.
// Every read and write inside the transaction must go through Tx: Store
// reads use the read pool and do not see uncommitted rows.
type Tx struct {
	s          *Store
	tx         *sql.Tx
	campaignID string

	unlock  func()
	release sync.Once
}

// BeginCampaign takes the campaign writer lock and opens a transaction.
// The lock is held until Commit or Rollback.
func (s *Store) BeginCampaign(ctx context.Context, campaignID string) (*Tx, error) {
	if campaignID == "" {
		return nil, errors.New("begin campaign: empty campaign id")
	}

	unlock, err := s.lockCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("begin campaign %s: %w", campaignID, err)
	}

	return &Tx{s: s, tx: tx, campaignID: campaignID, unlock: unlock}, nil
}

// CampaignID returns the campaign this transaction writes to.
func (t *Tx) CampaignID() string {
	return t.campaignID
}

// Commit commits the transaction and releases the campaign lock.
func (t *Tx) Commit() error {
	defer t.done()
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit campaign %s: %w", t.campaignID, err)
	}
	return nil
}

// Rollback aborts the transaction and releases the campaign lock.
// Safe to defer: rolling back a committed transaction is a no-op.
func (t *Tx) Rollback() error {
	defer t.done()
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback campaign %s: %w", t.campaignID, err)
	}
	return nil
}

func (t *Tx) done() {
	t.release.Do(t.unlock)
}

func (t *Tx) checkCampaign(campaignID string) error {
	if campaignID != t.campaignID {
		return fmt.Errorf("transaction for campaign %q cannot write to campaign %q", t.campaignID, campaignID)
	}
	return nil
}
