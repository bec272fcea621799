package importer

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/loreledger/internal/ir"
	"github.com/roach88/loreledger/internal/store"
	"github.com/roach88/loreledger/internal/testutil"
)

const testCampaign = "camp-greenhollow"

const foundingLore = `---
chunk_id: lore:founding
title: The Founding of Greenhollow
entity_refs:
  - location:greenhollow
world_time: 120
---
Greenhollow was founded by river traders.
`

// createTestStore opens a fresh store in a temp dir with a deterministic
// wall clock.
func createTestStore(t *testing.T, opts ...store.Option) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	opts = append([]store.Option{store.WithClock(testutil.NewDeterministicClock().Now)}, opts...)
	s, err := store.Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestImporter(t *testing.T, s *store.Store, opts ...Option) *Importer {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	im, err := New(s, opts...)
	require.NoError(t, err)
	return im
}

// fullPackage is Greenhollow plus an ontology and a lore chunk, so every
// phase has at least one object.
func fullPackage() *testutil.PackageBuilder {
	return testutil.Greenhollow().
		WithJSON("ontology/core.json", map[string]any{
			"tags":        []any{map[string]any{"id": "innkeeper", "category": "occupation"}},
			"affordances": []any{map[string]any{"id": "barter", "category": "social"}},
		}).
		WithFile("lore/founding.md", []byte(foundingLore))
}

func readEvents(t *testing.T, s *store.Store, campaignID string) []ir.Envelope {
	t.Helper()
	events, err := s.ReadEvents(context.Background(), campaignID)
	require.NoError(t, err)
	return events
}

func readImportLog(t *testing.T, s *store.Store, campaignID string) []ir.ImportLogEntry {
	t.Helper()
	entries, err := s.ReadImportLog(context.Background(), campaignID)
	require.NoError(t, err)
	return entries
}

func eventTypes(events []ir.Envelope) []string {
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.EventType
	}
	return types
}

// requireEmptyLedger asserts nothing was persisted for the campaign.
func requireEmptyLedger(t *testing.T, s *store.Store, campaignID string) {
	t.Helper()
	require.Empty(t, readEvents(t, s, campaignID), "events persisted after failed import")
	require.Empty(t, readImportLog(t, s, campaignID), "import log rows persisted after failed import")
}
