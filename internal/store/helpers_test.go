package store

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/loreledger/internal/ir"
	"github.com/roach88/loreledger/internal/testutil"
)

// createTestStore opens a fresh store in a temp dir with a deterministic
// wall clock.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	opts = append([]Option{WithClock(testutil.NewDeterministicClock().Now)}, opts...)
	s, err := Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// testRequest builds an append request whose key is unique per (campaign, n).
func testRequest(campaignID string, n int64) AppendRequest {
	return AppendRequest{
		CampaignID:     campaignID,
		EventType:      "test.event",
		WorldTime:      n * 10,
		Payload:        ir.IRObject{"n": ir.IRInt(n)},
		PlanID:         "plan-1",
		ToolName:       "test.tool",
		RulesetVersion: "r1",
		Args:           ir.IRObject{"n": ir.IRInt(n)},
	}
}

// buildChain returns n correctly chained envelopes without touching a store.
func buildChain(t *testing.T, campaignID string, n int) []ir.Envelope {
	t.Helper()
	prev := ir.GenesisHash
	events := make([]ir.Envelope, 0, n)
	for i := 0; i < n; i++ {
		env := buildEnvelope(t, campaignID, int64(i), prev)
		prev = env.ChainHash()
		events = append(events, env)
	}
	return events
}

func buildEnvelope(t *testing.T, campaignID string, ordinal int64, prev ir.Hash) ir.Envelope {
	t.Helper()
	payload := ir.IRObject{"n": ir.IRInt(ordinal)}
	payloadHash, err := ir.PayloadHash(payload)
	require.NoError(t, err)
	key, err := ir.IdempotencyKeyV2("plan-1", campaignID, "test.event", "test.tool", "r1", payload)
	require.NoError(t, err)

	return ir.Envelope{
		EventID:            fmt.Sprintf("%s-evt-%d", campaignID, ordinal),
		CampaignID:         campaignID,
		ReplayOrdinal:      ordinal,
		EventType:          "test.event",
		EventSchemaVersion: ir.EventSchemaVersion,
		WorldTime:          ordinal,
		WallTimeUTC:        testutil.Epoch,
		PrevEventHash:      prev,
		PayloadHash:        payloadHash,
		IdempotencyKey:     key,
		Payload:            payload,
	}
}

// countingRecorder tallies append outcomes.
type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{counts: make(map[string]int)}
}

func (r *countingRecorder) RecordAppend(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[result]++
}

func (r *countingRecorder) get(result string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[result]
}
