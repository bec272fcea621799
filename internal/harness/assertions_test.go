package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loreledger/internal/ir"
	"github.com/roach88/loreledger/internal/store"
)

func sampleResult() *Result {
	r := NewResult()
	r.Events = []EventRecord{
		{Campaign: "camp-1", Ordinal: 0, EventType: "seed.manifest.validated", Subject: "core",
			Payload: ir.IRObject{"package_id": ir.IRString("core")}},
		{Campaign: "camp-1", Ordinal: 1, EventType: "seed.entity_created", Subject: "npc:alric",
			Payload: ir.IRObject{
				"stable_id":  ir.IRString("npc:alric"),
				"attributes": ir.IRObject{"hp": ir.IRInt(12), "ac": ir.IRInt(14)},
				"tags":       ir.IRArray{ir.IRString("innkeeper")},
			}},
		{Campaign: "camp-1", Ordinal: 2, EventType: "seed.import.complete", Subject: "core",
			Payload: ir.IRObject{"package_id": ir.IRString("core")}},
		{Campaign: "camp-2", Ordinal: 0, EventType: "seed.manifest.validated", Subject: "other",
			Payload: ir.IRObject{"package_id": ir.IRString("other")}},
	}
	r.ImportLog = []ir.ImportLogEntry{
		{CampaignID: "camp-1", SequenceNo: 0, Phase: ir.PhaseManifest, ObjectType: ir.ObjectManifest, StableID: "core", Action: ir.ActionValidated},
		{CampaignID: "camp-1", SequenceNo: 1, Phase: ir.PhaseEntity, ObjectType: ir.ObjectEntity, StableID: "npc:alric", Action: ir.ActionCreated},
		{CampaignID: "camp-1", SequenceNo: 2, Phase: ir.PhaseEntity, ObjectType: ir.ObjectPhaseSummary, StableID: "core#entity", Action: ir.ActionSummarized},
		{CampaignID: "camp-2", SequenceNo: 0, Phase: ir.PhaseManifest, ObjectType: ir.ObjectManifest, StableID: "other", Action: ir.ActionValidated},
	}
	return r
}

func evaluate(t *testing.T, a Assertion) []string {
	t.Helper()
	return EvaluateAssertions(sampleResult(), []Assertion{a}, &AssertionContext{Campaign: "camp-1"})
}

func TestAssertEventCount(t *testing.T) {
	assert.Empty(t, evaluate(t, Assertion{Type: AssertEventCount, Count: 3}))
	assert.Empty(t, evaluate(t, Assertion{Type: AssertEventCount, EventType: "seed.entity_created", Count: 1}))
	assert.Empty(t, evaluate(t, Assertion{Type: AssertEventCount, Campaign: "camp-2", Count: 1}))

	errs := evaluate(t, Assertion{Type: AssertEventCount, EventType: "seed.edge_created", Count: 2})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Expected: 2 seed.edge_created events")
	assert.Contains(t, errs[0], "Actual: 0 seed.edge_created events")
	assert.Contains(t, errs[0], "[1] seed.entity_created npc:alric")
}

func TestAssertEventOrder(t *testing.T) {
	assert.Empty(t, evaluate(t, Assertion{
		Type:       AssertEventOrder,
		EventTypes: []string{"seed.manifest.validated", "seed.import.complete"},
	}))

	errs := evaluate(t, Assertion{
		Type:       AssertEventOrder,
		EventTypes: []string{"seed.import.complete", "seed.entity_created"},
	})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "seed.import.complete (pos 3) should be before seed.entity_created (pos 2)")

	errs = evaluate(t, Assertion{
		Type:       AssertEventOrder,
		EventTypes: []string{"seed.manifest.validated", "seed.edge_created"},
	})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "missing event type: seed.edge_created")
}

func TestAssertEventContains(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		pass    bool
	}{
		{"top-level field", map[string]any{"stable_id": "npc:alric"}, true},
		{"nested subset", map[string]any{"attributes": map[string]any{"hp": 12}}, true},
		{"array exact", map[string]any{"tags": []any{"innkeeper"}}, true},
		{"array differs", map[string]any{"tags": []any{"innkeeper", "bard"}}, false},
		{"wrong value", map[string]any{"attributes": map[string]any{"hp": 13}}, false},
		{"missing field", map[string]any{"faction": "none"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := evaluate(t, Assertion{
				Type:      AssertEventContains,
				EventType: "seed.entity_created",
				Payload:   tt.payload,
			})
			if tt.pass {
				assert.Empty(t, errs)
			} else {
				require.Len(t, errs, 1)
				assert.Contains(t, errs[0], "not found")
			}
		})
	}
}

func TestAssertImportLogCount(t *testing.T) {
	assert.Empty(t, evaluate(t, Assertion{Type: AssertImportLogCount, Count: 3}))
	assert.Empty(t, evaluate(t, Assertion{Type: AssertImportLogCount, Phase: "entity", Count: 2}))
	assert.Empty(t, evaluate(t, Assertion{Type: AssertImportLogCount, Phase: "entity", Action: "created", Count: 1}))
	assert.Empty(t, evaluate(t, Assertion{Type: AssertImportLogCount, ObjectType: "phase_summary", Count: 1}))

	errs := evaluate(t, Assertion{Type: AssertImportLogCount, Phase: "edge", Action: "created", Count: 1})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "1 rows where phase=edge AND action=created")
	assert.Contains(t, errs[0], "Actual: 0 rows")
}

func TestAssertChainValid_RequiresStore(t *testing.T) {
	errs := evaluate(t, Assertion{Type: AssertChainValid})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "requires a store")
}

func TestAssertChainValid_EmptyCampaign(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	errs := EvaluateAssertions(NewResult(), []Assertion{{Type: AssertChainValid}}, &AssertionContext{
		Store:    st,
		Ctx:      context.Background(),
		Campaign: "camp-1",
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_UnknownType(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{{Type: "bogus"}}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], `assertions[0]: unknown assertion type "bogus"`)
}

func TestAssertionError_Error(t *testing.T) {
	err := &AssertionError{
		Type:     AssertEventCount,
		Expected: "3 events",
		Actual:   "2 events",
		Events:   []EventRecord{{Ordinal: 0, EventType: "seed.manifest.validated", Subject: "core"}},
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: event_count")
	assert.Contains(t, msg, "Expected: 3 events")
	assert.Contains(t, msg, "Actual: 2 events")
	assert.Contains(t, msg, "[0] seed.manifest.validated core")
}
