package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/loreledger/internal/ir"
)

// LedgerSnapshot captures the shape of a scenario's final ledger: event
// order and ImportLog rows. Hashes, ids and timestamps are left out so
// snapshots read as import plans and survive payload-format changes.
type LedgerSnapshot struct {
	ScenarioName string
	Steps        []StepResult
	Events       []EventRecord
	ImportLog    []ir.ImportLogEntry
}

// NewLedgerSnapshot builds the snapshot of a scenario result.
func NewLedgerSnapshot(name string, result *Result) LedgerSnapshot {
	return LedgerSnapshot{
		ScenarioName: name,
		Steps:        result.Steps,
		Events:       result.Events,
		ImportLog:    result.ImportLog,
	}
}

// Canonical encodes the snapshot as canonical JSON.
func (s LedgerSnapshot) Canonical() ([]byte, error) {
	steps := make(ir.IRArray, len(s.Steps))
	for i, step := range s.Steps {
		obj := ir.IRObject{
			"package":  ir.IRString(step.Package),
			"campaign": ir.IRString(step.Campaign),
			"outcome":  ir.IRString(step.Outcome),
		}
		if step.Error != "" {
			obj["error"] = ir.IRString(step.Error)
		}
		steps[i] = obj
	}

	events := make(ir.IRArray, len(s.Events))
	for i, e := range s.Events {
		events[i] = ir.IRObject{
			"campaign_id":    ir.IRString(e.Campaign),
			"replay_ordinal": ir.IRInt(e.Ordinal),
			"event_type":     ir.IRString(e.EventType),
			"subject":        ir.IRString(e.Subject),
			"world_time":     ir.IRInt(e.WorldTime),
		}
	}

	rows := make(ir.IRArray, len(s.ImportLog))
	for i, row := range s.ImportLog {
		rows[i] = ir.IRObject{
			"campaign_id": ir.IRString(row.CampaignID),
			"sequence_no": ir.IRInt(row.SequenceNo),
			"phase":       ir.IRString(row.Phase),
			"object_type": ir.IRString(row.ObjectType),
			"stable_id":   ir.IRString(row.StableID),
			"action":      ir.IRString(row.Action),
		}
	}

	return ir.MarshalCanonical(ir.IRObject{
		"scenario_name": ir.IRString(s.ScenarioName),
		"steps":         steps,
		"events":        events,
		"import_log":    rows,
	})
}

// RunWithGolden executes a scenario and compares the ledger snapshot
// against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already-run result against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := NewLedgerSnapshot(scenarioName, result).Canonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
