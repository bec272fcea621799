package harness

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/Masterminds/semver/v3"

	"github.com/roach88/loreledger/internal/importer"
	"github.com/roach88/loreledger/internal/ir"
	"github.com/roach88/loreledger/internal/store"
	"github.com/roach88/loreledger/internal/testutil"
)

// Harness runs scenarios against a private in-memory ledger with a
// deterministic wall clock.
type Harness struct {
	store    *store.Store
	importer *importer.Importer
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database and importer
// 2. Run import steps in order, checking each expect clause
// 3. Snapshot every touched campaign's events and ImportLog
// 4. Evaluate assertions against the snapshot and the store
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	h, err := newHarness(scenario)
	if err != nil {
		return nil, err
	}
	defer h.store.Close()

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, scenario, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	if err := h.snapshot(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to snapshot ledger: %w", err)
	}

	actx := &AssertionContext{
		Store:    h.store,
		Ctx:      ctx,
		Campaign: scenario.Campaign,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

func newHarness(scenario *Scenario) (*Harness, error) {
	clock := testutil.NewDeterministicClock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(":memory:", store.WithClock(clock.Now), store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}

	opts := []importer.Option{importer.WithLogger(logger)}
	if scenario.EngineVersion != "" {
		v, err := semver.StrictNewVersion(scenario.EngineVersion)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("engine_version: %w", err)
		}
		opts = append(opts, importer.WithEngineVersion(v))
	}
	im, err := importer.New(st, opts...)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create importer: %w", err)
	}

	return &Harness{store: st, importer: im}, nil
}

// executeStep runs one import and checks it against the step's expect
// clause. Mismatches are recorded on result; only harness failures are
// returned.
func (h *Harness) executeStep(ctx context.Context, scenario *Scenario, index int, step ImportStep, result *Result) error {
	campaign := step.Campaign
	if campaign == "" {
		campaign = scenario.Campaign
	}

	fsys, err := packageFS(scenario.Packages[step.Import])
	if err != nil {
		return fmt.Errorf("package %s: %w", step.Import, err)
	}

	res, runErr := h.importer.Run(ctx, fsys, campaign)
	sr := StepResult{Package: step.Import, Campaign: campaign}
	switch {
	case runErr != nil:
		sr.Outcome = OutcomeFailed
		sr.Error = ErrorKind(runErr)
		sr.ErrorMessage = runErr.Error()
	case res.IdempotentSkip:
		sr.Outcome = OutcomeSkipped
	default:
		sr.Outcome = OutcomeCompleted
	}
	sr.EventsCreated = res.EventsCreated
	sr.ImportLogRows = res.ImportLogRows
	sr.StateDigest = res.StateDigest
	result.Steps = append(result.Steps, sr)

	expect := step.Expect
	if expect == nil {
		expect = &ExpectClause{Outcome: OutcomeCompleted}
	}
	for _, msg := range checkExpect(index, sr, expect) {
		result.AddError(msg)
	}
	return nil
}

func checkExpect(index int, sr StepResult, expect *ExpectClause) []string {
	var errs []string
	if sr.Outcome != expect.Outcome {
		msg := fmt.Sprintf("steps[%d] (%s): expected outcome %s, got %s", index, sr.Package, expect.Outcome, sr.Outcome)
		if sr.ErrorMessage != "" {
			msg += ": " + sr.ErrorMessage
		}
		return append(errs, msg)
	}
	if expect.Error != "" && sr.Error != expect.Error {
		errs = append(errs, fmt.Sprintf("steps[%d] (%s): expected error %s, got %s: %s",
			index, sr.Package, expect.Error, sr.Error, sr.ErrorMessage))
	}
	if expect.EventsCreated != nil && sr.EventsCreated != *expect.EventsCreated {
		errs = append(errs, fmt.Sprintf("steps[%d] (%s): expected %d events created, got %d",
			index, sr.Package, *expect.EventsCreated, sr.EventsCreated))
	}
	if expect.ImportLogRows != nil && sr.ImportLogRows != *expect.ImportLogRows {
		errs = append(errs, fmt.Sprintf("steps[%d] (%s): expected %d import log rows, got %d",
			index, sr.Package, *expect.ImportLogRows, sr.ImportLogRows))
	}
	return errs
}

// packageFS materializes a package definition.
func packageFS(def PackageDef) (fs.FS, error) {
	if def.Dir != "" {
		return os.DirFS(def.Dir), nil
	}

	id, _ := def.Manifest["package_id"].(string)
	b := testutil.NewPackage(id)
	for key, value := range def.Manifest {
		if key == "package_id" {
			continue
		}
		b.WithManifestField(key, value)
	}
	for path, content := range def.Files {
		b.WithFile(path, []byte(content))
	}
	for path, content := range def.Unindexed {
		b.WithUnindexedFile(path, []byte(content))
	}
	for path, hash := range def.Index {
		b.WithIndexEntry(path, hash)
	}
	return b.FS(), nil
}

// snapshot reads back every campaign's events and ImportLog.
func (h *Harness) snapshot(ctx context.Context, result *Result) error {
	campaigns, err := h.store.ListCampaigns(ctx)
	if err != nil {
		return err
	}
	for _, campaign := range campaigns {
		events, err := h.store.ReadEvents(ctx, campaign)
		if err != nil {
			return err
		}
		for _, e := range events {
			result.Events = append(result.Events, EventRecord{
				Campaign:  campaign,
				Ordinal:   e.ReplayOrdinal,
				EventType: e.EventType,
				Subject:   subject(e.Payload),
				WorldTime: e.WorldTime,
				Payload:   e.Payload,
			})
		}

		rows, err := h.store.ReadImportLog(ctx, campaign)
		if err != nil {
			return err
		}
		result.ImportLog = append(result.ImportLog, rows...)
	}
	return nil
}

// subject names what a seed event is about.
func subject(payload ir.IRObject) string {
	for _, key := range []string{"stable_id", "chunk_id", "id", "package_id"} {
		if v := payload.GetString(key); v != "" {
			return v
		}
	}
	return ""
}
