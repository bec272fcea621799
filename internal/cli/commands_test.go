package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loreledger/internal/importer"
	"github.com/roach88/loreledger/internal/ir"
	"github.com/roach88/loreledger/internal/store"
	"github.com/roach88/loreledger/internal/testutil"
)

const testCampaign = "camp-1"

// writeGreenhollow writes the Greenhollow package to a temp dir.
func writeGreenhollow(t *testing.T) string {
	t.Helper()
	return testutil.Greenhollow().WriteDir(t, t.TempDir())
}

// importGreenhollow imports Greenhollow into testCampaign and returns the
// database path.
func importGreenhollow(t *testing.T) string {
	t.Helper()
	dbPath := tempDB(t)
	_, _, err := execute(t, "import", writeGreenhollow(t), "--campaign", testCampaign, "--db", dbPath)
	require.NoError(t, err)
	return dbPath
}

func TestImportMissingCampaignFlag(t *testing.T) {
	_, _, err := execute(t, "import", writeGreenhollow(t), "--db", tempDB(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestImportRequiresPackageArg(t *testing.T) {
	_, _, err := execute(t, "import", "--campaign", testCampaign, "--db", tempDB(t))
	require.Error(t, err)
}

func TestImportText(t *testing.T) {
	dbPath := tempDB(t)

	out, _, err := execute(t, "import", writeGreenhollow(t), "--campaign", testCampaign, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported greenhollow-core into camp-1")
	assert.Contains(t, out, "events:   5 created")
	assert.Contains(t, out, "log rows: 9")
	assert.Contains(t, out, "entity    created=2 skipped=0")

	out, _, err = execute(t, "import", writeGreenhollow(t), "--campaign", testCampaign, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "already imported into camp-1; nothing written")
}

func TestImportJSON(t *testing.T) {
	out, _, err := execute(t, "import", writeGreenhollow(t),
		"--campaign", testCampaign, "--db", tempDB(t), "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string          `json:"status"`
		Data   importer.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "greenhollow-core", resp.Data.PackageID)
	assert.Equal(t, testCampaign, resp.Data.CampaignID)
	assert.Equal(t, 5, resp.Data.EventsCreated)
	assert.Equal(t, 9, resp.Data.ImportLogRows)
	assert.Len(t, resp.Data.StateDigest, 64)
	assert.False(t, resp.Data.IdempotentSkip)
	assert.Equal(t, importer.PhaseCounts{Created: 2}, resp.Data.Counts[ir.PhaseEntity])
}

func TestImportRejectedPackage(t *testing.T) {
	dir := testutil.Greenhollow().
		WithJSON("edges/broken.json", map[string]any{
			"stable_id": "edge:alric_owns_sword",
			"type":      "owns",
			"src_ref":   "npc:alric",
			"dst_ref":   "item:sword",
		}).
		WriteDir(t, t.TempDir())
	dbPath := tempDB(t)

	out, _, err := execute(t, "import", dir, "--campaign", testCampaign, "--db", dbPath, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	require.ErrorIs(t, err, importer.ErrUnresolvedReference)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeUnresolvedReference, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "item:sword")

	events, _, err := execute(t, "events", "--campaign", testCampaign, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, events, "No events found", "a rejected import writes nothing")
}

func TestImportRejectedTextLeavesStdoutEmpty(t *testing.T) {
	dir := testutil.Greenhollow().
		WithIndexEntry("entities/alric.json", testutil.SHA256Hex([]byte("tampered"))).
		WriteDir(t, t.TempDir())

	out, _, err := execute(t, "import", dir, "--campaign", testCampaign, "--db", tempDB(t))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, importer.ErrContentHash)
	assert.Empty(t, out)
}

func TestImportMissingDirectory(t *testing.T) {
	_, _, err := execute(t, "import", filepath.Join(t.TempDir(), "missing"),
		"--campaign", testCampaign, "--db", tempDB(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "package directory")
}

func TestImportDisabledByEnv(t *testing.T) {
	t.Setenv("LORELEDGER_IMPORT_ENABLED", "false")

	_, _, err := execute(t, "import", writeGreenhollow(t), "--campaign", testCampaign, "--db", tempDB(t))
	require.ErrorIs(t, err, importer.ErrImportDisabled)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, ErrCodeImportDisabled, ErrorCode(err))
}

func TestImportMetrics(t *testing.T) {
	_, errOut, err := execute(t, "import", writeGreenhollow(t),
		"--campaign", testCampaign, "--db", tempDB(t), "--metrics")
	require.NoError(t, err)
	assert.Contains(t, errOut, `loreledger_imports_total{outcome="completed"} 1`)
	assert.Contains(t, errOut, `loreledger_appends_total{result="created"} 5`)
}

func TestVerifyAllCampaigns(t *testing.T) {
	dbPath := importGreenhollow(t)

	out, _, err := execute(t, "verify", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "ok    camp-1  events=5")
}

func TestVerifyEmptyDatabase(t *testing.T) {
	out, _, err := execute(t, "verify", "--db", tempDB(t))
	require.NoError(t, err)
	assert.Contains(t, out, "No campaigns found")
}

func TestVerifyJSON(t *testing.T) {
	dbPath := importGreenhollow(t)

	out, _, err := execute(t, "verify", "--db", dbPath, "--campaign", testCampaign, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   VerifyResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Data.AllValid)
	require.Len(t, resp.Data.Campaigns, 1)
	assert.Equal(t, 5, resp.Data.Campaigns[0].Events)
	assert.Equal(t, 5, resp.Data.Campaigns[0].ChainLength)
	assert.Len(t, resp.Data.Campaigns[0].Head, 64)
}

func TestVerifyDetectsTampering(t *testing.T) {
	dbPath := importGreenhollow(t)

	// Simulate an out-of-band edit of the database file.
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	_, err = st.DB().Exec(`DROP TRIGGER events_no_update`)
	require.NoError(t, err)
	_, err = st.DB().Exec(`UPDATE events SET payload = '{"forged":1}' WHERE replay_ordinal = 1`)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, _, err := execute(t, "verify", "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "FAIL  camp-1  ["+ErrCodeHashChain+"]")
	assert.Contains(t, out, "ordinal=1 field=payload_hash")
	assert.Contains(t, out, "(verified 1 of 5 events)")
}

func TestVerifyVerboseLogsToStderr(t *testing.T) {
	t.Setenv("LORELEDGER_LOG_FORMAT", "json")
	dbPath := importGreenhollow(t)

	out, errOut, err := execute(t, "verify", "--db", dbPath, "--verbose", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, errOut, "verifying campaign camp-1")
	assert.Contains(t, errOut, `"msg":"campaign verified"`)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "stdout stays valid JSON")
}

func TestEventsText(t *testing.T) {
	dbPath := importGreenhollow(t)

	out, _, err := execute(t, "events", "--campaign", testCampaign, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "seed.manifest.validated")
	assert.Contains(t, out, "npc:alric")
	assert.Contains(t, out, "edge:alric_resides_in_greenhollow")
	assert.NotContains(t, out, "payload_hash=")

	out, _, err = execute(t, "events", "--campaign", testCampaign, "--db", dbPath, "--verbose")
	require.NoError(t, err)
	assert.Contains(t, out, "payload_hash=")
	assert.Contains(t, out, `"source_path":"entities/alric.json"`)
}

func TestEventsJSONFilter(t *testing.T) {
	dbPath := importGreenhollow(t)

	out, _, err := execute(t, "events", "--campaign", testCampaign, "--db", dbPath,
		"--type", importer.EventEntityCreated, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data []ir.Envelope `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	for _, env := range resp.Data {
		assert.Equal(t, importer.EventEntityCreated, env.EventType)
		assert.Equal(t, testCampaign, env.CampaignID)
	}
}

func TestImportLogText(t *testing.T) {
	dbPath := importGreenhollow(t)

	out, _, err := execute(t, "import-log", "--campaign", testCampaign, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "npc:alric")
	assert.Contains(t, out, ir.ObjectPhaseSummary)
}

func TestImportLogPhaseFilter(t *testing.T) {
	dbPath := importGreenhollow(t)

	out, _, err := execute(t, "import-log", "--campaign", testCampaign, "--db", dbPath,
		"--phase", "entity", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data []ir.ImportLogEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotEmpty(t, resp.Data)
	for _, row := range resp.Data {
		assert.Equal(t, ir.PhaseEntity, row.Phase)
	}

	_, _, err = execute(t, "import-log", "--campaign", testCampaign, "--db", dbPath, "--phase", "bogus")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestImportLogMatchesStore(t *testing.T) {
	dbPath := importGreenhollow(t)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	rows, err := st.ReadImportLog(context.Background(), testCampaign)
	require.NoError(t, err)

	out, _, err := execute(t, "import-log", "--campaign", testCampaign, "--db", dbPath, "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Data []ir.ImportLogEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, len(rows), len(resp.Data))
	assert.Equal(t, rows[len(rows)-1].SequenceNo, resp.Data[len(resp.Data)-1].SequenceNo)
}
