package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/Masterminds/semver/v3"

	"github.com/roach88/loreledger/internal/artifact"
	"github.com/roach88/loreledger/internal/ir"
	"github.com/roach88/loreledger/internal/store"
)

// Recorder receives per-object and per-run import outcomes.
// *metrics.Metrics satisfies it.
type Recorder interface {
	RecordImportObject(phase, action string)
	RecordImport(outcome string)
}

// Run outcomes reported to the Recorder.
const (
	OutcomeCompleted = "completed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Per-object actions reported to the Recorder.
const (
	objectCreated = "created"
	objectSkipped = "skipped"
)

type noopRecorder struct{}

func (noopRecorder) RecordImportObject(string, string) {}
func (noopRecorder) RecordImport(string)               {}

// Importer seeds campaign ledgers from content packages.
type Importer struct {
	store     *store.Store
	validator *artifact.Validator
	engine    *semver.Version
	enabled   bool
	logger    *slog.Logger
	recorder  Recorder
}

// Option configures an Importer.
type Option func(*Importer)

// WithEnabled turns the importer on or off. A disabled importer fails every
// run with ErrImportDisabled. Enabled by default.
func WithEnabled(enabled bool) Option {
	return func(im *Importer) { im.enabled = enabled }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(im *Importer) { im.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(im *Importer) { im.recorder = r }
}

// WithEngineVersion overrides the engine version checked against manifest
// contract ranges. Defaults to ir.EngineVersion.
func WithEngineVersion(v *semver.Version) Option {
	return func(im *Importer) { im.engine = v }
}

// New creates an Importer writing to s.
func New(s *store.Store, opts ...Option) (*Importer, error) {
	validator, err := artifact.NewValidator()
	if err != nil {
		return nil, err
	}
	im := &Importer{
		store:     s,
		validator: validator,
		engine:    semver.MustParse(ir.EngineVersion),
		enabled:   true,
		logger:    slog.Default(),
		recorder:  noopRecorder{},
	}
	for _, opt := range opts {
		opt(im)
	}
	return im, nil
}

// PhaseCounts counts the objects a phase created and skipped.
type PhaseCounts struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// Result summarizes one import run.
type Result struct {
	PackageID      string                   `json:"package_id"`
	CampaignID     string                   `json:"campaign_id"`
	ManifestHash   string                   `json:"manifest_hash"`
	EventsCreated  int                      `json:"events_created"`
	ImportLogRows  int                      `json:"import_log_rows"`
	StateDigest    string                   `json:"state_digest"`
	IdempotentSkip bool                     `json:"idempotent_skip"`
	Counts         map[ir.Phase]PhaseCounts `json:"counts"`
}

// RunDir imports the package rooted at dir.
func (im *Importer) RunDir(ctx context.Context, dir, campaignID string) (Result, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return Result{}, fmt.Errorf("package directory: %w", err)
	}
	if !info.IsDir() {
		return Result{}, fmt.Errorf("package directory: %s is not a directory", dir)
	}
	return im.Run(ctx, os.DirFS(dir), campaignID)
}

// Run imports the package in fsys into a campaign.
//
// Every phase runs inside one campaign-locked transaction. Either all seed
// events and ImportLog rows commit, or none do. Re-running a package whose
// manifest hash already completed in the campaign writes nothing and
// returns IdempotentSkip=true with the stored state digest.
func (im *Importer) Run(ctx context.Context, fsys fs.FS, campaignID string) (Result, error) {
	if !im.enabled {
		return Result{}, ErrImportDisabled
	}
	if campaignID == "" {
		return Result{}, errors.New("import: campaign id is required")
	}

	res, err := im.run(ctx, fsys, campaignID)
	switch {
	case err != nil:
		im.recorder.RecordImport(OutcomeFailed)
		im.logger.Error("import failed", "campaign", campaignID, "package", res.PackageID, "error", err)
		return Result{}, err
	case res.IdempotentSkip:
		im.recorder.RecordImport(OutcomeSkipped)
	default:
		im.recorder.RecordImport(OutcomeCompleted)
	}
	return res, nil
}

func (im *Importer) run(ctx context.Context, fsys fs.FS, campaignID string) (Result, error) {
	tx, err := im.store.BeginCampaign(ctx, campaignID)
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback()

	r, err := im.newRun(ctx, tx, fsys)
	if err != nil {
		return Result{}, err
	}

	for _, p := range phases {
		if err := ctx.Err(); err != nil {
			return r.result(), err
		}
		im.logger.Debug("phase started", "campaign", campaignID, "phase", p.phase)
		if err := p.fn(r, ctx); err != nil {
			return r.result(), fmt.Errorf("%s phase: %w", p.phase, err)
		}
		if r.shortCircuit {
			im.logger.Info("import already finalized, skipping",
				"campaign", campaignID, "package", r.manifest.PackageID, "manifest_hash", r.manifestHash)
			return r.result(), nil
		}
	}

	if err := tx.Commit(); err != nil {
		return r.result(), fmt.Errorf("commit import: %w", err)
	}
	im.logger.Info("import completed",
		"campaign", campaignID,
		"package", r.manifest.PackageID,
		"events", r.eventsCreated,
		"import_log_rows", r.rows,
		"state_digest", r.digest)
	return r.result(), nil
}

// phases lists the pipeline in execution order.
var phases = []struct {
	phase ir.Phase
	fn    func(*run, context.Context) error
}{
	{ir.PhaseManifest, (*run).manifestPhase},
	{ir.PhaseEntity, (*run).entityPhase},
	{ir.PhaseEdge, (*run).edgePhase},
	{ir.PhaseOntology, (*run).ontologyPhase},
	{ir.PhaseLore, (*run).lorePhase},
	{ir.PhaseFinalization, (*run).finalizationPhase},
}
