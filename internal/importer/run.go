package importer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"

	"github.com/roach88/loreledger/internal/artifact"
	"github.com/roach88/loreledger/internal/ir"
	"github.com/roach88/loreledger/internal/store"
)

// run holds the state of one import. It is created per Run call and handed
// to every phase; nothing in it outlives the call.
type run struct {
	im         *Importer
	tx         *store.Tx
	fsys       fs.FS
	campaignID string
	logger     *slog.Logger

	layout artifact.Layout
	files  map[string][]byte // verified raw bytes by package path

	manifest     artifact.Manifest
	manifestHash string

	seen      map[objectKey]seenObject
	entityIDs map[string]bool

	components    []ir.StateComponent
	counts        map[ir.Phase]PhaseCounts
	eventsCreated int
	rows          int
	firstSeq      int64
	digest        string
	shortCircuit  bool
}

type objectKey struct {
	objectType string
	stableID   string
}

type seenObject struct {
	hash string
	path string
}

func (im *Importer) newRun(ctx context.Context, tx *store.Tx, fsys fs.FS) (*run, error) {
	first, err := tx.NextImportSequence(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[ir.Phase]PhaseCounts)
	for _, phase := range ir.Phases() {
		if phase != ir.PhaseFinalization {
			counts[phase] = PhaseCounts{}
		}
	}
	return &run{
		im:         im,
		tx:         tx,
		fsys:       fsys,
		campaignID: tx.CampaignID(),
		logger:     im.logger.With("campaign", tx.CampaignID()),
		files:      make(map[string][]byte),
		seen:       make(map[objectKey]seenObject),
		entityIDs:  make(map[string]bool),
		counts:     counts,
		firstSeq:   first,
	}, nil
}

func (r *run) result() Result {
	return Result{
		PackageID:      r.manifest.PackageID,
		CampaignID:     r.campaignID,
		ManifestHash:   r.manifestHash,
		EventsCreated:  r.eventsCreated,
		ImportLogRows:  r.rows,
		StateDigest:    r.digest,
		IdempotentSkip: r.shortCircuit,
		Counts:         maps.Clone(r.counts),
	}
}

// seed is one seed event and its ImportLog row.
type seed struct {
	phase      ir.Phase
	eventType  string
	objectType string
	action     string
	stableID   string
	fileHash   string
	worldTime  int64
	payload    ir.IRObject
}

func (r *run) request(s seed) store.AppendRequest {
	return store.AppendRequest{
		CampaignID:     r.campaignID,
		EventType:      s.eventType,
		WorldTime:      s.worldTime,
		Payload:        s.payload,
		ActorID:        ActorID,
		PlanID:         PlanID(r.manifest.PackageID),
		ToolName:       ToolName(s.phase),
		RulesetVersion: r.manifest.RulesetVersion,
		Args:           SeedArgs(s.stableID, s.fileHash),
	}
}

// emit appends the seed event and its ImportLog row. It reports false when
// the event already existed, in which case its row exists too and nothing
// is written.
func (r *run) emit(ctx context.Context, s seed) (bool, error) {
	res, err := r.tx.Append(ctx, r.request(s))
	if err != nil {
		return false, fmt.Errorf("append %s %s: %w", s.eventType, s.stableID, err)
	}
	if res.Reused {
		return false, nil
	}
	r.eventsCreated++

	if err := r.log(ctx, s.phase, s.objectType, s.stableID, s.fileHash, s.action); err != nil {
		return false, err
	}
	return true, nil
}

func (r *run) log(ctx context.Context, phase ir.Phase, objectType, stableID, fileHash, action string) error {
	_, err := r.tx.AppendImportLog(ctx, ir.ImportLogEntry{
		Phase:        phase,
		ObjectType:   objectType,
		StableID:     stableID,
		FileHash:     fileHash,
		Action:       action,
		ManifestHash: r.manifestHash,
	})
	if err != nil {
		return err
	}
	r.rows++
	return nil
}

// admit applies the collision policy to one object. It reports true when
// the object is new to both the run and the campaign. The same stable id
// with the same hash is skipped; with a different hash it is a collision.
func (r *run) admit(ctx context.Context, phase ir.Phase, objectType, stableID string, src artifact.Source) (bool, error) {
	key := objectKey{objectType: objectType, stableID: stableID}
	if prev, ok := r.seen[key]; ok {
		if prev.hash == src.Hash {
			return false, nil
		}
		return false, &CollisionError{
			Phase:        phase,
			ObjectType:   objectType,
			StableID:     stableID,
			ExistingHash: prev.hash,
			NewHash:      src.Hash,
			ExistingPath: prev.path,
			NewPath:      src.Path,
		}
	}
	r.seen[key] = seenObject{hash: src.Hash, path: src.Path}

	stored, found, err := r.tx.LatestObjectHash(ctx, objectType, stableID)
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}
	if stored == src.Hash {
		return false, nil
	}
	return false, &CollisionError{
		Phase:        phase,
		ObjectType:   objectType,
		StableID:     stableID,
		ExistingHash: stored,
		NewHash:      src.Hash,
		NewPath:      src.Path,
	}
}

// ingest runs one artifact object through the collision policy and emits
// its seed event when it is new. Skipped objects still contribute to the
// state digest.
func (r *run) ingest(ctx context.Context, s seed, src artifact.Source) error {
	created, err := r.admit(ctx, s.phase, s.objectType, s.stableID, src)
	if err != nil {
		return err
	}
	r.components = append(r.components, ir.StateComponent{
		Phase:       s.phase,
		StableID:    s.stableID,
		ContentHash: src.Hash,
	})

	if created {
		s.fileHash = src.Hash
		s.payload = seedPayload(r.manifest.PackageID, src)
		if created, err = r.emit(ctx, s); err != nil {
			return err
		}
	}
	if !created {
		r.logger.Debug("object skipped", "phase", s.phase, "type", s.objectType, "stable_id", s.stableID, "path", src.Path)
	}
	r.count(s.phase, created)
	return nil
}

// seedPayload is the artifact object plus its provenance.
func seedPayload(packageID string, src artifact.Source) ir.IRObject {
	payload := src.Object.Clone()
	payload["provenance"] = ir.NewIRObjectFromPairs(
		ir.O("package_id", ir.IRString(packageID)),
		ir.O("source_path", ir.IRString(src.Path)),
		ir.O("file_hash", ir.IRString(src.Hash)),
	)
	return payload
}

func (r *run) count(phase ir.Phase, created bool) {
	c := r.counts[phase]
	if created {
		c.Created++
		r.im.recorder.RecordImportObject(string(phase), objectCreated)
	} else {
		c.Skipped++
		r.im.recorder.RecordImportObject(string(phase), objectSkipped)
	}
	r.counts[phase] = c
}

// summarize writes the phase_summary row. Its file_hash is the digest of
// the phase's components.
func (r *run) summarize(ctx context.Context, phase ir.Phase) error {
	var components []ir.StateComponent
	for _, c := range r.components {
		if c.Phase == phase {
			components = append(components, c)
		}
	}
	digest, err := ir.StateDigest(components)
	if err != nil {
		return err
	}

	c := r.counts[phase]
	r.logger.Debug("phase completed", "phase", phase, "created", c.Created, "skipped", c.Skipped)
	return r.log(ctx, phase, ir.ObjectPhaseSummary, PhaseSummaryID(r.manifest.PackageID, phase), digest, ir.ActionSummarized)
}
