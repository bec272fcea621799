package importer

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"slices"

	"github.com/Masterminds/semver/v3"

	"github.com/roach88/loreledger/internal/artifact"
	"github.com/roach88/loreledger/internal/ir"
)

// manifestPhase validates the manifest, the engine contract and the content
// index, then either short-circuits on an already finalized manifest hash
// or checks dependencies and emits seed.manifest.validated.
func (r *run) manifestPhase(ctx context.Context) error {
	data, err := fs.ReadFile(r.fsys, artifact.ManifestPath)
	if err != nil {
		return &artifact.SchemaError{Path: artifact.ManifestPath, Message: "cannot read manifest", Err: err}
	}
	m, err := r.im.validator.ParseManifest(artifact.ManifestPath, data)
	if err != nil {
		return err
	}
	r.manifest = m
	r.manifestHash = m.Hash
	r.logger = r.logger.With("package", m.PackageID)

	if err := r.checkContract(); err != nil {
		return err
	}
	if err := r.verifyContentIndex(); err != nil {
		return err
	}

	finalized, err := r.tx.FinalizedImport(ctx, r.manifestHash)
	if err != nil {
		return err
	}
	if finalized {
		return r.loadFinalized(ctx)
	}

	if err := r.checkDependencies(ctx); err != nil {
		return err
	}

	payload := m.Object.Clone()
	payload["manifest_hash"] = ir.IRString(r.manifestHash)
	r.components = append(r.components, ir.StateComponent{
		Phase:       ir.PhaseManifest,
		StableID:    m.PackageID,
		ContentHash: r.manifestHash,
	})
	created, err := r.emit(ctx, seed{
		phase:      ir.PhaseManifest,
		eventType:  EventManifestValidated,
		objectType: ir.ObjectManifest,
		action:     ir.ActionValidated,
		stableID:   m.PackageID,
		fileHash:   r.manifestHash,
		payload:    payload,
	})
	if err != nil {
		return err
	}
	r.count(ir.PhaseManifest, created)
	return nil
}

func (r *run) checkContract() error {
	engine := r.im.engine
	constraint, err := semver.NewConstraint(r.manifest.EngineContractRange)
	if err != nil {
		return &ContractError{Range: r.manifest.EngineContractRange, EngineVersion: engine.String(), Err: err}
	}
	if ok, errs := constraint.Validate(engine); !ok {
		return &ContractError{Range: r.manifest.EngineContractRange, EngineVersion: engine.String(), Err: errors.Join(errs...)}
	}
	return nil
}

// verifyContentIndex checks every discovered artifact is indexed and every
// indexed file exists with the declared sha256. Verified bytes are kept so
// each file is read once per run.
func (r *run) verifyContentIndex() error {
	layout, err := artifact.Discover(r.fsys)
	if err != nil {
		return err
	}
	r.layout = layout

	index := r.manifest.ContentIndex
	for _, path := range layout.All() {
		if _, ok := index[path]; !ok {
			return &ContentHashError{Path: path, Reason: ReasonUnindexed, Actual: r.hashFile(path)}
		}
	}

	for _, path := range slices.Sorted(maps.Keys(index)) {
		expected := index[path]
		if !fs.ValidPath(path) || path == artifact.ManifestPath {
			return &ContentHashError{Path: path, Reason: ReasonInvalidPath, Expected: expected}
		}
		data, err := fs.ReadFile(r.fsys, path)
		if errors.Is(err, fs.ErrNotExist) {
			return &ContentHashError{Path: path, Reason: ReasonMissing, Expected: expected}
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if actual := sha256Hex(data); actual != expected {
			return &ContentHashError{Path: path, Reason: ReasonMismatch, Expected: expected, Actual: actual}
		}
		r.files[path] = data
	}
	return nil
}

// hashFile returns the sha256 of a file for error reports, or "" if it
// cannot be read.
func (r *run) hashFile(path string) string {
	data, err := fs.ReadFile(r.fsys, path)
	if err != nil {
		return ""
	}
	return sha256Hex(data)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// loadFinalized marks the run as a replay of a completed import and reads
// the state digest back from its seed.import.complete event.
func (r *run) loadFinalized(ctx context.Context) error {
	key, err := r.request(r.completeSeed()).IdempotencyKey()
	if err != nil {
		return err
	}
	env, found, err := r.tx.ReadEventByKey(ctx, key)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("import of %s is finalized but has no %s event", r.manifest.PackageID, EventImportComplete)
	}
	r.digest = env.Payload.GetString("state_digest")
	r.shortCircuit = true
	return nil
}

func (r *run) checkDependencies(ctx context.Context) error {
	deps := slices.Clone(r.manifest.Dependencies)
	slices.Sort(deps)
	deps = slices.Compact(deps)

	var missing []string
	for _, dep := range deps {
		ok, err := r.tx.PackageFinalized(ctx, dep)
		if err != nil {
			return err
		}
		if !ok {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		return &DependencyError{PackageID: r.manifest.PackageID, Missing: missing}
	}
	return nil
}

// entityPhase ingests entities ordered by (kind, stable_id, source_path).
func (r *run) entityPhase(ctx context.Context) error {
	var entities []artifact.Entity
	for _, path := range r.layout.Entities {
		parsed, err := r.im.validator.ParseEntities(path, r.files[path])
		if err != nil {
			return err
		}
		entities = append(entities, parsed...)
	}
	slices.SortStableFunc(entities, func(a, b artifact.Entity) int {
		return cmp.Or(
			cmp.Compare(a.Kind, b.Kind),
			cmp.Compare(a.StableID, b.StableID),
			cmp.Compare(a.Path, b.Path),
		)
	})

	for _, e := range entities {
		if err := r.ingest(ctx, seed{
			phase:      ir.PhaseEntity,
			eventType:  EventEntityCreated,
			objectType: ir.ObjectEntity,
			action:     ir.ActionCreated,
			stableID:   e.StableID,
		}, e.Source); err != nil {
			return err
		}
		r.entityIDs[e.StableID] = true
	}
	return r.summarize(ctx, ir.PhaseEntity)
}

// edgePhase resolves every edge endpoint against this run's entities, then
// ingests edges ordered by (type, stable_id, source_path).
func (r *run) edgePhase(ctx context.Context) error {
	var edges []artifact.Edge
	for _, path := range r.layout.Edges {
		parsed, err := r.im.validator.ParseEdges(path, r.files[path])
		if err != nil {
			return err
		}
		edges = append(edges, parsed...)
	}
	slices.SortStableFunc(edges, func(a, b artifact.Edge) int {
		return cmp.Or(
			cmp.Compare(a.Type, b.Type),
			cmp.Compare(a.StableID, b.StableID),
			cmp.Compare(a.Path, b.Path),
		)
	})

	var missing []MissingRef
	for _, e := range edges {
		if !r.entityIDs[e.SrcRef] {
			missing = append(missing, MissingRef{EdgeID: e.StableID, Field: "src_ref", Ref: e.SrcRef, Path: e.Path})
		}
		if !r.entityIDs[e.DstRef] {
			missing = append(missing, MissingRef{EdgeID: e.StableID, Field: "dst_ref", Ref: e.DstRef, Path: e.Path})
		}
	}
	if len(missing) > 0 {
		return &ReferenceError{Missing: missing}
	}

	for _, e := range edges {
		if err := r.ingest(ctx, seed{
			phase:      ir.PhaseEdge,
			eventType:  EventEdgeCreated,
			objectType: ir.ObjectEdge,
			action:     ir.ActionCreated,
			stableID:   e.StableID,
		}, e.Source); err != nil {
			return err
		}
	}
	return r.summarize(ctx, ir.PhaseEdge)
}

// ontologyPhase ingests tags and affordances ordered by
// (object_type, id, source_path).
func (r *run) ontologyPhase(ctx context.Context) error {
	var items []artifact.OntologyItem
	for _, path := range r.layout.Ontology {
		parsed, err := r.im.validator.ParseOntology(path, r.files[path])
		if err != nil {
			return err
		}
		items = append(items, parsed...)
	}
	slices.SortStableFunc(items, func(a, b artifact.OntologyItem) int {
		return cmp.Or(
			cmp.Compare(a.Kind, b.Kind),
			cmp.Compare(a.ID, b.ID),
			cmp.Compare(a.Path, b.Path),
		)
	})

	for _, item := range items {
		var eventType string
		switch item.Kind {
		case artifact.OntologyTag:
			eventType = EventTagCreated
		case artifact.OntologyAffordance:
			eventType = EventAffordanceCreated
		default:
			return fmt.Errorf("unknown ontology kind %q", item.Kind)
		}
		if err := r.ingest(ctx, seed{
			phase:      ir.PhaseOntology,
			eventType:  eventType,
			objectType: string(item.Kind),
			action:     ir.ActionCreated,
			stableID:   item.ID,
		}, item.Source); err != nil {
			return err
		}
	}
	return r.summarize(ctx, ir.PhaseOntology)
}

// lorePhase ingests lore chunks ordered by (chunk_id, source_path). Each
// event carries the chunk's world_time.
func (r *run) lorePhase(ctx context.Context) error {
	var chunks []artifact.LoreChunk
	for _, path := range r.layout.Lore {
		chunk, err := r.im.validator.ParseLore(path, r.files[path])
		if err != nil {
			return err
		}
		chunks = append(chunks, chunk)
	}
	slices.SortStableFunc(chunks, func(a, b artifact.LoreChunk) int {
		return cmp.Or(
			cmp.Compare(a.ChunkID, b.ChunkID),
			cmp.Compare(a.Path, b.Path),
		)
	})

	for _, chunk := range chunks {
		if err := r.ingest(ctx, seed{
			phase:      ir.PhaseLore,
			eventType:  EventLoreChunkCreated,
			objectType: ir.ObjectLoreChunk,
			action:     ir.ActionCreated,
			stableID:   chunk.ChunkID,
			worldTime:  chunk.WorldTime,
		}, chunk.Source); err != nil {
			return err
		}
	}
	return r.summarize(ctx, ir.PhaseLore)
}

// finalizationPhase computes the state digest, emits seed.import.complete
// with the import_summary row, and checks the run's ImportLog sequence
// numbers are contiguous.
func (r *run) finalizationPhase(ctx context.Context) error {
	digest, err := ir.StateDigest(r.components)
	if err != nil {
		return err
	}
	r.digest = digest

	s := r.completeSeed()
	s.payload = ir.NewIRObjectFromPairs(
		ir.O("package_id", ir.IRString(r.manifest.PackageID)),
		ir.O("manifest_hash", ir.IRString(r.manifestHash)),
		ir.O("counts", r.countsObject()),
		ir.O("state_digest", ir.IRString(digest)),
	)
	if _, err := r.emit(ctx, s); err != nil {
		return err
	}

	return r.tx.CheckImportSequence(ctx, r.firstSeq)
}

// completeSeed identifies the seed.import.complete event by package and
// manifest hash, so a replay can find it without knowing the digest.
func (r *run) completeSeed() seed {
	return seed{
		phase:      ir.PhaseFinalization,
		eventType:  EventImportComplete,
		objectType: ir.ObjectImportSummary,
		action:     ir.ActionCompleted,
		stableID:   r.manifest.PackageID,
		fileHash:   r.manifestHash,
	}
}

func (r *run) countsObject() ir.IRObject {
	obj := make(ir.IRObject, len(r.counts))
	for phase, c := range r.counts {
		obj[string(phase)] = ir.IRObject{
			"created": ir.IRInt(c.Created),
			"skipped": ir.IRInt(c.Skipped),
		}
	}
	return obj
}
