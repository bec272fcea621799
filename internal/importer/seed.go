package importer

import "github.com/roach88/loreledger/internal/ir"

// Seed event types.
const (
	EventManifestValidated = "seed.manifest.validated"
	EventEntityCreated     = "seed.entity_created"
	EventEdgeCreated       = "seed.edge_created"
	EventTagCreated        = "seed.tag_created"
	EventAffordanceCreated = "seed.affordance_created"
	EventLoreChunkCreated  = "seed.lore_chunk_created"
	EventImportComplete    = "seed.import.complete"
)

// ActorID is recorded as actor_id on every seed event.
const ActorID = "importer"

// PlanID is the idempotency plan id shared by every seed event of a package.
func PlanID(packageID string) string {
	return "import:" + packageID
}

// ToolName is the idempotency tool name for a phase.
func ToolName(phase ir.Phase) string {
	return "importer." + string(phase)
}

// SeedArgs are the idempotency args of a seed event.
func SeedArgs(stableID, fileHash string) ir.IRObject {
	return ir.NewIRObjectFromPairs(
		ir.O("stable_id", ir.IRString(stableID)),
		ir.O("file_hash", ir.IRString(fileHash)),
	)
}

// PhaseSummaryID is the ImportLog stable_id of a phase summary row.
func PhaseSummaryID(packageID string, phase ir.Phase) string {
	return packageID + "#" + string(phase)
}
