package ir

import "time"

// Envelope is one immutable ledger record.
// Ordering, uniqueness and chaining are all scoped by CampaignID.
type Envelope struct {
	EventID            string         `json:"event_id"`
	CampaignID         string         `json:"campaign_id"`
	ReplayOrdinal      int64          `json:"replay_ordinal"` // Dense, gap-free, starts at 0
	EventType          string         `json:"event_type"`
	EventSchemaVersion int            `json:"event_schema_version"`
	WorldTime          int64          `json:"world_time"`    // In-fiction clock
	WallTimeUTC        time.Time      `json:"wall_time_utc"` // Real clock, UTC millis
	PrevEventHash      Hash           `json:"prev_event_hash"`
	PayloadHash        Hash           `json:"payload_hash"`
	IdempotencyKey     IdempotencyKey `json:"idempotency_key"`

	// Nullable correlation fields; "" is stored as NULL.
	ActorID            string `json:"actor_id,omitempty"`
	PlanID             string `json:"plan_id,omitempty"`
	ExecutionRequestID string `json:"execution_request_id,omitempty"`
	ApprovedBy         string `json:"approved_by,omitempty"`

	Payload IRObject `json:"payload"`
}

// ChainHash returns the hash the next envelope in the campaign must carry as
// its PrevEventHash.
func (e Envelope) ChainHash() Hash {
	return ChainHash(e.CampaignID, e.ReplayOrdinal, e.EventType, e.PrevEventHash, e.PayloadHash, e.IdempotencyKey)
}

// Phase names one stage of the importer pipeline.
type Phase string

// Importer phases in execution order.
const (
	PhaseManifest     Phase = "manifest"
	PhaseEntity       Phase = "entity"
	PhaseEdge         Phase = "edge"
	PhaseOntology     Phase = "ontology"
	PhaseLore         Phase = "lore"
	PhaseFinalization Phase = "finalization"
)

// Phases returns all phases in execution order.
func Phases() []Phase {
	return []Phase{PhaseManifest, PhaseEntity, PhaseEdge, PhaseOntology, PhaseLore, PhaseFinalization}
}

// ImportLog object types.
const (
	ObjectManifest      = "manifest"
	ObjectEntity        = "entity"
	ObjectEdge          = "edge"
	ObjectTag           = "tag"
	ObjectAffordance    = "affordance"
	ObjectLoreChunk     = "lore_chunk"
	ObjectPhaseSummary  = "phase_summary"
	ObjectImportSummary = "import_summary"
)

// ImportLog actions. Idempotent skips write no row, so there is no skip action.
const (
	ActionValidated  = "validated"
	ActionCreated    = "created"
	ActionSummarized = "summarized"
	ActionCompleted  = "completed"
)

// ImportLogEntry is one provenance row recorded alongside an ingested
// artifact or a phase summary.
type ImportLogEntry struct {
	CampaignID   string    `json:"campaign_id"`
	SequenceNo   int64     `json:"sequence_no"` // Dense per campaign, starts at 0
	Phase        Phase     `json:"phase"`
	ObjectType   string    `json:"object_type"`
	StableID     string    `json:"stable_id"`
	FileHash     string    `json:"file_hash"`
	Action       string    `json:"action"`
	ManifestHash string    `json:"manifest_hash"`
	Timestamp    time.Time `json:"timestamp"`
}
