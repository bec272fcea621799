package artifact

import "github.com/roach88/loreledger/internal/ir"

// Source is the provenance of one artifact object.
type Source struct {
	Path   string      // package-relative file path
	Object ir.IRObject // validated value with null members dropped
	Hash   string      // ir.ContentHash of Object
}

// Manifest describes a content package.
type Manifest struct {
	Source `json:"-"`

	PackageID           string            `json:"package_id"`
	SchemaVersion       int               `json:"schema_version"`
	EngineContractRange string            `json:"engine_contract_range"`
	RulesetVersion      string            `json:"ruleset_version"`
	Title               string            `json:"title,omitempty"`
	Dependencies        []string          `json:"dependencies,omitempty"`
	ContentIndex        map[string]string `json:"content_index"` // path -> sha256 hex of raw bytes
}

// Kind discriminates entities.
type Kind string

// Entity kinds.
const (
	KindNPC      Kind = "npc"
	KindLocation Kind = "location"
	KindFaction  Kind = "faction"
	KindItem     Kind = "item"
	KindCreature Kind = "creature"
	KindQuest    Kind = "quest"
)

// Valid reports whether k is a known entity kind.
func (k Kind) Valid() bool {
	switch k {
	case KindNPC, KindLocation, KindFaction, KindItem, KindCreature, KindQuest:
		return true
	}
	return false
}

// Entity is a world object such as an NPC or a location.
type Entity struct {
	Source `json:"-"`

	StableID    string      `json:"stable_id"`
	Kind        Kind        `json:"kind"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	Affordances []string    `json:"affordances,omitempty"`
	Attributes  ir.IRObject `json:"attributes,omitempty"`
}

// EdgeType discriminates edges.
type EdgeType string

// Edge types.
const (
	EdgeResidesIn  EdgeType = "resides_in"
	EdgeLocatedIn  EdgeType = "located_in"
	EdgeMemberOf   EdgeType = "member_of"
	EdgeOwns       EdgeType = "owns"
	EdgeKnows      EdgeType = "knows"
	EdgeAlliedWith EdgeType = "allied_with"
	EdgeHostileTo  EdgeType = "hostile_to"
	EdgeRelatedTo  EdgeType = "related_to"
)

// Valid reports whether t is a known edge type.
func (t EdgeType) Valid() bool {
	switch t {
	case EdgeResidesIn, EdgeLocatedIn, EdgeMemberOf, EdgeOwns,
		EdgeKnows, EdgeAlliedWith, EdgeHostileTo, EdgeRelatedTo:
		return true
	}
	return false
}

// Validity is an inclusive world-time window.
type Validity struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// Edge is a typed relation between two entities.
type Edge struct {
	Source `json:"-"`

	StableID string    `json:"stable_id"`
	Type     EdgeType  `json:"type"`
	SrcRef   string    `json:"src_ref"`
	DstRef   string    `json:"dst_ref"`
	Validity *Validity `json:"validity,omitempty"`
}

// OntologyKind discriminates ontology items.
type OntologyKind string

// Ontology item kinds. The values double as ImportLog object types.
const (
	OntologyTag        OntologyKind = ir.ObjectTag
	OntologyAffordance OntologyKind = ir.ObjectAffordance
)

// OntologyItem is a tag or affordance definition.
type OntologyItem struct {
	Source `json:"-"`

	Kind        OntologyKind `json:"-"`
	ID          string       `json:"id"`
	Category    string       `json:"category"`
	Label       string       `json:"label,omitempty"`
	Description string       `json:"description,omitempty"`
}

// LoreChunk is a Markdown document with front matter.
type LoreChunk struct {
	Source `json:"-"`

	ChunkID    string   `json:"chunk_id"`
	Title      string   `json:"title,omitempty"`
	EntityRefs []string `json:"entity_refs,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	WorldTime  int64    `json:"world_time,omitempty"`
	Content    string   `json:"content"`
}
