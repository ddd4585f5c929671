package graph

import "errors"

var (
	ErrClosed    = errors.New("graph: store is closed")
	ErrInvalidID = errors.New("graph: id must not be empty")
)

// Entity types produced by the schematic indexer.
const (
	TypeSchematic    = "schematic"
	TypeComponent    = "component"
	TypeStatus       = "status"
	TypeCategory     = "category"
	TypeModel        = "model"
	TypeTag          = "tag"
	TypeManufacturer = "manufacturer"
	// TypeUnknown marks entities synthesised for relationship endpoints
	// that were never added explicitly.
	TypeUnknown = "unknown"
)

// Predicates used by the schematic indexer. The graph itself accepts any
// non-empty predicate.
const (
	PredDependsOn      = "depends_on"
	PredContains       = "contains"
	PredHasStatus      = "has_status"
	PredManufacturedBy = "manufactured_by"
	PredCompatibleWith = "compatible_with"
	PredRelatedTo      = "related_to"
	PredHasCategory    = "has_category"
	PredBelongsToModel = "belongs_to_model"
	PredHasTag         = "has_tag"
)

// Entity is a named, typed node.
type Entity struct {
	ID         string                 `json:"id"`
	EntityType string                 `json:"entity_type"`
	Name       string                 `json:"name"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Relationship is a directed labeled edge (subject, predicate, object).
type Relationship struct {
	Subject   string                 `json:"subject"`
	Predicate string                 `json:"predicate"`
	Object    string                 `json:"object"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Stats is computed on demand from the durable tables.
type Stats struct {
	EntityCount       int            `json:"entity_count"`
	RelationshipCount int            `json:"relationship_count"`
	EntityTypes       map[string]int `json:"entity_types"`
	PredicateCounts   map[string]int `json:"predicate_counts"`
}

// Direction selects which edges GetNeighbors follows.
type Direction string

const (
	Outgoing Direction = "outgoing"
	Incoming Direction = "incoming"
	Both     Direction = "both"
)

// ParseDirection maps a user string to a Direction, defaulting to Both.
func ParseDirection(s string) Direction {
	switch Direction(s) {
	case Outgoing:
		return Outgoing
	case Incoming:
		return Incoming
	default:
		return Both
	}
}

// IndexResult reports what one IndexSchematics batch created.
type IndexResult struct {
	EntitiesAdded      int `json:"entities_added"`
	RelationshipsAdded int `json:"relationships_added"`
	TotalEntities      int `json:"total_entities"`
	TotalRelationships int `json:"total_relationships"`
}

// WalkNode is a node reached by Walk with its distance from the nearest seed.
type WalkNode struct {
	Entity Entity `json:"entity"`
	Depth  int    `json:"depth"`
}
