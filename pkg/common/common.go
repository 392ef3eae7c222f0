package common

import "time"

// EntityType classifies a graph entity. Extraction output outside this set
// is coerced to EntityTypeConcept.
type EntityType string

const (
	EntityTypePerson       EntityType = "PERSON"
	EntityTypeOrganization EntityType = "ORGANIZATION"
	EntityTypeConcept      EntityType = "CONCEPT"
	EntityTypeProduct      EntityType = "PRODUCT"
	EntityTypeLocation     EntityType = "LOCATION"
	EntityTypeEvent        EntityType = "EVENT"
)

// ParseEntityType maps free-form extraction output onto a known entity type.
func ParseEntityType(s string) EntityType {
	switch EntityType(s) {
	case EntityTypePerson, EntityTypeOrganization, EntityTypeConcept,
		EntityTypeProduct, EntityTypeLocation, EntityTypeEvent:
		return EntityType(s)
	default:
		return EntityTypeConcept
	}
}

// Document is an ingested piece of knowledge-base content. The embedding is
// nil until computed; only embedded documents participate in vector search.
//
// Visibility is owner-scoped: a document is visible to a principal when the
// principal owns it, the document is public, or the principal appears in the
// per-action access list.
type Document struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Content        string     `json:"content"`
	Embedding      []float32  `json:"-"`
	OwnerID        string     `json:"owner_id"`
	IsPublic       bool       `json:"is_public"`
	ReadACL        []string   `json:"read_acl"`
	WriteACL       []string   `json:"write_acl"`
	DeleteACL      []string   `json:"delete_acl"`
	Tags           []string   `json:"tags"`
	GraphExtracted bool       `json:"graph_extracted"`
	ExtractedAt    *time.Time `json:"extracted_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ScoredDocument is a retrieval result: a document projection plus the score
// from the ranking pass that produced it. Scores from the coarse similarity
// pass and from reranking live in different spaces and are never mixed
// within one result list.
type ScoredDocument struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
	IsPublic bool    `json:"is_public"`
	OwnerID  string  `json:"owner_id"`
}

// Entity is a node in a principal's knowledge graph. NormalizedName is the
// dedup key: unique per owner, with merges accumulating frequency and
// raising confidence to the maximum observed.
type Entity struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	NormalizedName string     `json:"normalized_name"`
	Type           EntityType `json:"type"`
	Description    string     `json:"description"`
	Frequency      int        `json:"frequency"`
	Confidence     float64    `json:"confidence"`
	OwnerID        string     `json:"owner_id"`
	SourceDocIDs   []string   `json:"source_doc_ids"`
	Snippets       []string   `json:"snippets"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// GraphEdge is a directed relation between two entities of the same owner,
// with provenance back to the document it was extracted from. Consumers
// wanting undirected semantics must union both directions.
type GraphEdge struct {
	ID           string    `json:"id"`
	SourceID     string    `json:"source_id"`
	TargetID     string    `json:"target_id"`
	Relation     string    `json:"relation"`
	Description  string    `json:"description"`
	Weight       float64   `json:"weight"`
	Confidence   float64   `json:"confidence"`
	SourceDocID  string    `json:"source_doc_id"`
	Context      string    `json:"context"`
	OwnerID      string    `json:"owner_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// EntityDocumentLink ties an entity to one document it was observed in.
// At most one row exists per (entity, document) pair; repeated extraction
// updates the counters in place.
type EntityDocumentLink struct {
	EntityID     string   `json:"entity_id"`
	DocumentID   string   `json:"document_id"`
	Frequency    int      `json:"frequency"`
	Significance float64  `json:"significance"`
	Occurrences  []string `json:"occurrences"`
}
