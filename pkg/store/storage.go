package store

import (
	"context"
	"errors"

	"github.com/knosphere/backend/pkg/common"
)

// ErrNotFound is returned when a document does not exist or is not visible
// to the requesting principal.
var ErrNotFound = errors.New("store: not found")

// EntityObservation is one merged per-document observation of an entity,
// produced by extraction before persistence.
type EntityObservation struct {
	Name        string
	Type        common.EntityType
	Description string
	Frequency   int
	Confidence  float64
	Snippets    []string
}

// RelationObservation is one validated relation between two entities of the
// same extraction batch, referenced by display name.
type RelationObservation struct {
	Source      string
	Target      string
	Relation    string
	Description string
	Confidence  float64
	Context     string
}

// ExtractionBatch is everything a single document extraction wants to
// persist. SaveExtraction applies it atomically: entity and edge upserts,
// document links, and the document's extracted marker either all land or
// none do, so a crashed extraction can be retried safely.
type ExtractionBatch struct {
	DocumentID string
	OwnerID    string
	Entities   []EntityObservation
	Relations  []RelationObservation
}

// DocumentStore persists documents and serves visibility-scoped similarity
// search. Every method takes the acting principal; implementations must
// apply the visibility filter inside the search query itself, never after.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *common.Document) error
	GetDocument(ctx context.Context, id string, principal string) (*common.Document, error)
	UpdateDocumentEmbedding(ctx context.Context, id string, embedding []float32) error
	SearchBySimilarity(
		ctx context.Context,
		vector []float32,
		principal string,
		topK int,
		threshold float64,
	) ([]common.ScoredDocument, error)
}

// GraphStore persists extraction output and serves the bounded lookups the
// graph query engine needs.
//
// SaveExtraction upserts entities by (owner, normalized name) and edges by
// (owner, source, target, relation): frequency accumulates, confidence and
// weight take the maximum, the latest non-empty description wins. Returned
// counts are the entities and relations actually written.
type GraphStore interface {
	SaveExtraction(ctx context.Context, batch ExtractionBatch) (entitiesSaved int, relationsSaved int, err error)
	FindEntitiesByName(ctx context.Context, principal string, names []string, limit int) ([]common.Entity, error)
	GetEdgesAmong(ctx context.Context, principal string, entityIDs []string) ([]common.GraphEdge, error)
}

// Store is the full persistence surface.
type Store interface {
	DocumentStore
	GraphStore
}
