package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/knosphere/backend/pkg/common"
	"github.com/knosphere/backend/pkg/store"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// CreateDocument inserts a new document. The embedding may be nil; such
// documents stay invisible to vector search until it is computed.
func (s *Store) CreateDocument(ctx context.Context, doc *common.Document) error {
	var embedding any
	if doc.Embedding != nil {
		embedding = pgvector.NewVector(doc.Embedding)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (
			id, title, content, embedding, owner_id, is_public,
			read_acl, write_acl, delete_acl, tags,
			graph_extracted, extracted_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, false, NULL, now(), now())`,
		doc.ID, doc.Title, doc.Content, embedding, doc.OwnerID, doc.IsPublic,
		doc.ReadACL, doc.WriteACL, doc.DeleteACL, doc.Tags,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// GetDocument returns a document if it is visible to principal. Visibility
// is evaluated inside the query so inaccessible documents are
// indistinguishable from missing ones.
func (s *Store) GetDocument(ctx context.Context, id string, principal string) (*common.Document, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, title, content, owner_id, is_public,
			read_acl, write_acl, delete_acl, tags,
			graph_extracted, extracted_at, created_at, updated_at
		FROM documents
		WHERE id = $1
			AND (owner_id = $2 OR is_public OR $2 = ANY(read_acl))`,
		id, principal,
	)

	doc := common.Document{}
	err := row.Scan(
		&doc.ID, &doc.Title, &doc.Content, &doc.OwnerID, &doc.IsPublic,
		&doc.ReadACL, &doc.WriteACL, &doc.DeleteACL, &doc.Tags,
		&doc.GraphExtracted, &doc.ExtractedAt, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return &doc, nil
}

// UpdateDocumentEmbedding stores a computed embedding vector.
func (s *Store) UpdateDocumentEmbedding(ctx context.Context, id string, embedding []float32) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET embedding = $2, updated_at = now() WHERE id = $1`,
		id, pgvector.NewVector(embedding),
	)
	if err != nil {
		return fmt.Errorf("failed to update embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SearchBySimilarity returns up to topK documents visible to principal
// whose cosine similarity to the query vector exceeds threshold, best
// first. The visibility filter is part of the similarity query itself;
// this is the access-control boundary for retrieval.
func (s *Store) SearchBySimilarity(
	ctx context.Context,
	vector []float32,
	principal string,
	topK int,
	threshold float64,
) ([]common.ScoredDocument, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, content, 1 - (embedding <=> $1) AS score, is_public, owner_id
		FROM documents
		WHERE embedding IS NOT NULL
			AND (owner_id = $2 OR is_public OR $2 = ANY(read_acl))
			AND 1 - (embedding <=> $1) > $3
		ORDER BY embedding <=> $1
		LIMIT $4`,
		pgvector.NewVector(vector), principal, threshold, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	defer rows.Close()

	results := make([]common.ScoredDocument, 0, topK)
	for rows.Next() {
		var d common.ScoredDocument
		if err := rows.Scan(&d.ID, &d.Title, &d.Content, &d.Score, &d.IsPublic, &d.OwnerID); err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}
		results = append(results, d)
	}
	return results, rows.Err()
}
