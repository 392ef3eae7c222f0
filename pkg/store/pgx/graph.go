package pgx

import (
	"context"
	"fmt"

	"github.com/knosphere/backend/internal/util"
	"github.com/knosphere/backend/pkg/common"
	"github.com/knosphere/backend/pkg/store"
)

const maxSnippetsPerEntity = 5

// SaveExtraction persists one document's extraction output in a single
// transaction: entity upserts keyed by (owner, normalized_name), document
// links, edge upserts keyed by (owner, source, target, relation), and the
// document's extracted marker. A failure rolls everything back and leaves
// the document unextracted so the job can be retried.
func (s *Store) SaveExtraction(ctx context.Context, batch store.ExtractionBatch) (int, int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin extraction transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	idsByNorm := make(map[string]string, len(batch.Entities))
	entitiesSaved := 0

	for _, obs := range batch.Entities {
		norm := util.NormalizeEntityName(obs.Name)
		if norm == "" {
			continue
		}
		snippets := obs.Snippets
		if len(snippets) > maxSnippetsPerEntity {
			snippets = snippets[:maxSnippetsPerEntity]
		}

		var entityID string
		err := tx.QueryRow(ctx, `
			INSERT INTO entities (
				id, name, normalized_name, type, description,
				frequency, confidence, owner_id, source_doc_ids, snippets,
				created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, ARRAY[$9::text], $10, now(), now())
			ON CONFLICT (owner_id, normalized_name) DO UPDATE SET
				frequency = entities.frequency + EXCLUDED.frequency,
				confidence = GREATEST(entities.confidence, EXCLUDED.confidence),
				description = CASE
					WHEN EXCLUDED.description <> '' THEN EXCLUDED.description
					ELSE entities.description
				END,
				source_doc_ids = CASE
					WHEN $9 = ANY(entities.source_doc_ids) THEN entities.source_doc_ids
					ELSE array_append(entities.source_doc_ids, $9)
				END,
				snippets = (array_cat(entities.snippets, EXCLUDED.snippets))[1:$11],
				updated_at = now()
			RETURNING id`,
			util.MustNewID(), obs.Name, norm, string(obs.Type), obs.Description,
			obs.Frequency, obs.Confidence, batch.OwnerID, batch.DocumentID, snippets,
			maxSnippetsPerEntity,
		).Scan(&entityID)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to upsert entity %q: %w", obs.Name, err)
		}
		idsByNorm[norm] = entityID
		entitiesSaved++

		occurrences := snippets
		_, err = tx.Exec(ctx, `
			INSERT INTO entity_documents (entity_id, document_id, frequency, significance, occurrences)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (entity_id, document_id) DO UPDATE SET
				frequency = EXCLUDED.frequency,
				significance = GREATEST(entity_documents.significance, EXCLUDED.significance),
				occurrences = EXCLUDED.occurrences`,
			entityID, batch.DocumentID, obs.Frequency, obs.Confidence, occurrences,
		)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to upsert entity document link: %w", err)
		}
	}

	relationsSaved := 0
	for _, rel := range batch.Relations {
		sourceID, okSource := idsByNorm[util.NormalizeEntityName(rel.Source)]
		targetID, okTarget := idsByNorm[util.NormalizeEntityName(rel.Target)]
		if !okSource || !okTarget {
			// Extraction already validates names; anything unresolved
			// here points at an empty or skipped entity.
			continue
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO graph_edges (
				id, source_id, target_id, relation, description,
				weight, confidence, source_doc_id, context, owner_id, created_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
			ON CONFLICT (owner_id, source_id, target_id, relation) DO UPDATE SET
				weight = GREATEST(graph_edges.weight, EXCLUDED.weight),
				confidence = GREATEST(graph_edges.confidence, EXCLUDED.confidence),
				description = CASE
					WHEN EXCLUDED.description <> '' THEN EXCLUDED.description
					ELSE graph_edges.description
				END,
				context = EXCLUDED.context`,
			util.MustNewID(), sourceID, targetID, rel.Relation, rel.Description,
			rel.Confidence, rel.Confidence, batch.DocumentID, rel.Context, batch.OwnerID,
		)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to upsert edge %q -> %q: %w", rel.Source, rel.Target, err)
		}
		relationsSaved++
	}

	tag, err := tx.Exec(ctx, `
		UPDATE documents
		SET graph_extracted = true, extracted_at = now(), updated_at = now()
		WHERE id = $1 AND owner_id = $2`,
		batch.DocumentID, batch.OwnerID,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to mark document extracted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, 0, store.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to commit extraction: %w", err)
	}
	return entitiesSaved, relationsSaved, nil
}

// FindEntitiesByName returns entities of principal whose display name
// contains any of the given fragments, most frequent first, capped at
// limit.
func (s *Store) FindEntitiesByName(
	ctx context.Context,
	principal string,
	names []string,
	limit int,
) ([]common.Entity, error) {
	if len(names) == 0 || limit <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, normalized_name, type, description,
			frequency, confidence, owner_id, source_doc_ids, snippets,
			created_at, updated_at
		FROM entities e
		WHERE owner_id = $1
			AND EXISTS (
				SELECT 1 FROM unnest($2::text[]) AS pat
				WHERE e.name ILIKE '%' || pat || '%'
			)
		ORDER BY frequency DESC
		LIMIT $3`,
		principal, names, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("entity lookup failed: %w", err)
	}
	defer rows.Close()

	entities := make([]common.Entity, 0, limit)
	for rows.Next() {
		var e common.Entity
		var entityType string
		if err := rows.Scan(
			&e.ID, &e.Name, &e.NormalizedName, &entityType, &e.Description,
			&e.Frequency, &e.Confidence, &e.OwnerID, &e.SourceDocIDs, &e.Snippets,
			&e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan entity row: %w", err)
		}
		e.Type = common.ParseEntityType(entityType)
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// GetEdgesAmong returns every edge of principal whose endpoints are both in
// entityIDs.
func (s *Store) GetEdgesAmong(
	ctx context.Context,
	principal string,
	entityIDs []string,
) ([]common.GraphEdge, error) {
	if len(entityIDs) < 2 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, source_id, target_id, relation, description,
			weight, confidence, source_doc_id, context, owner_id, created_at
		FROM graph_edges
		WHERE owner_id = $1
			AND source_id = ANY($2)
			AND target_id = ANY($2)`,
		principal, entityIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("edge lookup failed: %w", err)
	}
	defer rows.Close()

	edges := make([]common.GraphEdge, 0)
	for rows.Next() {
		var e common.GraphEdge
		if err := rows.Scan(
			&e.ID, &e.SourceID, &e.TargetID, &e.Relation, &e.Description,
			&e.Weight, &e.Confidence, &e.SourceDocID, &e.Context, &e.OwnerID,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan edge row: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
