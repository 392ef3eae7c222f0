package graph

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/knosphere/backend/internal/util"
	"github.com/knosphere/backend/pkg/ai"
	"github.com/knosphere/backend/pkg/common"
	"github.com/knosphere/backend/pkg/logger"
	"github.com/knosphere/backend/pkg/store"

	"golang.org/x/sync/errgroup"
)

const (
	defaultMinContentLength = 50
	defaultMaxChunkSize     = 2000
	defaultChunkOverlap     = 200
	defaultParallelChunks   = 4
	snippetRadius           = 75
)

// Extractor mines documents for entities and relations and persists the
// result as one atomic batch per document.
type Extractor struct {
	ai    ai.Client
	store store.GraphStore

	minContentLength int
	maxChunkSize     int
	chunkOverlap     int
	parallelChunks   int
}

// Params configures an Extractor. Zero values take defaults.
type Params struct {
	AI               ai.Client
	Store            store.GraphStore
	MinContentLength int
	MaxChunkSize     int
	ChunkOverlap     int
	ParallelChunks   int
}

// NewExtractor creates an extractor from its collaborators.
func NewExtractor(params Params) (*Extractor, error) {
	if params.AI == nil {
		return nil, fmt.Errorf("graph: missing AI client")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("graph: missing graph store")
	}
	if params.MinContentLength <= 0 {
		params.MinContentLength = defaultMinContentLength
	}
	if params.MaxChunkSize <= 0 {
		params.MaxChunkSize = defaultMaxChunkSize
	}
	if params.ChunkOverlap <= 0 {
		params.ChunkOverlap = defaultChunkOverlap
	}
	if params.ParallelChunks <= 0 {
		params.ParallelChunks = defaultParallelChunks
	}
	return &Extractor{
		ai:               params.AI,
		store:            params.Store,
		minContentLength: params.MinContentLength,
		maxChunkSize:     params.MaxChunkSize,
		chunkOverlap:     params.ChunkOverlap,
		parallelChunks:   params.ParallelChunks,
	}, nil
}

// Result is the outcome of one document extraction.
type Result struct {
	EntitiesSaved  int                       `json:"entities_saved"`
	RelationsSaved int                       `json:"relations_saved"`
	Entities       []store.EntityObservation `json:"entities"`
	Relations      []store.RelationObservation `json:"relations"`
}

// extractedEntity is the structured-output row for one entity observation.
type extractedEntity struct {
	Name        string  `json:"name" jsonschema_description:"Entity name exactly as it appears in the text"`
	Type        string  `json:"type" jsonschema:"enum=PERSON,enum=ORGANIZATION,enum=CONCEPT,enum=PRODUCT,enum=LOCATION,enum=EVENT"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

type extractedEntityList struct {
	Entities []extractedEntity `json:"entities"`
}

// extractedRelation is the structured-output row for one relation between
// two entities of the same chunk.
type extractedRelation struct {
	Source      string  `json:"source"`
	Target      string  `json:"target"`
	Relation    string  `json:"relation"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
	Context     string  `json:"context"`
}

type extractedRelationList struct {
	Relations []extractedRelation `json:"relations"`
}

type chunkResult struct {
	entities  []store.EntityObservation
	relations []store.RelationObservation
}

// Extract mines doc for entities and relations and persists them. Chunk
// failures are skipped; the call fails only when the document is too short
// or persistence fails. A persistence failure leaves the document's
// extraction marker unset, so a retry re-does the whole document.
func (e *Extractor) Extract(ctx context.Context, doc *common.Document) (*Result, error) {
	if len([]rune(doc.Content)) < e.minContentLength {
		return nil, fmt.Errorf("document %s content too short for extraction (minimum %d characters)", doc.ID, e.minContentLength)
	}

	chunks := splitContent(doc.Content, e.maxChunkSize, e.chunkOverlap)

	results := make([]*chunkResult, len(chunks))
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelChunks)
	for i, c := range chunks {
		g.Go(func() error {
			res := e.extractFromChunk(gCtx, doc.ID, c)
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return gCtx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := mergeChunkResults(results)

	entitiesSaved, relationsSaved, err := e.store.SaveExtraction(ctx, store.ExtractionBatch{
		DocumentID: doc.ID,
		OwnerID:    doc.OwnerID,
		Entities:   merged.entities,
		Relations:  merged.relations,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist extraction for document %s: %w", doc.ID, err)
	}

	logger.Info("graph extraction complete",
		"document", doc.ID,
		"chunks", len(chunks),
		"entities", entitiesSaved,
		"relations", relationsSaved,
	)
	return &Result{
		EntitiesSaved:  entitiesSaved,
		RelationsSaved: relationsSaved,
		Entities:       merged.entities,
		Relations:      merged.relations,
	}, nil
}

// extractFromChunk runs the two-phase LLM extraction for one chunk. Any
// failure, from the network up to unparseable structured output, skips the
// chunk instead of failing the document.
func (e *Extractor) extractFromChunk(ctx context.Context, docID string, c chunk) *chunkResult {
	var entityList extractedEntityList
	err := e.ai.GenerateCompletionWithFormat(
		ctx,
		"entity_extraction",
		"Entities found in a text chunk",
		fmt.Sprintf(ai.PromptExtractEntities, c.Text),
		&entityList,
		ai.WithTemperature(0.1),
	)
	if err != nil {
		logger.Warn("skipping chunk, entity extraction failed",
			"document", docID, "offset", c.Start, "error", err)
		return nil
	}

	res := &chunkResult{}
	known := make(map[string]string, len(entityList.Entities))
	for _, ent := range entityList.Entities {
		name := strings.TrimSpace(ent.Name)
		if name == "" {
			continue
		}
		known[util.NormalizeEntityName(name)] = name
		res.entities = append(res.entities, store.EntityObservation{
			Name:        name,
			Type:        common.ParseEntityType(ent.Type),
			Description: strings.TrimSpace(ent.Description),
			Frequency:   1,
			Confidence:  clampUnit(ent.Confidence),
			Snippets:    []string{snippetAround(c.Text, name, snippetRadius)},
		})
	}
	if len(res.entities) < 2 {
		return res
	}

	names := make([]string, 0, len(res.entities))
	for _, obs := range res.entities {
		names = append(names, obs.Name)
	}

	var relationList extractedRelationList
	err = e.ai.GenerateCompletionWithFormat(
		ctx,
		"relation_extraction",
		"Relations between the listed entities",
		fmt.Sprintf(ai.PromptExtractRelations, strings.Join(names, ", "), c.Text),
		&relationList,
		ai.WithTemperature(0.1),
	)
	if err != nil {
		logger.Warn("skipping chunk relations, extraction failed",
			"document", docID, "offset", c.Start, "error", err)
		return res
	}

	for _, rel := range relationList.Relations {
		source, okSource := known[util.NormalizeEntityName(rel.Source)]
		target, okTarget := known[util.NormalizeEntityName(rel.Target)]
		if !okSource || !okTarget || source == target {
			logger.Warn("discarding relation with unknown endpoint",
				"document", docID, "source", rel.Source, "target", rel.Target)
			continue
		}
		if strings.TrimSpace(rel.Relation) == "" {
			continue
		}
		res.relations = append(res.relations, store.RelationObservation{
			Source:      source,
			Target:      target,
			Relation:    strings.TrimSpace(rel.Relation),
			Description: strings.TrimSpace(rel.Description),
			Confidence:  clampUnit(rel.Confidence),
			Context:     strings.TrimSpace(rel.Context),
		})
	}
	return res
}

// mergeChunkResults folds per-chunk observations into one observation per
// normalized entity name: frequency is the observation count, confidence the
// maximum, the latest non-empty description wins and snippets accumulate.
// Relations dedupe on (source, target, relation) with the same max rule.
func mergeChunkResults(results []*chunkResult) *chunkResult {
	merged := &chunkResult{}
	entityIdx := make(map[string]int)
	relationIdx := make(map[string]int)

	for _, res := range results {
		if res == nil {
			continue
		}
		for _, obs := range res.entities {
			norm := util.NormalizeEntityName(obs.Name)
			i, ok := entityIdx[norm]
			if !ok {
				entityIdx[norm] = len(merged.entities)
				merged.entities = append(merged.entities, obs)
				continue
			}
			merged.entities[i].Frequency += obs.Frequency
			if obs.Confidence > merged.entities[i].Confidence {
				merged.entities[i].Confidence = obs.Confidence
			}
			if obs.Description != "" {
				merged.entities[i].Description = obs.Description
			}
			merged.entities[i].Snippets = append(merged.entities[i].Snippets, obs.Snippets...)
		}
		for _, rel := range res.relations {
			key := strings.Join([]string{
				util.NormalizeEntityName(rel.Source),
				util.NormalizeEntityName(rel.Target),
				rel.Relation,
			}, "\x00")
			i, ok := relationIdx[key]
			if !ok {
				relationIdx[key] = len(merged.relations)
				merged.relations = append(merged.relations, rel)
				continue
			}
			if rel.Confidence > merged.relations[i].Confidence {
				merged.relations[i].Confidence = rel.Confidence
			}
			if rel.Description != "" {
				merged.relations[i].Description = rel.Description
			}
		}
	}
	return merged
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
