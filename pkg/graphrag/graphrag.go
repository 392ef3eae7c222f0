package graphrag

import (
	"context"
	"fmt"
	"strings"

	"github.com/knosphere/backend/internal/util"
	"github.com/knosphere/backend/pkg/ai"
	"github.com/knosphere/backend/pkg/common"
	"github.com/knosphere/backend/pkg/logger"
	"github.com/knosphere/backend/pkg/store"
)

const (
	baselineTopK      = 10
	baselineFinalK    = 5
	baselineThreshold = 0.3

	maxEntityLookups = 20
	maxPathEntities  = 5
	maxPathLength    = 4
	maxContextDocs   = 3
	docExcerptChars  = 800
)

// Retriever is the document retrieval capability the engine builds on.
type Retriever interface {
	Search(
		ctx context.Context,
		query string,
		principal string,
		topK int,
		finalK int,
		threshold float64,
	) ([]common.ScoredDocument, error)
}

// Engine answers queries with documents plus knowledge-graph context. Graph
// augmentation is best-effort: every graph step degrades to the plain
// document answer instead of failing the query.
type Engine struct {
	retriever Retriever
	ai        ai.Client
	store     store.GraphStore
}

// Params configures an Engine.
type Params struct {
	Retriever Retriever
	AI        ai.Client
	Store     store.GraphStore
}

// NewEngine creates a graph query engine from its collaborators.
func NewEngine(params Params) (*Engine, error) {
	if params.Retriever == nil {
		return nil, fmt.Errorf("graphrag: missing retriever")
	}
	if params.AI == nil {
		return nil, fmt.Errorf("graphrag: missing AI client")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("graphrag: missing graph store")
	}
	return &Engine{
		retriever: params.Retriever,
		ai:        params.AI,
		store:     params.Store,
	}, nil
}

// Subgraph is the slice of the knowledge graph a query touched.
type Subgraph struct {
	Entities []common.Entity    `json:"entities"`
	Edges    []common.GraphEdge `json:"edges"`
}

// QueryResult is a graph-augmented answer with its evidence.
type QueryResult struct {
	Answer        string                  `json:"answer"`
	EntitiesFound []common.Entity         `json:"entities_found"`
	PathsFound    [][]string              `json:"paths_found"`
	Documents     []common.ScoredDocument `json:"documents"`
	Subgraph      Subgraph                `json:"graph_subgraph"`
}

type keyEntityList struct {
	Entities []string `json:"entities" jsonschema_description:"3 to 5 entity names relevant to the question"`
}

// Query answers text for principal using retrieved documents enriched with
// matching entities and the shortest paths between them.
func (e *Engine) Query(ctx context.Context, text string, principal string) (*QueryResult, error) {
	docs, err := e.retriever.Search(ctx, text, principal, baselineTopK, baselineFinalK, baselineThreshold)
	if err != nil {
		return nil, fmt.Errorf("baseline retrieval failed: %w", err)
	}

	result := &QueryResult{Documents: docs}

	names := e.extractKeyEntities(ctx, text, docs)
	if len(names) > 0 {
		entities, err := e.store.FindEntitiesByName(ctx, principal, names, maxEntityLookups)
		if err != nil {
			logger.Warn("entity lookup failed, answering from documents only", "error", err)
		} else {
			result.EntitiesFound = entities
		}
	}

	if len(result.EntitiesFound) > 0 {
		edges, err := e.loadEdges(ctx, principal, result.EntitiesFound)
		if err != nil {
			logger.Warn("edge lookup failed, answering from documents only", "error", err)
		} else {
			result.Subgraph = Subgraph{Entities: result.EntitiesFound, Edges: edges}
			result.PathsFound = findPaths(result.EntitiesFound, edges)
		}
	}

	answer, err := e.generateAnswer(ctx, text, docs, result)
	if err != nil {
		return nil, fmt.Errorf("answer generation failed: %w", err)
	}
	result.Answer = answer
	return result, nil
}

// extractKeyEntities asks the model which entities in the retrieved
// documents matter for the query. Failures and empty output mean no graph
// augmentation, never a failed query.
func (e *Engine) extractKeyEntities(ctx context.Context, query string, docs []common.ScoredDocument) []string {
	if len(docs) == 0 {
		return nil
	}

	var list keyEntityList
	err := e.ai.GenerateCompletionWithFormat(
		ctx,
		"key_entities",
		"Entities relevant to the question",
		fmt.Sprintf(ai.PromptKeyEntities, query, formatDocuments(docs)),
		&list,
		ai.WithTemperature(0.1),
	)
	if err != nil {
		logger.Warn("key entity extraction failed, answering from documents only", "error", err)
		return nil
	}

	names := make([]string, 0, len(list.Entities))
	for _, name := range list.Entities {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}

func (e *Engine) loadEdges(ctx context.Context, principal string, entities []common.Entity) ([]common.GraphEdge, error) {
	ids := make([]string, 0, len(entities))
	for _, entity := range entities {
		ids = append(ids, entity.ID)
	}
	return e.store.GetEdgesAmong(ctx, principal, ids)
}

func (e *Engine) generateAnswer(
	ctx context.Context,
	query string,
	docs []common.ScoredDocument,
	result *QueryResult,
) (string, error) {
	docsText := formatDocuments(docs)
	if docsText == "" {
		docsText = "(no relevant documents found)"
	}

	graphText := formatGraphContext(result)
	if graphText == "" {
		return e.ai.GenerateCompletion(
			ctx,
			fmt.Sprintf(ai.PromptAnswerWithContext, docsText, query),
			ai.WithTemperature(0.3),
		)
	}
	return e.ai.GenerateCompletion(
		ctx,
		fmt.Sprintf(ai.PromptGraphFusionAnswer, docsText, graphText, query),
		ai.WithTemperature(0.3),
	)
}

func formatDocuments(docs []common.ScoredDocument) string {
	if len(docs) == 0 {
		return ""
	}
	limit := len(docs)
	if limit > maxContextDocs {
		limit = maxContextDocs
	}
	parts := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		parts = append(parts, fmt.Sprintf("[%d] %s\n%s",
			i+1, docs[i].Title, util.TruncateRunes(docs[i].Content, docExcerptChars)))
	}
	return strings.Join(parts, "\n\n")
}

// formatGraphContext renders entity descriptions and discovered paths as the
// knowledge-graph section of the fusion prompt.
func formatGraphContext(result *QueryResult) string {
	if len(result.EntitiesFound) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Entities:\n")
	for _, entity := range result.EntitiesFound {
		b.WriteString("- " + entity.Name + " (" + string(entity.Type) + ")")
		if entity.Description != "" {
			b.WriteString(": " + entity.Description)
		}
		b.WriteString("\n")
	}

	if len(result.Subgraph.Edges) > 0 {
		nameByID := make(map[string]string, len(result.EntitiesFound))
		for _, entity := range result.EntitiesFound {
			nameByID[entity.ID] = entity.Name
		}
		b.WriteString("\nRelations:\n")
		for _, edge := range result.Subgraph.Edges {
			b.WriteString(fmt.Sprintf("- %s -[%s]-> %s\n",
				nameByID[edge.SourceID], edge.Relation, nameByID[edge.TargetID]))
		}
	}

	if len(result.PathsFound) > 0 {
		b.WriteString("\nConnections:\n")
		for _, path := range result.PathsFound {
			b.WriteString("- " + strings.Join(path, " -> ") + "\n")
		}
	}
	return b.String()
}
