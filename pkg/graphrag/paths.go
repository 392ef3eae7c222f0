package graphrag

import "github.com/knosphere/backend/pkg/common"

// findPaths computes shortest undirected paths, bounded to maxPathLength
// edges, between each pair of the first maxPathEntities entities. The
// candidate set is capped upstream, so this stays a small in-memory
// traversal rather than a graph-database query.
func findPaths(entities []common.Entity, edges []common.GraphEdge) [][]string {
	if len(entities) < 2 || len(edges) == 0 {
		return nil
	}

	limit := len(entities)
	if limit > maxPathEntities {
		limit = maxPathEntities
	}

	nameByID := make(map[string]string, len(entities))
	for _, entity := range entities {
		nameByID[entity.ID] = entity.Name
	}

	adjacency := make(map[string][]string)
	for _, edge := range edges {
		adjacency[edge.SourceID] = append(adjacency[edge.SourceID], edge.TargetID)
		adjacency[edge.TargetID] = append(adjacency[edge.TargetID], edge.SourceID)
	}

	paths := make([][]string, 0)
	for i := 0; i < limit; i++ {
		for j := i + 1; j < limit; j++ {
			ids := shortestPath(adjacency, entities[i].ID, entities[j].ID, maxPathLength)
			if ids == nil {
				continue
			}
			names := make([]string, len(ids))
			for k, id := range ids {
				names[k] = nameByID[id]
			}
			paths = append(paths, names)
		}
	}
	return paths
}

// shortestPath is a breadth-first search from source to target returning the
// node sequence, or nil when no path of at most maxEdges edges exists.
func shortestPath(adjacency map[string][]string, source, target string, maxEdges int) []string {
	if source == target {
		return []string{source}
	}

	parent := map[string]string{source: ""}
	frontier := []string{source}

	for depth := 0; depth < maxEdges && len(frontier) > 0; depth++ {
		next := make([]string, 0)
		for _, node := range frontier {
			for _, neighbor := range adjacency[node] {
				if _, seen := parent[neighbor]; seen {
					continue
				}
				parent[neighbor] = node
				if neighbor == target {
					return reconstructPath(parent, source, target)
				}
				next = append(next, neighbor)
			}
		}
		frontier = next
	}
	return nil
}

func reconstructPath(parent map[string]string, source, target string) []string {
	path := []string{target}
	for node := target; node != source; node = parent[node] {
		path = append(path, parent[node])
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
