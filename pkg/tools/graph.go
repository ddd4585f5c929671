package tools

import (
	"context"
	"fmt"

	"github.com/sipeed/hybridmem/pkg/graph"
)

const maxWalkNodes = 50

// GraphEntityTool looks up one entity with its edges.
type GraphEntityTool struct {
	store *graph.Store
}

func NewGraphEntityTool(store *graph.Store) *GraphEntityTool {
	return &GraphEntityTool{store: store}
}

func (t *GraphEntityTool) Name() string {
	return "graph_entity"
}

func (t *GraphEntityTool) Description() string {
	return "Get a knowledge graph entity by id (e.g. 'WRN-00001', 'model:WC-100', 'component:hydraulic_system') with its outgoing and incoming relationships."
}

func (t *GraphEntityTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id": map[string]interface{}{
				"type":        "string",
				"description": "Entity id",
			},
			"predicate": map[string]interface{}{
				"type":        "string",
				"description": "Only include relationships with this predicate",
			},
		},
		"required": []string{"id"},
	}
}

func (t *GraphEntityTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	id := stringArg(args, "id")
	if id == "" {
		return "Error: 'id' parameter is required.", nil
	}
	predicate := stringArg(args, "predicate")

	e := t.store.GetEntity(ctx, id)
	if e == nil {
		return fmt.Sprintf("Entity '%s' not found.", id), nil
	}
	return toJSON(map[string]interface{}{
		"entity":   e,
		"outgoing": nonNil(t.store.GetRelated(ctx, id, predicate)),
		"incoming": nonNil(t.store.GetSubjects(ctx, id, predicate)),
	})
}

// GraphAddEntityTool upserts an entity.
type GraphAddEntityTool struct {
	store *graph.Store
}

func NewGraphAddEntityTool(store *graph.Store) *GraphAddEntityTool {
	return &GraphAddEntityTool{store: store}
}

func (t *GraphAddEntityTool) Name() string {
	return "graph_add_entity"
}

func (t *GraphAddEntityTool) Description() string {
	return "Create or update a knowledge graph entity. An existing entity with the same id is overwritten."
}

func (t *GraphAddEntityTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id":          map[string]interface{}{"type": "string", "description": "Entity id"},
			"entity_type": map[string]interface{}{"type": "string", "description": "Entity type, e.g. schematic, component, model"},
			"name":        map[string]interface{}{"type": "string", "description": "Display name"},
			"metadata":    map[string]interface{}{"type": "object", "description": "Arbitrary key/value attributes"},
		},
		"required": []string{"id", "entity_type", "name"},
	}
}

func (t *GraphAddEntityTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	e := graph.Entity{
		ID:         stringArg(args, "id"),
		EntityType: stringArg(args, "entity_type"),
		Name:       stringArg(args, "name"),
		Metadata:   mapArg(args, "metadata"),
	}
	if e.ID == "" || e.EntityType == "" {
		return "Error: 'id' and 'entity_type' parameters are required.", nil
	}
	if e.Name == "" {
		e.Name = e.ID
	}
	return toJSON(map[string]interface{}{
		"success": t.store.AddEntity(ctx, e),
		"entity":  e,
	})
}

// GraphAddRelationshipTool inserts a triplet.
type GraphAddRelationshipTool struct {
	store *graph.Store
}

func NewGraphAddRelationshipTool(store *graph.Store) *GraphAddRelationshipTool {
	return &GraphAddRelationshipTool{store: store}
}

func (t *GraphAddRelationshipTool) Name() string {
	return "graph_add_relationship"
}

func (t *GraphAddRelationshipTool) Description() string {
	return "Add a directed relationship (subject, predicate, object). Duplicates are ignored; unknown endpoints are created as placeholder entities of type 'unknown'."
}

func (t *GraphAddRelationshipTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"subject":   map[string]interface{}{"type": "string", "description": "Source entity id"},
			"predicate": map[string]interface{}{"type": "string", "description": "Relationship label, e.g. depends_on, contains"},
			"object":    map[string]interface{}{"type": "string", "description": "Target entity id"},
			"metadata":  map[string]interface{}{"type": "object", "description": "Arbitrary key/value attributes"},
		},
		"required": []string{"subject", "predicate", "object"},
	}
}

func (t *GraphAddRelationshipTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	r := graph.Relationship{
		Subject:   stringArg(args, "subject"),
		Predicate: stringArg(args, "predicate"),
		Object:    stringArg(args, "object"),
		Metadata:  mapArg(args, "metadata"),
	}
	if r.Subject == "" || r.Predicate == "" || r.Object == "" {
		return "Error: 'subject', 'predicate' and 'object' parameters are required.", nil
	}
	created := t.store.AddRelationship(ctx, r)
	msg := "Relationship added"
	if !created {
		msg = "Relationship already exists"
	}
	return toJSON(map[string]interface{}{
		"success": created,
		"message": msg,
	})
}

// GraphNeighborsTool lists adjacent entities, or a multi-hop neighborhood.
type GraphNeighborsTool struct {
	store *graph.Store
}

func NewGraphNeighborsTool(store *graph.Store) *GraphNeighborsTool {
	return &GraphNeighborsTool{store: store}
}

func (t *GraphNeighborsTool) Name() string {
	return "graph_neighbors"
}

func (t *GraphNeighborsTool) Description() string {
	return "List entities connected to an entity. 'direction' is outgoing, incoming or both (default). With hops > 1 the undirected neighborhood up to that distance is returned."
}

func (t *GraphNeighborsTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id": map[string]interface{}{
				"type":        "string",
				"description": "Entity id",
			},
			"direction": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"outgoing", "incoming", "both"},
				"description": "Edge direction to follow (default both)",
			},
			"hops": map[string]interface{}{
				"type":        "number",
				"description": "Neighborhood radius (default 1, max 3)",
			},
		},
		"required": []string{"id"},
	}
}

func (t *GraphNeighborsTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	id := stringArg(args, "id")
	if id == "" {
		return "Error: 'id' parameter is required.", nil
	}

	hops := intArg(args, "hops", 1)
	if hops > 3 {
		hops = 3
	}
	if hops > 1 {
		nodes := t.store.Walk(ctx, []string{id}, hops, maxWalkNodes)
		if len(nodes) == 0 {
			return fmt.Sprintf("Entity '%s' not found.", id), nil
		}
		return toJSON(map[string]interface{}{
			"id":    id,
			"hops":  hops,
			"nodes": nodes,
		})
	}

	dir := graph.ParseDirection(stringArg(args, "direction"))
	neighbors := t.store.GetNeighbors(ctx, id, dir)
	return toJSON(map[string]interface{}{
		"id":        id,
		"direction": dir,
		"neighbors": nonNil(neighbors),
		"count":     len(neighbors),
	})
}

// GraphPathTool finds the fewest-hop connection between two entities.
type GraphPathTool struct {
	store *graph.Store
}

func NewGraphPathTool(store *graph.Store) *GraphPathTool {
	return &GraphPathTool{store: store}
}

func (t *GraphPathTool) Name() string {
	return "graph_path"
}

func (t *GraphPathTool) Description() string {
	return "Find the shortest path between two entities, ignoring edge direction."
}

func (t *GraphPathTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"source": map[string]interface{}{"type": "string", "description": "Start entity id"},
			"target": map[string]interface{}{"type": "string", "description": "End entity id"},
		},
		"required": []string{"source", "target"},
	}
}

func (t *GraphPathTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	source, target := stringArg(args, "source"), stringArg(args, "target")
	if source == "" || target == "" {
		return "Error: 'source' and 'target' parameters are required.", nil
	}

	path := t.store.ShortestPath(ctx, source, target)
	if path == nil {
		return toJSON(map[string]interface{}{
			"found":   false,
			"message": fmt.Sprintf("No path between '%s' and '%s'", source, target),
		})
	}
	return toJSON(map[string]interface{}{
		"found": true,
		"path":  path,
		"hops":  len(path) - 1,
	})
}

// GraphSearchTool finds entities by name or id substring, or by type.
type GraphSearchTool struct {
	store *graph.Store
}

func NewGraphSearchTool(store *graph.Store) *GraphSearchTool {
	return &GraphSearchTool{store: store}
}

func (t *GraphSearchTool) Name() string {
	return "graph_search"
}

func (t *GraphSearchTool) Description() string {
	return "Search entities by case-insensitive substring of id or name. Give 'entity_type' to restrict results, or alone to list every entity of that type."
}

func (t *GraphSearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Text to look for in entity ids and names",
			},
			"entity_type": map[string]interface{}{
				"type":        "string",
				"description": "Restrict to this entity type",
			},
			"limit": map[string]interface{}{
				"type":        "number",
				"description": "Maximum number of results (default 20)",
			},
		},
	}
}

func (t *GraphSearchTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	query := stringArg(args, "query")
	entityType := stringArg(args, "entity_type")
	if query == "" && entityType == "" {
		return "Error: 'query' or 'entity_type' parameter is required.", nil
	}
	limit := intArg(args, "limit", 20)

	var found []graph.Entity
	if query == "" {
		found = t.store.QueryByEntityType(ctx, entityType)
	} else {
		for _, e := range t.store.SearchEntities(ctx, query) {
			if entityType == "" || e.EntityType == entityType {
				found = append(found, e)
			}
		}
	}
	total := len(found)
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	return toJSON(map[string]interface{}{
		"entities": nonNil(found),
		"total":    total,
	})
}

// GraphStatsTool reports entity and relationship counts.
type GraphStatsTool struct {
	store *graph.Store
}

func NewGraphStatsTool(store *graph.Store) *GraphStatsTool {
	return &GraphStatsTool{store: store}
}

func (t *GraphStatsTool) Name() string {
	return "graph_stats"
}

func (t *GraphStatsTool) Description() string {
	return "Knowledge graph statistics: entity and relationship counts grouped by type and predicate."
}

func (t *GraphStatsTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (t *GraphStatsTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	return toJSON(t.store.Stats(ctx))
}

// GraphIndexTool loads schematic records from a JSON file and indexes them.
type GraphIndexTool struct {
	store       *graph.Store
	defaultPath string
}

func NewGraphIndexTool(store *graph.Store, defaultPath string) *GraphIndexTool {
	return &GraphIndexTool{store: store, defaultPath: defaultPath}
}

func (t *GraphIndexTool) Name() string {
	return "graph_index"
}

func (t *GraphIndexTool) Description() string {
	return "Index schematic records from a JSON file into the knowledge graph. Safe to repeat; existing entities and relationships are not duplicated."
}

func (t *GraphIndexTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Records file (defaults to the configured records path)",
			},
		},
	}
}

func (t *GraphIndexTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path := stringArg(args, "path")
	if path == "" {
		path = t.defaultPath
	}
	if path == "" {
		return "Error: no records path given and none configured.", nil
	}

	records, err := graph.LoadSchematics(path)
	if err != nil {
		return fmt.Sprintf("Error: %v", err), nil
	}
	res := t.store.IndexSchematics(ctx, records)
	return toJSON(map[string]interface{}{
		"records": len(records),
		"result":  res,
	})
}

// nonNil keeps empty results encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
