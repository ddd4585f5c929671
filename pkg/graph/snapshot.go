package graph

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ExportSnapshot writes a readable markdown dump of the graph: entities
// grouped by type, then every triple. An empty graph writes nothing.
func (s *Store) ExportSnapshot(ctx context.Context, path string) error {
	ents := s.Entities(ctx)
	rels := s.Relationships(ctx)
	if len(ents) == 0 && len(rels) == 0 {
		return nil
	}

	byType := make(map[string][]Entity)
	for _, e := range ents {
		byType[e.EntityType] = append(byType[e.EntityType], e)
	}
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	var sb strings.Builder
	sb.WriteString("# Knowledge Graph Snapshot\n")
	fmt.Fprintf(&sb, "\n%d entities, %d relationships\n", len(ents), len(rels))

	for _, t := range types {
		fmt.Fprintf(&sb, "\n## %s\n\n", t)
		for _, e := range byType[t] {
			fmt.Fprintf(&sb, "- `%s` %s\n", e.ID, e.Name)
		}
	}

	if len(rels) > 0 {
		sb.WriteString("\n## Relationships\n\n")
		for _, r := range rels {
			fmt.Fprintf(&sb, "- `%s` -[%s]-> `%s`\n", r.Subject, r.Predicate, r.Object)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	return os.WriteFile(path, []byte(sb.String()), 0644)
}
