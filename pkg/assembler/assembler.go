// Package assembler turns a query into the graph and working-memory
// context that a retrieval pipeline prepends to its prompt.
package assembler

import (
	"context"
	"fmt"
	"strings"

	"github.com/sipeed/hybridmem/pkg/graph"
	"github.com/sipeed/hybridmem/pkg/logger"
	"github.com/sipeed/hybridmem/pkg/scratchpad"
)

const (
	maxSeedEntities   = 5
	maxRelationLines  = 3
	maxSearchFallback = 3
)

// GraphReader is the read side of the graph store.
type GraphReader interface {
	GetEntity(ctx context.Context, id string) *graph.Entity
	GetNeighbors(ctx context.Context, id string, dir graph.Direction) []string
	GetRelated(ctx context.Context, subject, predicate string) []graph.Relationship
	GetSubjects(ctx context.Context, object, predicate string) []graph.Relationship
	SearchEntities(ctx context.Context, query string) []graph.Entity
}

// Memory is the scratchpad surface the assembler reads and writes.
type Memory interface {
	ContextForInjection(budget int, queryContext string) ([]string, int)
	Write(ctx context.Context, req scratchpad.WriteRequest) scratchpad.WriteResult
}

// Context is the assembled prompt context for one query.
type Context struct {
	Intent           Intent   `json:"intent"`
	Entities         []string `json:"entities,omitempty"`
	GraphLines       []string `json:"graph_context"`
	ScratchpadLines  []string `json:"scratchpad_context"`
	ScratchpadTokens int      `json:"scratchpad_token_count"`
}

// String renders the sections the way they are placed ahead of search
// results: session memory first, then graph context.
func (c Context) String() string {
	var sb strings.Builder
	if len(c.ScratchpadLines) > 0 {
		sb.WriteString("=== Session Memory (Scratchpad) ===\n")
		for _, l := range c.ScratchpadLines {
			sb.WriteString(l)
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}
	if len(c.GraphLines) > 0 {
		sb.WriteString("=== Knowledge Graph Context ===\n")
		for _, l := range c.GraphLines {
			sb.WriteString(l)
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

type Assembler struct {
	graph        GraphReader
	memory       Memory
	injectBudget int
}

// New returns an assembler. Either store may be nil; its section is then
// left empty. injectBudget <= 0 defers to the scratchpad's own budget.
func New(g GraphReader, m Memory, injectBudget int) *Assembler {
	return &Assembler{graph: g, memory: m, injectBudget: injectBudget}
}

// GraphContext describes up to five entities mentioned in query with a few
// of their relationships. When nothing is mentioned it falls back to a
// name search.
func (a *Assembler) GraphContext(ctx context.Context, query string) []string {
	if a.graph == nil {
		return nil
	}

	mentioned := ExtractEntities(query)
	seeds := mentioned
	if len(seeds) > maxSeedEntities {
		seeds = seeds[:maxSeedEntities]
	}

	var lines []string
	for _, id := range seeds {
		if ctx.Err() != nil {
			break
		}
		if e := a.graph.GetEntity(ctx, id); e != nil {
			lines = append(lines, fmt.Sprintf("Entity: %s (%s)", e.Name, e.EntityType))
		}
		if len(a.graph.GetNeighbors(ctx, id, graph.Both)) == 0 {
			continue
		}
		for _, r := range limit(a.graph.GetRelated(ctx, id, ""), maxRelationLines) {
			lines = append(lines, fmt.Sprintf("  -> %s -> %s", r.Predicate, a.displayName(ctx, r.Object)))
		}
		for _, r := range limit(a.graph.GetSubjects(ctx, id, ""), maxRelationLines) {
			lines = append(lines, fmt.Sprintf("  <- %s <- %s", r.Predicate, a.displayName(ctx, r.Subject)))
		}
	}

	if len(mentioned) == 0 {
		found := a.graph.SearchEntities(ctx, query)
		if len(found) > maxSearchFallback {
			found = found[:maxSearchFallback]
		}
		for _, e := range found {
			lines = append(lines, fmt.Sprintf("Related: %s (%s)", e.Name, e.EntityType))
		}
	}
	return lines
}

func (a *Assembler) displayName(ctx context.Context, id string) string {
	if e := a.graph.GetEntity(ctx, id); e != nil {
		return e.Name
	}
	return id
}

func limit(rels []graph.Relationship, n int) []graph.Relationship {
	if len(rels) > n {
		return rels[:n]
	}
	return rels
}

// Build classifies query and gathers both context sections.
func (a *Assembler) Build(ctx context.Context, query string) Context {
	out := Context{
		Intent:   ClassifyIntent(query),
		Entities: ExtractEntities(query),
	}
	if out.Intent.UsesGraph() {
		out.GraphLines = a.GraphContext(ctx, query)
	}
	if a.memory != nil {
		out.ScratchpadLines, out.ScratchpadTokens = a.memory.ContextForInjection(a.injectBudget, query)
	}

	logger.DebugCF("assembler", "Context assembled", map[string]interface{}{
		"intent":            string(out.Intent),
		"entities":          len(out.Entities),
		"graph_lines":       len(out.GraphLines),
		"scratchpad_lines":  len(out.ScratchpadLines),
		"scratchpad_tokens": out.ScratchpadTokens,
	})
	return out
}

// Record writes a finding back into working memory, minimized.
func (a *Assembler) Record(ctx context.Context, subject, predicate, object, content string) scratchpad.WriteResult {
	if a.memory == nil {
		return scratchpad.WriteResult{Message: "No working memory configured"}
	}
	return a.memory.Write(ctx, scratchpad.WriteRequest{
		Subject:   subject,
		Predicate: predicate,
		Object:    object,
		Content:   content,
		Minimize:  true,
	})
}
