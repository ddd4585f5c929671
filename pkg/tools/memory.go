package tools

import (
	"context"

	"github.com/sipeed/hybridmem/pkg/assembler"
	"github.com/sipeed/hybridmem/pkg/graph"
	"github.com/sipeed/hybridmem/pkg/session"
)

// MemoryContextTool assembles graph and working memory context for a query.
type MemoryContextTool struct {
	graph        *graph.Store
	sessions     *session.SessionManager
	injectBudget int
}

func NewMemoryContextTool(g *graph.Store, sessions *session.SessionManager, injectBudget int) *MemoryContextTool {
	return &MemoryContextTool{graph: g, sessions: sessions, injectBudget: injectBudget}
}

func (t *MemoryContextTool) Name() string {
	return "memory_context"
}

func (t *MemoryContextTool) Description() string {
	return "Build the context block for a question: mentioned graph entities with their relationships, plus recent session working memory."
}

func (t *MemoryContextTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "The user question",
			},
			"format": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"text", "json"},
				"description": "Output format (default text)",
			},
		},
		"required": []string{"query"},
	}
}

func (t *MemoryContextTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	query := stringArg(args, "query")
	if query == "" {
		return "Error: 'query' parameter is required.", nil
	}

	a := assembler.New(t.graph, t.sessions.Store(SessionKeyFrom(ctx)), t.injectBudget)
	out := a.Build(ctx, query)
	if stringArg(args, "format") == "json" {
		return toJSON(out)
	}
	if s := out.String(); s != "" {
		return s, nil
	}
	return "No memory context for this query.", nil
}

// RegistryOptions tunes the default tool set.
type RegistryOptions struct {
	RecordsPath  string
	InjectBudget int
}

// NewMemoryRegistry registers every graph, scratchpad and context tool.
func NewMemoryRegistry(g *graph.Store, sessions *session.SessionManager, opts RegistryOptions) *ToolRegistry {
	r := NewToolRegistry()

	r.Register(NewGraphEntityTool(g))
	r.Register(NewGraphAddEntityTool(g))
	r.Register(NewGraphAddRelationshipTool(g))
	r.Register(NewGraphNeighborsTool(g))
	r.Register(NewGraphPathTool(g))
	r.Register(NewGraphSearchTool(g))
	r.Register(NewGraphStatsTool(g))
	r.Register(NewGraphIndexTool(g, opts.RecordsPath))

	r.Register(NewScratchpadWriteTool(sessions))
	r.Register(NewScratchpadReadTool(sessions))
	r.Register(NewScratchpadClearTool(sessions))
	r.Register(NewScratchpadStatsTool(sessions))
	r.Register(NewScratchpadContextTool(sessions))

	r.Register(NewMemoryContextTool(g, sessions, opts.InjectBudget))
	return r
}
