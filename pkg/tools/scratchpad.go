package tools

import (
	"context"
	"strings"
	"time"

	"github.com/sipeed/hybridmem/pkg/scratchpad"
	"github.com/sipeed/hybridmem/pkg/session"
)

// Scratchpad tools act on the working memory of the session carried by
// the call context (see WithSessionKey).

type ScratchpadWriteTool struct {
	sessions *session.SessionManager
}

func NewScratchpadWriteTool(sessions *session.SessionManager) *ScratchpadWriteTool {
	return &ScratchpadWriteTool{sessions: sessions}
}

func (t *ScratchpadWriteTool) Name() string {
	return "scratchpad_write"
}

func (t *ScratchpadWriteTool) Description() string {
	return "Record a short observation in session working memory as (subject, predicate, object, content). " +
		"Predicate must be one of: " + strings.Join(scratchpad.Predicates(), ", ") +
		". Content is minimized by default; oldest entries are evicted when the token budget is full."
}

func (t *ScratchpadWriteTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"subject": map[string]interface{}{
				"type":        "string",
				"description": "What the note is about, e.g. 'WRN-00006'",
			},
			"predicate": map[string]interface{}{
				"type":        "string",
				"enum":        scratchpad.Predicates(),
				"description": "Kind of note",
			},
			"object": map[string]interface{}{
				"type":        "string",
				"description": "Related target, e.g. 'thermal_system'",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "The observation text",
			},
			"minimize": map[string]interface{}{
				"type":        "boolean",
				"description": "Compress content before storing (default true)",
			},
			"metadata": map[string]interface{}{
				"type":        "object",
				"description": "Extra attributes kept with the entry",
			},
		},
		"required": []string{"subject", "predicate", "object", "content"},
	}
}

func (t *ScratchpadWriteTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	req := scratchpad.WriteRequest{
		Subject:   stringArg(args, "subject"),
		Predicate: stringArg(args, "predicate"),
		Object:    stringArg(args, "object"),
		Content:   stringArg(args, "content"),
		Minimize:  boolArg(args, "minimize", true),
		Metadata:  mapArg(args, "metadata"),
	}
	if req.Subject == "" || req.Content == "" {
		return "Error: 'subject' and 'content' parameters are required.", nil
	}
	store := t.sessions.Store(SessionKeyFrom(ctx))
	return toJSON(store.Write(ctx, req))
}

type ScratchpadReadTool struct {
	sessions *session.SessionManager
}

func NewScratchpadReadTool(sessions *session.SessionManager) *ScratchpadReadTool {
	return &ScratchpadReadTool{sessions: sessions}
}

func (t *ScratchpadReadTool) Name() string {
	return "scratchpad_read"
}

func (t *ScratchpadReadTool) Description() string {
	return "Read session working memory, newest first, optionally filtered by subject and predicate. With enrich=true each note is expanded into a fuller explanation (cached per entry)."
}

func (t *ScratchpadReadTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"subject": map[string]interface{}{
				"type":        "string",
				"description": "Only entries with this subject",
			},
			"predicate": map[string]interface{}{
				"type":        "string",
				"enum":        scratchpad.Predicates(),
				"description": "Only entries with this predicate",
			},
			"enrich": map[string]interface{}{
				"type":        "boolean",
				"description": "Expand entries with the language model (default false)",
			},
			"query_context": map[string]interface{}{
				"type":        "string",
				"description": "Current question, used to steer enrichment",
			},
		},
	}
}

func (t *ScratchpadReadTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	store := t.sessions.Store(SessionKeyFrom(ctx))
	res := store.Read(ctx, scratchpad.ReadRequest{
		Subject:      stringArg(args, "subject"),
		Predicate:    stringArg(args, "predicate"),
		Enrich:       boolArg(args, "enrich", false),
		QueryContext: stringArg(args, "query_context"),
	})
	res.Entries = nonNil(res.Entries)
	return toJSON(res)
}

type ScratchpadClearTool struct {
	sessions *session.SessionManager
}

func NewScratchpadClearTool(sessions *session.SessionManager) *ScratchpadClearTool {
	return &ScratchpadClearTool{sessions: sessions}
}

func (t *ScratchpadClearTool) Name() string {
	return "scratchpad_clear"
}

func (t *ScratchpadClearTool) Description() string {
	return "Remove working memory entries for a subject and/or older than a number of minutes. Clearing everything requires all=true."
}

func (t *ScratchpadClearTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"subject": map[string]interface{}{
				"type":        "string",
				"description": "Remove entries with this subject",
			},
			"older_than_minutes": map[string]interface{}{
				"type":        "number",
				"description": "Remove entries created more than this many minutes ago",
			},
			"all": map[string]interface{}{
				"type":        "boolean",
				"description": "Remove every entry in this session",
			},
		},
	}
}

func (t *ScratchpadClearTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	store := t.sessions.Store(SessionKeyFrom(ctx))
	return toJSON(store.Clear(scratchpad.ClearRequest{
		Subject:   stringArg(args, "subject"),
		OlderThan: time.Duration(intArg(args, "older_than_minutes", 0)) * time.Minute,
		All:       boolArg(args, "all", false),
	}))
}

type ScratchpadStatsTool struct {
	sessions *session.SessionManager
}

func NewScratchpadStatsTool(sessions *session.SessionManager) *ScratchpadStatsTool {
	return &ScratchpadStatsTool{sessions: sessions}
}

func (t *ScratchpadStatsTool) Name() string {
	return "scratchpad_stats"
}

func (t *ScratchpadStatsTool) Description() string {
	return "Working memory statistics: entry count, token budget usage and savings from minimization."
}

func (t *ScratchpadStatsTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (t *ScratchpadStatsTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	return toJSON(t.sessions.Store(SessionKeyFrom(ctx)).Stats())
}

type ScratchpadContextTool struct {
	sessions *session.SessionManager
}

func NewScratchpadContextTool(sessions *session.SessionManager) *ScratchpadContextTool {
	return &ScratchpadContextTool{sessions: sessions}
}

func (t *ScratchpadContextTool) Name() string {
	return "scratchpad_context"
}

func (t *ScratchpadContextTool) Description() string {
	return "Render recent working memory as prompt lines ('[predicate] subject -> object: content'), newest first, within a token budget."
}

func (t *ScratchpadContextTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"token_budget": map[string]interface{}{
				"type":        "number",
				"description": "Maximum tokens of context (defaults to the configured inject budget)",
			},
			"query_context": map[string]interface{}{
				"type":        "string",
				"description": "Current question",
			},
		},
	}
}

func (t *ScratchpadContextTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	store := t.sessions.Store(SessionKeyFrom(ctx))
	lines, total := store.ContextForInjection(intArg(args, "token_budget", 0), stringArg(args, "query_context"))
	return toJSON(map[string]interface{}{
		"lines":       nonNil(lines),
		"token_count": total,
	})
}
