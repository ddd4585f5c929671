package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/hybridmem/pkg/graph"
	"github.com/sipeed/hybridmem/pkg/session"
)

func newTestRegistry(t *testing.T) (*ToolRegistry, *graph.Store, *session.SessionManager, string) {
	t.Helper()
	dir := t.TempDir()
	g, err := graph.Open(filepath.Join(dir, "knowledge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })

	records := filepath.Join(dir, "schematics.json")
	data := `[
		{"id": "WRN-1", "model": "WC-100", "name": "Atlas", "component": "Hydraulic arm",
		 "summary": "hydraulic actuator", "category": "actuators", "status": "active", "tags": ["heavy-duty"]},
		{"id": "WRN-2", "model": "WC-100", "name": "Atlas", "component": "Battery pack",
		 "category": "power", "status": "draft"}
	]`
	require.NoError(t, os.WriteFile(records, []byte(data), 0644))

	sm := session.NewSessionManager(nil)
	r := NewMemoryRegistry(g, sm, RegistryOptions{RecordsPath: records})
	return r, g, sm, records
}

func run(t *testing.T, r *ToolRegistry, name string, args map[string]interface{}) string {
	t.Helper()
	out, err := r.Execute(context.Background(), name, args)
	require.NoError(t, err)
	return out
}

func decode(t *testing.T, s string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(s), &m), s)
	return m
}

func TestRegistryListsTools(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)
	want := []string{
		"graph_add_entity", "graph_add_relationship", "graph_entity", "graph_index",
		"graph_neighbors", "graph_path", "graph_search", "graph_stats",
		"memory_context",
		"scratchpad_clear", "scratchpad_context", "scratchpad_read", "scratchpad_stats", "scratchpad_write",
	}
	assert.Equal(t, want, r.List())
	assert.Equal(t, len(want), r.Count())
	assert.Len(t, r.GetDefinitions(), len(want))
	assert.Len(t, r.Tools(), len(want))
	assert.Contains(t, r.GetSummaries(), "- `graph_stats` - "+NewGraphStatsTool(nil).Description())
}

func TestRegistryUnknownTool(t *testing.T) {
	r := NewToolRegistry()
	_, err := r.Execute(context.Background(), "nope", nil)
	assert.EqualError(t, err, "tool 'nope' not found")
}

func TestGraphIndexAndQueryTools(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)

	res := decode(t, run(t, r, "graph_index", nil))
	assert.EqualValues(t, 2, res["records"])
	result := res["result"].(map[string]interface{})
	assert.Positive(t, result["entities_added"])

	ent := decode(t, run(t, r, "graph_entity", map[string]interface{}{"id": "WRN-1"}))
	assert.Equal(t, "schematic", ent["entity"].(map[string]interface{})["entity_type"])
	assert.NotEmpty(t, ent["outgoing"])
	assert.Len(t, ent["incoming"], 1)

	filtered := decode(t, run(t, r, "graph_entity", map[string]interface{}{"id": "WRN-1", "predicate": "has_tag"}))
	assert.Len(t, filtered["outgoing"], 1)
	assert.Empty(t, filtered["incoming"])

	assert.Equal(t, "Entity 'WRN-9' not found.", run(t, r, "graph_entity", map[string]interface{}{"id": "WRN-9"}))
	assert.Contains(t, run(t, r, "graph_entity", nil), "Error:")

	nb := decode(t, run(t, r, "graph_neighbors", map[string]interface{}{"id": "status:draft", "direction": "incoming"}))
	assert.Equal(t, []interface{}{"WRN-2"}, nb["neighbors"])
	assert.EqualValues(t, 1, nb["count"])

	walk := decode(t, run(t, r, "graph_neighbors", map[string]interface{}{"id": "tag:heavy-duty", "hops": float64(2)}))
	nodes := walk["nodes"].([]interface{})
	assert.Greater(t, len(nodes), 2)
	first := nodes[0].(map[string]interface{})
	assert.EqualValues(t, 0, first["depth"])

	path := decode(t, run(t, r, "graph_path", map[string]interface{}{"source": "tag:heavy-duty", "target": "status:draft"}))
	assert.Equal(t, true, path["found"])
	assert.Equal(t, []interface{}{"tag:heavy-duty", "WRN-1", "WRN-2", "status:draft"}, path["path"])
	assert.EqualValues(t, 3, path["hops"])

	none := decode(t, run(t, r, "graph_path", map[string]interface{}{"source": "WRN-1", "target": "WRN-404"}))
	assert.Equal(t, false, none["found"])

	search := decode(t, run(t, r, "graph_search", map[string]interface{}{"query": "ATLAS"}))
	assert.EqualValues(t, 2, search["total"])

	limited := decode(t, run(t, r, "graph_search", map[string]interface{}{"query": "atlas", "limit": float64(1)}))
	assert.EqualValues(t, 2, limited["total"])
	assert.Len(t, limited["entities"], 1)

	byType := decode(t, run(t, r, "graph_search", map[string]interface{}{"entity_type": "status"}))
	assert.EqualValues(t, 2, byType["total"])

	stats := decode(t, run(t, r, "graph_stats", nil))
	assert.Positive(t, stats["entity_count"])
	assert.Positive(t, stats["relationship_count"])
}

func TestGraphIndexToolBadPath(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)
	out := run(t, r, "graph_index", map[string]interface{}{"path": "/does/not/exist.json"})
	assert.True(t, strings.HasPrefix(out, "Error: read schematics"), out)
}

func TestGraphAddTools(t *testing.T) {
	r, g, _, _ := newTestRegistry(t)

	out := decode(t, run(t, r, "graph_add_entity", map[string]interface{}{
		"id": "robot:a", "entity_type": "robot", "name": "A",
		"metadata": map[string]interface{}{"site": "lab"},
	}))
	assert.Equal(t, true, out["success"])

	rel := decode(t, run(t, r, "graph_add_relationship", map[string]interface{}{
		"subject": "robot:a", "predicate": "depends_on", "object": "psu:b",
	}))
	assert.Equal(t, true, rel["success"])

	again := decode(t, run(t, r, "graph_add_relationship", map[string]interface{}{
		"subject": "robot:a", "predicate": "depends_on", "object": "psu:b",
	}))
	assert.Equal(t, false, again["success"])
	assert.Equal(t, "Relationship already exists", again["message"])

	ph := g.GetEntity(context.Background(), "psu:b")
	require.NotNil(t, ph)
	assert.Equal(t, graph.TypeUnknown, ph.EntityType)

	assert.Contains(t, run(t, r, "graph_add_relationship", map[string]interface{}{"subject": "x"}), "Error:")
}

func TestScratchpadToolsAreSessionScoped(t *testing.T) {
	r, _, sm, _ := newTestRegistry(t)
	ctx := context.Background()

	out, err := r.ExecuteWithContext(ctx, "scratchpad_write", map[string]interface{}{
		"subject": "WRN-1", "predicate": "observed", "object": "hydraulic_system",
		"content": "seal leaking", "minimize": false,
	}, "mcp:alice")
	require.NoError(t, err)
	w := decode(t, out)
	assert.Equal(t, true, w["success"])

	out, err = r.ExecuteWithContext(ctx, "scratchpad_read", nil, "mcp:bob")
	require.NoError(t, err)
	assert.EqualValues(t, 0, decode(t, out)["total"])
	assert.Equal(t, []interface{}{}, decode(t, out)["entries"])

	out, err = r.ExecuteWithContext(ctx, "scratchpad_read", map[string]interface{}{"subject": "WRN-1"}, "mcp:alice")
	require.NoError(t, err)
	assert.EqualValues(t, 1, decode(t, out)["total"])

	assert.Equal(t, []string{"mcp:alice", "mcp:bob"}, sm.ListSessionKeys())
}

func TestScratchpadToolsFlow(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)

	bad := decode(t, run(t, r, "scratchpad_write", map[string]interface{}{
		"subject": "A", "predicate": "guessed", "object": "B", "content": "x",
	}))
	assert.Equal(t, false, bad["success"])
	assert.Contains(t, bad["message"], "Invalid predicate")

	run(t, r, "scratchpad_write", map[string]interface{}{
		"subject": "A", "predicate": "observed", "object": "B", "content": "first note",
	})
	run(t, r, "scratchpad_write", map[string]interface{}{
		"subject": "C", "predicate": "inferred", "object": "D", "content": "second note",
	})

	stats := decode(t, run(t, r, "scratchpad_stats", nil))
	assert.EqualValues(t, 2, stats["entry_count"])

	ctxOut := decode(t, run(t, r, "scratchpad_context", map[string]interface{}{"token_budget": float64(100)}))
	assert.Equal(t, []interface{}{"[inferred] C -> D: second note", "[observed] A -> B: first note"}, ctxOut["lines"])

	noFilter := decode(t, run(t, r, "scratchpad_clear", nil))
	assert.EqualValues(t, 0, noFilter["cleared_count"])

	cleared := decode(t, run(t, r, "scratchpad_clear", map[string]interface{}{"subject": "A"}))
	assert.EqualValues(t, 1, cleared["cleared_count"])

	all := decode(t, run(t, r, "scratchpad_clear", map[string]interface{}{"all": true}))
	assert.EqualValues(t, 1, all["cleared_count"])
}

func TestMemoryContextTool(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)
	run(t, r, "graph_index", nil)
	run(t, r, "scratchpad_write", map[string]interface{}{
		"subject": "WRN-1", "predicate": "observed", "object": "seal", "content": "leak found",
	})

	text := run(t, r, "memory_context", map[string]interface{}{"query": "get WRN-1"})
	assert.Contains(t, text, "=== Session Memory (Scratchpad) ===")
	assert.Contains(t, text, "[observed] WRN-1 -> seal: leak found")
	assert.Contains(t, text, "Entity: WC-100 - Atlas: Hydraulic arm (schematic)")

	js := decode(t, run(t, r, "memory_context", map[string]interface{}{"query": "get WRN-1", "format": "json"}))
	assert.Equal(t, "lookup", js["intent"])

	empty, err := r.ExecuteWithContext(context.Background(), "memory_context",
		map[string]interface{}{"query": "how many robots"}, "fresh-session")
	require.NoError(t, err)
	assert.Equal(t, "No memory context for this query.", empty)
}

func TestSessionKeyContext(t *testing.T) {
	assert.Empty(t, SessionKeyFrom(context.Background()))
	assert.Equal(t, "k", SessionKeyFrom(WithSessionKey(context.Background(), "k")))
}

func TestIntArg(t *testing.T) {
	args := map[string]interface{}{"f": float64(3), "i": 4, "n": json.Number("5"), "s": "x"}
	assert.Equal(t, 3, intArg(args, "f", 0))
	assert.Equal(t, 4, intArg(args, "i", 0))
	assert.Equal(t, 5, intArg(args, "n", 0))
	assert.Equal(t, 7, intArg(args, "s", 7))
	assert.Equal(t, 7, intArg(args, "missing", 7))
}
