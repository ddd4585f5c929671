package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/hybridmem/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	c := config.DefaultConfig()
	c.Graph.DBPath = filepath.Join(dir, "knowledge.db")
	c.Indexer.RecordsPath = filepath.Join(dir, "schematics.json")
	data := `[{"id": "WRN-1", "model": "WC-100", "component": "Hydraulic arm", "category": "actuators", "status": "active"},
		{"id": "WRN-2", "model": "WC-100", "component": "Battery pack", "category": "power", "status": "draft"}]`
	require.NoError(t, os.WriteFile(c.Indexer.RecordsPath, []byte(data), 0644))
	return c
}

func TestShellEval(t *testing.T) {
	rt, err := newRuntime(testConfig(t), true)
	require.NoError(t, err)
	defer rt.Close()
	ctx := context.Background()

	out, err := shellEval(ctx, rt.registry, "tools")
	require.NoError(t, err)
	assert.Contains(t, out, "graph_entity")

	_, err = shellEval(ctx, rt.registry, "graph_index")
	require.NoError(t, err)

	out, err = shellEval(ctx, rt.registry, `graph_path {"source": "WRN-1", "target": "WRN-2"}`)
	require.NoError(t, err)
	var path map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &path))
	assert.Equal(t, true, path["found"])

	_, err = shellEval(ctx, rt.registry, `scratchpad_write {"subject": "WRN-1", "predicate": "observed", "object": "seal", "content": "leaking at joint", "minimize": false}`)
	require.NoError(t, err)

	out, err = shellEval(ctx, rt.registry, "context what is wrong with WRN-1")
	require.NoError(t, err)
	assert.Contains(t, out, "=== Session Memory (Scratchpad) ===")
	assert.Contains(t, out, "leaking at joint")
	assert.Contains(t, out, "Entity: ")

	_, err = shellEval(ctx, rt.registry, "context")
	assert.Error(t, err)

	_, err = shellEval(ctx, rt.registry, "graph_entity {not json")
	assert.ErrorContains(t, err, "JSON object")

	_, err = shellEval(ctx, rt.registry, "no_such_tool")
	assert.ErrorContains(t, err, "not found")
}

func TestRunToolPrintsOutput(t *testing.T) {
	cfg = testConfig(t)
	t.Cleanup(func() { cfg = nil })

	var buf bytes.Buffer
	statsCmd.SetOut(&buf)
	statsCmd.SetContext(context.Background())
	require.NoError(t, runTool(statsCmd, "graph_stats", nil))

	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &stats))
	assert.EqualValues(t, 0, stats["entity_count"])
}

func TestSessionJanitorSweeps(t *testing.T) {
	rt, err := newRuntime(testConfig(t), true)
	require.NoError(t, err)
	defer rt.Close()

	rt.sessions.GetOrCreate("a")
	j := &sessionJanitor{rt: rt, idle: time.Hour}
	assert.Equal(t, 0, j.Sweep())
	assert.Equal(t, []string{"a"}, rt.sessions.ListSessionKeys())
}
