package assembler

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/hybridmem/pkg/graph"
	"github.com/sipeed/hybridmem/pkg/scratchpad"
)

func TestExtractEntities(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"show wrn-00012 and WRN-7", []string{"WRN-00012", "WRN-7"}},
		{"parts for wc-100", []string{"model:WC-100"}},
		{"which deprecated lidar units", []string{"status:deprecated", "component:lidar_system"}},
		{"thermal issues", []string{"category:thermal", "component:thermal_system"}},
		{"Sensors on WC-200", []string{"model:WC-200", "category:sensors", "component:sensor_array"}},
		{"hello there", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractEntities(tt.query))
		})
	}
}

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		query string
		want  Intent
	}{
		{"get WRN-1", IntentLookup},
		{"id: abc", IntentLookup},
		{"why is the gripper failing", IntentDiagnostic},
		{"robots in maintenance", IntentDiagnostic},
		{"how many schematics per model", IntentAnalytics},
		{"list all sensors", IntentAnalytics},
		{"lidar mounting bracket", IntentSearch},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyIntent(tt.query), tt.query)
	}
	assert.False(t, IntentAnalytics.UsesGraph())
	assert.True(t, IntentSearch.UsesGraph())
}

func seededGraph(t *testing.T) *graph.Store {
	t.Helper()
	g, err := graph.Open(filepath.Join(t.TempDir(), "knowledge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })

	res := g.IndexSchematics(context.Background(), []graph.Schematic{
		{
			ID: "WRN-1", Model: "WC-100", Name: "Atlas", Component: "Hydraulic arm",
			Category: "actuators", Status: "active", Summary: "Hydraulic actuator with pressure sensor",
		},
		{
			ID: "WRN-2", Model: "WC-100", Name: "Atlas", Component: "Battery pack",
			Category: "power", Status: "active",
		},
	})
	require.NotZero(t, res.TotalEntities)
	return g
}

func TestGraphContextMentionedEntity(t *testing.T) {
	a := New(seededGraph(t), nil, 0)
	lines := a.GraphContext(context.Background(), "get wrn-1")

	require.NotEmpty(t, lines)
	assert.Equal(t, "Entity: WC-100 - Atlas: Hydraulic arm (schematic)", lines[0])

	var out, in int
	for _, l := range lines[1:] {
		switch {
		case strings.HasPrefix(l, "  -> "):
			out++
		case strings.HasPrefix(l, "  <- "):
			in++
		}
	}
	assert.Equal(t, 3, out, "outgoing lines are capped")
	assert.Equal(t, 1, in, "WRN-2 is compatible_with WRN-1")
	assert.Contains(t, lines, "  -> has_status -> Active")
	assert.Contains(t, lines, "  <- compatible_with <- WC-100 - Atlas: Battery pack")
}

func TestGraphContextCapsSeeds(t *testing.T) {
	a := New(seededGraph(t), nil, 0)
	lines := a.GraphContext(context.Background(), "WRN-1 WRN-2 WRN-3 WRN-4 WRN-5 WRN-6")

	var entities []string
	for _, l := range lines {
		if strings.HasPrefix(l, "Entity: ") {
			entities = append(entities, l)
		}
	}
	assert.Len(t, entities, 2, "only existing entities among the first five are described")
}

func TestGraphContextSearchFallback(t *testing.T) {
	g := seededGraph(t)
	a := New(g, nil, 0)

	lines := a.GraphContext(context.Background(), "atlas")
	require.Len(t, lines, 2)
	for _, l := range lines {
		assert.True(t, strings.HasPrefix(l, "Related: "), l)
		assert.True(t, strings.HasSuffix(l, "(schematic)"), l)
	}

	assert.Empty(t, a.GraphContext(context.Background(), "nothing matches this"))
}

func TestBuildAndRecord(t *testing.T) {
	mem := scratchpad.New()
	a := New(seededGraph(t), mem, 0)
	ctx := context.Background()

	res := a.Record(ctx, "WRN-1", scratchpad.Observed, "hydraulic_system", "seal leaking at joint")
	require.True(t, res.Success)

	c := a.Build(ctx, "get WRN-1")
	assert.Equal(t, IntentLookup, c.Intent)
	assert.Equal(t, []string{"WRN-1"}, c.Entities)
	assert.NotEmpty(t, c.GraphLines)
	assert.Equal(t, []string{"[observed] WRN-1 -> hydraulic_system: seal leaking at joint"}, c.ScratchpadLines)
	assert.Positive(t, c.ScratchpadTokens)

	s := c.String()
	assert.True(t, strings.HasPrefix(s, "=== Session Memory (Scratchpad) ===\n"))
	assert.Contains(t, s, "=== Knowledge Graph Context ===\n")
	assert.Less(t, strings.Index(s, "Scratchpad"), strings.Index(s, "Knowledge Graph"))

	c = a.Build(ctx, "how many schematics")
	assert.Equal(t, IntentAnalytics, c.Intent)
	assert.Empty(t, c.GraphLines)
}

func TestNilStores(t *testing.T) {
	a := New(nil, nil, 0)
	c := a.Build(context.Background(), "WRN-1")
	assert.Empty(t, c.GraphLines)
	assert.Empty(t, c.ScratchpadLines)
	assert.Empty(t, c.String())
	assert.False(t, a.Record(context.Background(), "a", scratchpad.Observed, "b", "c").Success)
}
