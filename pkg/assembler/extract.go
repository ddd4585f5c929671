package assembler

import (
	"regexp"
	"strings"
)

// Intent is the coarse class of a retrieval query.
type Intent string

const (
	IntentLookup     Intent = "lookup"
	IntentDiagnostic Intent = "diagnostic"
	IntentAnalytics  Intent = "analytics"
	IntentSearch     Intent = "search"
)

var (
	lookupPatterns     = []string{"wrn-", "wc-", "id:", "get "}
	diagnosticPatterns = []string{
		"status", "problem", "issue", "error", "failing",
		"maintenance", "offline", "not working", "diagnose",
	}
	analyticsPatterns = []string{
		"how many", "count", "total", "statistics", "breakdown",
		"distribution", "all ", "list all", "summary",
	}
)

// ClassifyIntent picks an intent from keyword patterns, checked in
// lookup, diagnostic, analytics order. Anything else is a search.
func ClassifyIntent(query string) Intent {
	q := strings.ToLower(query)
	switch {
	case containsAny(q, lookupPatterns):
		return IntentLookup
	case containsAny(q, diagnosticPatterns):
		return IntentDiagnostic
	case containsAny(q, analyticsPatterns):
		return IntentAnalytics
	}
	return IntentSearch
}

// UsesGraph reports whether graph context helps this intent.
func (i Intent) UsesGraph() bool {
	return i != IntentAnalytics
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

var (
	schematicIDRe = regexp.MustCompile(`WRN-\d+`)
	modelIDRe     = regexp.MustCompile(`WC-\d+`)

	statusKeywords   = []string{"active", "deprecated", "draft", "offline", "maintenance"}
	categoryKeywords = []string{
		"sensors", "power", "control", "mobility", "communication",
		"thermal", "safety", "actuators", "manipulation", "tooling",
		"structural", "mechanical", "environmental",
	}
)

type componentKeyword struct {
	keyword  string
	entityID string
}

var componentKeywords = []componentKeyword{
	{"hydraulic", "component:hydraulic_system"},
	{"sensor", "component:sensor_array"},
	{"motor", "component:motor_system"},
	{"battery", "component:power_system"},
	{"thermal", "component:thermal_system"},
	{"lidar", "component:lidar_system"},
	{"camera", "component:vision_system"},
	{"wireless", "component:communication_system"},
	{"safety", "component:safety_system"},
	{"gripper", "component:manipulation_system"},
	{"welding", "component:welding_system"},
	{"navigation", "component:navigation_system"},
}

// ExtractEntities returns graph entity IDs mentioned in query: schematic
// IDs, model IDs, then status, category and component keywords. Keywords
// match as substrings, so "sensors" yields both the category and the
// sensor component.
func ExtractEntities(query string) []string {
	upper := strings.ToUpper(query)
	lower := strings.ToLower(query)

	var ids []string
	ids = append(ids, schematicIDRe.FindAllString(upper, -1)...)
	for _, m := range modelIDRe.FindAllString(upper, -1) {
		ids = append(ids, "model:"+m)
	}
	for _, s := range statusKeywords {
		if strings.Contains(lower, s) {
			ids = append(ids, "status:"+s)
		}
	}
	for _, c := range categoryKeywords {
		if strings.Contains(lower, c) {
			ids = append(ids, "category:"+c)
		}
	}
	for _, c := range componentKeywords {
		if strings.Contains(lower, c.keyword) {
			ids = append(ids, c.entityID)
		}
	}
	return ids
}
