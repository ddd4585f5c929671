package graph

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Rule links a record to EntityID when Pattern matches the record's
// free text. Patterns are regular expressions matched case-insensitively.
type Rule struct {
	Pattern    string `yaml:"pattern" json:"pattern"`
	EntityID   string `yaml:"entity_id" json:"entity_id"`
	EntityType string `yaml:"entity_type,omitempty" json:"entity_type,omitempty"`
	Predicate  string `yaml:"predicate,omitempty" json:"predicate,omitempty"`
	Name       string `yaml:"name,omitempty" json:"name,omitempty"`
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// RuleSet is an ordered list of compiled rules.
type RuleSet struct {
	rules []compiledRule
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

var defaultComponentRules = []Rule{
	{Pattern: "hydraulic", EntityID: "component:hydraulic_system"},
	{Pattern: "sensor", EntityID: "component:sensor_array"},
	{Pattern: "motor", EntityID: "component:motor_system"},
	{Pattern: "battery", EntityID: "component:power_system"},
	{Pattern: "thermal", EntityID: "component:thermal_system"},
	{Pattern: "lidar", EntityID: "component:lidar_system"},
	{Pattern: "camera", EntityID: "component:vision_system"},
	{Pattern: "wireless", EntityID: "component:communication_system"},
	{Pattern: "safety", EntityID: "component:safety_system"},
	{Pattern: "gripper", EntityID: "component:manipulation_system"},
	{Pattern: "welding", EntityID: "component:welding_system"},
	{Pattern: "navigation", EntityID: "component:navigation_system"},
}

// DefaultRules returns the built-in component keyword table.
func DefaultRules() *RuleSet {
	rs, err := NewRuleSet(defaultComponentRules)
	if err != nil {
		panic(err)
	}
	return rs
}

// NewRuleSet compiles rules, filling the entity type ("component"),
// predicate ("contains") and display name when omitted.
func NewRuleSet(rules []Rule) (*RuleSet, error) {
	rs := &RuleSet{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		if r.Pattern == "" || r.EntityID == "" {
			return nil, fmt.Errorf("rule %d: pattern and entity_id are required", i)
		}
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		if r.EntityType == "" {
			r.EntityType = TypeComponent
		}
		if r.Predicate == "" {
			r.Predicate = PredContains
		}
		if r.Name == "" {
			r.Name = displayName(r.EntityID)
		}
		rs.rules = append(rs.rules, compiledRule{Rule: r, re: re})
	}
	return rs, nil
}

// LoadRules reads a YAML file of the form "rules: [{pattern, entity_id, ...}]".
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return NewRuleSet(f.Rules)
}

// Match returns the rules whose pattern occurs in any of texts, in rule order.
func (rs *RuleSet) Match(texts ...string) []Rule {
	var out []Rule
	for _, r := range rs.rules {
		for _, t := range texts {
			if r.re.MatchString(t) {
				out = append(out, r.Rule)
				break
			}
		}
	}
	return out
}

// Rules returns a copy of the uncompiled rules.
func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, len(rs.rules))
	for i, r := range rs.rules {
		out[i] = r.Rule
	}
	return out
}

// displayName turns "component:hydraulic_system" into "Hydraulic System".
func displayName(id string) string {
	if i := strings.Index(id, ":"); i >= 0 {
		id = id[i+1:]
	}
	return titleCase(strings.ReplaceAll(id, "_", " "))
}

// titleCase upper-cases the first letter of every word and lower-cases the rest.
func titleCase(s string) string {
	b := []rune(strings.ToLower(s))
	start := true
	for i, r := range b {
		letter := unicode.IsLetter(r)
		if letter && start {
			b[i] = unicode.ToUpper(r)
		}
		start = !letter
	}
	return string(b)
}
