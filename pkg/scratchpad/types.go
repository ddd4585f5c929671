package scratchpad

import (
	"sort"
	"time"
)

// Predicates name the cognitive operation an entry records.
const (
	Observed     = "observed"
	Inferred     = "inferred"
	RelevantTo   = "relevant_to"
	SummarizedAs = "summarized_as"
	Contradicts  = "contradicts"
	Supersedes   = "supersedes"
	DependsOn    = "depends_on"
)

var validPredicates = map[string]bool{
	Observed:     true,
	Inferred:     true,
	RelevantTo:   true,
	SummarizedAs: true,
	Contradicts:  true,
	Supersedes:   true,
	DependsOn:    true,
}

// IsValidPredicate reports whether p belongs to the scratchpad vocabulary.
func IsValidPredicate(p string) bool {
	return validPredicates[p]
}

// Predicates returns the vocabulary in sorted order.
func Predicates() []string {
	out := make([]string, 0, len(validPredicates))
	for p := range validPredicates {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Entry is one working-memory observation.
type Entry struct {
	ID              string                 `json:"id"`
	Subject         string                 `json:"subject"`
	Predicate       string                 `json:"predicate"`
	Object          string                 `json:"object"`
	Content         string                 `json:"content"`
	OriginalContent string                 `json:"original_content,omitempty"`
	OriginalTokens  int                    `json:"original_tokens"`
	MinimizedTokens int                    `json:"minimized_tokens"`
	EnrichedContent string                 `json:"enriched_content,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	ExpiresAt       time.Time              `json:"expires_at"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`

	seq uint64
}

// Line renders the entry the way it is injected into prompts.
func (e Entry) Line() string {
	return "[" + e.Predicate + "] " + e.Subject + " -> " + e.Object + ": " + e.Content
}

type Stats struct {
	EntryCount           int            `json:"entry_count"`
	TotalOriginalTokens  int            `json:"total_original_tokens"`
	TotalMinimizedTokens int            `json:"total_minimized_tokens"`
	TokensSaved          int            `json:"tokens_saved"`
	SavingsPercentage    float64        `json:"savings_percentage"`
	TokenBudget          int            `json:"token_budget"`
	TokenBudgetUsed      int            `json:"token_budget_used"`
	TokenBudgetRemaining int            `json:"token_budget_remaining"`
	PredicateCounts      map[string]int `json:"predicate_counts"`
	OldestEntry          *time.Time     `json:"oldest_entry,omitempty"`
	NewestEntry          *time.Time     `json:"newest_entry,omitempty"`
}

type WriteRequest struct {
	Subject   string
	Predicate string
	Object    string
	Content   string
	// Minimize runs the compressor (or the truncation fallback).
	Minimize bool
	Metadata map[string]interface{}
}

type WriteResult struct {
	Success     bool   `json:"success"`
	Entry       *Entry `json:"entry,omitempty"`
	TokensSaved int    `json:"tokens_saved"`
	Message     string `json:"message"`
}

type ReadRequest struct {
	Subject      string
	Predicate    string
	Enrich       bool
	QueryContext string
}

type ReadResult struct {
	Entries       []Entry `json:"entries"`
	Total         int     `json:"total"`
	EnrichedCount int     `json:"enriched_count"`
}

// ClearRequest selects entries to drop. Subject and OlderThan combine as a
// union. With neither set, nothing is cleared unless All is true.
type ClearRequest struct {
	Subject   string
	OlderThan time.Duration
	All       bool
}

type ClearResult struct {
	ClearedCount int    `json:"cleared_count"`
	Message      string `json:"message"`
}
