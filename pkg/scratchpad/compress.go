package scratchpad

import (
	"context"
	"strings"
)

// Compressor shortens text while keeping its meaning.
type Compressor interface {
	Compress(ctx context.Context, text string) (string, error)
}

// Expander elaborates a minimized entry, optionally steered by the
// current query.
type Expander interface {
	Expand(ctx context.Context, entry Entry, queryContext string) (string, error)
}

// Redactor scrubs sensitive substrings, reporting which patterns matched.
type Redactor interface {
	Redact(text string) (string, []string)
}

// CompressorFunc adapts a function to Compressor.
type CompressorFunc func(ctx context.Context, text string) (string, error)

func (f CompressorFunc) Compress(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

// ExpanderFunc adapts a function to Expander.
type ExpanderFunc func(ctx context.Context, entry Entry, queryContext string) (string, error)

func (f ExpanderFunc) Expand(ctx context.Context, entry Entry, queryContext string) (string, error) {
	return f(ctx, entry, queryContext)
}

const (
	// truncateThreshold is the token count above which the fallback truncates.
	truncateThreshold = 50
	truncateRatio     = 0.75
)

// truncateWords keeps the first ratio share of whitespace-separated words.
func truncateWords(text string, ratio float64) string {
	words := strings.Fields(text)
	keep := int(float64(len(words)) * ratio)
	return strings.Join(words[:keep], " ")
}
