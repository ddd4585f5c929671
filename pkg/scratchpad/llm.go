package scratchpad

import (
	"context"
	"fmt"

	"github.com/sipeed/hybridmem/pkg/providers"
)

const minimizePrompt = `Minimize this text to its essential meaning in as few words as possible.
Keep key entities, relationships, and facts. Remove filler words.
Output ONLY the minimized text, nothing else.

Text: %s`

const expandPrompt = `Expand this brief note into a more detailed explanation.
Add relevant context, implications, and connections.
Keep it concise but informative (2-3 sentences max).
%s

Subject: %s
Relationship: %s
Target: %s
Note: %s`

// LLMCompressor minimizes entry content with a completion model.
type LLMCompressor struct {
	completer providers.Completer
}

func NewLLMCompressor(c providers.Completer) *LLMCompressor {
	return &LLMCompressor{completer: c}
}

func (c *LLMCompressor) Compress(ctx context.Context, text string) (string, error) {
	return c.completer.Complete(ctx, fmt.Sprintf(minimizePrompt, text), providers.CompletionOptions{
		MaxTokens:   100,
		Temperature: 0,
	})
}

// LLMExpander turns a stored note back into a few sentences, steered by
// the caller's query when one is given.
type LLMExpander struct {
	completer providers.Completer
}

func NewLLMExpander(c providers.Completer) *LLMExpander {
	return &LLMExpander{completer: c}
}

func (x *LLMExpander) Expand(ctx context.Context, e Entry, queryContext string) (string, error) {
	note := ""
	if queryContext != "" {
		note = "\nCurrent query context: " + queryContext
	}
	prompt := fmt.Sprintf(expandPrompt, note, e.Subject, e.Predicate, e.Object, e.Content)
	return x.completer.Complete(ctx, prompt, providers.CompletionOptions{
		MaxTokens:   200,
		Temperature: 0.3,
	})
}
