package tokens

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/sipeed/hybridmem/pkg/logger"
)

// DefaultEncoding is the BPE vocabulary used when none is configured.
const DefaultEncoding = "cl100k_base"

// Counter measures text in model tokens.
type Counter interface {
	Count(text string) int
}

// WordEstimate approximates tokens as 1.3 per whitespace-separated word.
type WordEstimate struct{}

func (WordEstimate) Count(text string) int {
	return int(float64(len(strings.Fields(text))) * 1.3)
}

// Tiktoken counts with a real BPE encoding.
type Tiktoken struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

func NewTiktoken(encoding string) (*Tiktoken, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.enc.Encode(text, nil, nil))
}

// Default returns a tiktoken counter, or the word estimate when the
// encoding cannot be loaded (offline, unknown name).
func Default(encoding string) Counter {
	c, err := NewTiktoken(encoding)
	if err != nil {
		logger.WarnCF("tokens", "Tokenizer unavailable, using word estimate", map[string]interface{}{
			"encoding": encoding,
			"error":    err.Error(),
		})
		return WordEstimate{}
	}
	return c
}
