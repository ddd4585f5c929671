package providers

import (
	"context"
	"fmt"

	"github.com/sipeed/hybridmem/pkg/config"
)

const defaultMaxRetries = 2

// CompletionOptions tunes a single completion call.
type CompletionOptions struct {
	System      string
	MaxTokens   int64
	Temperature float64
}

// Completer turns a prompt into text. Implementations are safe for
// concurrent use.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error)
	Name() string
}

// Settings is what every SDK-backed completer needs.
type Settings struct {
	APIKey     string
	APIBase    string
	Model      string
	MaxRetries int
}

func settingsFrom(pc config.ProviderConfig) Settings {
	return Settings{
		APIKey:     pc.APIKey,
		APIBase:    pc.APIBase,
		Model:      pc.Model,
		MaxRetries: defaultMaxRetries,
	}
}

// CreateProvider builds the completer selected by the config. It returns
// nil and no error when no provider is configured.
func CreateProvider(cfg *config.Config) (Completer, error) {
	name, pc := cfg.ActiveProvider()
	if name == "" {
		return nil, nil
	}
	if pc.APIKey == "" {
		return nil, fmt.Errorf("provider %s: api_key is not set", name)
	}

	switch name {
	case "openai":
		return NewOpenAIProvider(settingsFrom(pc)), nil
	case "anthropic":
		return NewAnthropicProvider(settingsFrom(pc)), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
