package main

import (
	"fmt"
	"time"

	"github.com/sipeed/hybridmem/pkg/config"
	"github.com/sipeed/hybridmem/pkg/graph"
	"github.com/sipeed/hybridmem/pkg/logger"
	"github.com/sipeed/hybridmem/pkg/providers"
	"github.com/sipeed/hybridmem/pkg/scratchpad"
	"github.com/sipeed/hybridmem/pkg/security"
	"github.com/sipeed/hybridmem/pkg/session"
	"github.com/sipeed/hybridmem/pkg/tokens"
	"github.com/sipeed/hybridmem/pkg/tools"
)

// runtime is everything a command needs, built from the loaded config.
type runtime struct {
	graph    *graph.Store
	sessions *session.SessionManager
	registry *tools.ToolRegistry
}

func (r *runtime) Close() error {
	return r.graph.Close()
}

func openGraph(c *config.Config) (*graph.Store, error) {
	var opts []graph.Option
	if path := c.RulesPath(); path != "" {
		rules, err := graph.LoadRules(path)
		if err != nil {
			return nil, err
		}
		opts = append(opts, graph.WithRules(rules))
	}
	return graph.Open(c.GraphDBPath(), opts...)
}

// scratchpadFactory builds per-session stores sharing one token counter
// and, when a provider is configured, its compressor and expander.
func scratchpadFactory(c *config.Config) (session.Factory, error) {
	completer, err := providers.CreateProvider(c)
	if err != nil {
		return nil, err
	}

	sc := c.Scratchpad
	opts := []scratchpad.Option{
		scratchpad.WithMaxTokens(sc.MaxTokens),
		scratchpad.WithTTL(time.Duration(sc.EntryTTLMinutes) * time.Minute),
		scratchpad.WithInjectBudget(sc.InjectBudget),
		scratchpad.WithTokenCounter(tokens.Default(sc.Encoding)),
		scratchpad.WithCompressTimeout(time.Duration(sc.CompressTimeoutSeconds) * time.Second),
		scratchpad.WithExpandTimeout(time.Duration(sc.ExpandTimeoutSeconds) * time.Second),
		scratchpad.WithEnrichConcurrency(sc.EnrichConcurrency),
	}
	switch sc.Redact {
	case "keys":
		opts = append(opts, scratchpad.WithRedactor(security.NewRedactor(false)))
	case "strict":
		opts = append(opts, scratchpad.WithRedactor(security.NewRedactor(true)))
	}
	if completer != nil {
		opts = append(opts,
			scratchpad.WithCompressor(scratchpad.NewLLMCompressor(completer)),
			scratchpad.WithExpander(scratchpad.NewLLMExpander(completer)),
		)
		logger.InfoCF("scratchpad", "Language model minimization enabled", map[string]interface{}{
			"provider": completer.Name(),
		})
	} else {
		logger.InfoC("scratchpad", "No provider configured, using truncation fallback")
	}

	return func() *scratchpad.Store { return scratchpad.New(opts...) }, nil
}

// newRuntime opens the graph and builds the tool registry. Working memory
// is wired to the configured provider only when withMemory is set; graph
// commands skip provider setup.
func newRuntime(c *config.Config, withMemory bool) (*runtime, error) {
	g, err := openGraph(c)
	if err != nil {
		return nil, fmt.Errorf("open graph: %w", err)
	}
	var factory session.Factory
	if withMemory {
		factory, err = scratchpadFactory(c)
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("provider: %w", err)
		}
	}
	sessions := session.NewSessionManager(factory)
	reg := tools.NewMemoryRegistry(g, sessions, tools.RegistryOptions{
		RecordsPath:  c.RecordsPath(),
		InjectBudget: c.Scratchpad.InjectBudget,
	})
	return &runtime{graph: g, sessions: sessions, registry: reg}, nil
}
