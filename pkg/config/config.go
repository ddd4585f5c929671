package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/sipeed/hybridmem/pkg/secrets"
)

type Config struct {
	Graph      GraphConfig      `json:"graph" yaml:"graph"`
	Scratchpad ScratchpadConfig `json:"scratchpad" yaml:"scratchpad"`
	Providers  ProvidersConfig  `json:"providers" yaml:"providers"`
	Indexer    IndexerConfig    `json:"indexer" yaml:"indexer"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	MCP        MCPConfig        `json:"mcp" yaml:"mcp"`
	Secrets    SecretsConfig    `json:"secrets" yaml:"secrets"`
	mu         sync.RWMutex
}

type GraphConfig struct {
	DBPath    string `json:"db_path" yaml:"db_path" env:"HYBRIDMEM_GRAPH_DB_PATH"`
	RulesPath string `json:"rules_path" yaml:"rules_path" env:"HYBRIDMEM_GRAPH_RULES_PATH"`
}

type ScratchpadConfig struct {
	MaxTokens              int    `json:"max_tokens" yaml:"max_tokens" env:"HYBRIDMEM_SCRATCHPAD_MAX_TOKENS"`
	EntryTTLMinutes        int    `json:"entry_ttl_minutes" yaml:"entry_ttl_minutes" env:"HYBRIDMEM_SCRATCHPAD_ENTRY_TTL_MINUTES"`
	InjectBudget           int    `json:"inject_budget" yaml:"inject_budget" env:"HYBRIDMEM_SCRATCHPAD_INJECT_BUDGET"`
	CompressTimeoutSeconds int    `json:"compress_timeout_seconds" yaml:"compress_timeout_seconds" env:"HYBRIDMEM_SCRATCHPAD_COMPRESS_TIMEOUT_SECONDS"`
	ExpandTimeoutSeconds   int    `json:"expand_timeout_seconds" yaml:"expand_timeout_seconds" env:"HYBRIDMEM_SCRATCHPAD_EXPAND_TIMEOUT_SECONDS"`
	EnrichConcurrency      int    `json:"enrich_concurrency" yaml:"enrich_concurrency" env:"HYBRIDMEM_SCRATCHPAD_ENRICH_CONCURRENCY"`
	Encoding               string `json:"encoding" yaml:"encoding" env:"HYBRIDMEM_SCRATCHPAD_ENCODING"`
	Redact                 string `json:"redact" yaml:"redact" env:"HYBRIDMEM_SCRATCHPAD_REDACT"`
}

type ProvidersConfig struct {
	Default   string         `json:"default" yaml:"default" env:"HYBRIDMEM_PROVIDERS_DEFAULT"`
	OpenAI    ProviderConfig `json:"openai" yaml:"openai" envPrefix:"HYBRIDMEM_PROVIDERS_OPENAI_"`
	Anthropic ProviderConfig `json:"anthropic" yaml:"anthropic" envPrefix:"HYBRIDMEM_PROVIDERS_ANTHROPIC_"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key" env:"API_KEY"`
	APIBase string `json:"api_base" yaml:"api_base" env:"API_BASE"`
	Model   string `json:"model" yaml:"model" env:"MODEL"`
}

type IndexerConfig struct {
	RecordsPath string `json:"records_path" yaml:"records_path" env:"HYBRIDMEM_INDEXER_RECORDS_PATH"`
	Schedule    string `json:"schedule" yaml:"schedule" env:"HYBRIDMEM_INDEXER_SCHEDULE"`
	RunOnStart  bool   `json:"run_on_start" yaml:"run_on_start" env:"HYBRIDMEM_INDEXER_RUN_ON_START"`
}

type LoggingConfig struct {
	Level string `json:"level" yaml:"level" env:"HYBRIDMEM_LOG_LEVEL"`
	JSON  bool   `json:"json" yaml:"json" env:"HYBRIDMEM_LOG_JSON"`
}

type MCPConfig struct {
	Name      string `json:"name" yaml:"name" env:"HYBRIDMEM_MCP_NAME"`
	Version   string `json:"version" yaml:"version" env:"HYBRIDMEM_MCP_VERSION"`
	Transport string `json:"transport" yaml:"transport" env:"HYBRIDMEM_MCP_TRANSPORT"`
	Addr      string `json:"addr" yaml:"addr" env:"HYBRIDMEM_MCP_ADDR"`
}

type SecretsConfig struct {
	Encrypt bool `json:"encrypt" yaml:"encrypt" env:"HYBRIDMEM_SECRETS_ENCRYPT"`
}

func DefaultConfig() *Config {
	return &Config{
		Graph: GraphConfig{
			DBPath: "~/.hybridmem/graph/knowledge.db",
		},
		Scratchpad: ScratchpadConfig{
			MaxTokens:              2000,
			EntryTTLMinutes:        30,
			InjectBudget:           1500,
			CompressTimeoutSeconds: 10,
			ExpandTimeoutSeconds:   15,
			EnrichConcurrency:      4,
			Encoding:               "cl100k_base",
			Redact:                 "keys",
		},
		Providers: ProvidersConfig{
			OpenAI: ProviderConfig{
				APIBase: "https://api.openai.com/v1",
				Model:   "gpt-4o-mini",
			},
			Anthropic: ProviderConfig{
				APIBase: "https://api.anthropic.com",
				Model:   "claude-3-5-haiku-latest",
			},
		},
		Indexer: IndexerConfig{
			Schedule: "",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		MCP: MCPConfig{
			Name:      "hybridmem",
			Version:   "0.1.0",
			Transport: "stdio",
			Addr:      ":8081",
		},
	}
}

// sensitiveFields returns pointers to all sensitive string fields in the config.
func sensitiveFields(cfg *Config) []*string {
	return []*string{
		&cfg.Providers.OpenAI.APIKey,
		&cfg.Providers.Anthropic.APIKey,
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		fmt.Fprintf(os.Stderr, "Warning: config file not found at %s, using defaults\n", path)
		if err := env.Parse(cfg); err != nil {
			return nil, fmt.Errorf("config: env overrides: %w", err)
		}
		return cfg, cfg.Validate()
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	hasEncrypted := false
	hasPlaintext := false
	for _, fp := range sensitiveFields(cfg) {
		if *fp == "" {
			continue
		}
		if secrets.IsSealed(*fp) {
			hasEncrypted = true
		} else {
			hasPlaintext = true
		}
	}

	if hasEncrypted {
		kr, err := secrets.OpenKeyring(keyringPath(path))
		if err != nil {
			return nil, fmt.Errorf("config: open keyring: %w", err)
		}
		for _, fp := range sensitiveFields(cfg) {
			plain, err := kr.Open(*fp)
			if err != nil {
				return nil, fmt.Errorf("config: unseal field: %w", err)
			}
			*fp = plain
		}
	}

	// Seal plaintext keys in place once encryption is switched on.
	if cfg.Secrets.Encrypt && hasPlaintext {
		if err := SaveConfig(path, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to seal config secrets: %v\n", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: env overrides: %w", err)
	}

	return cfg, cfg.Validate()
}

func keyringPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), ".hybridmem_key")
}

// Validate rejects settings the stores cannot run with.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sp := c.Scratchpad
	if sp.MaxTokens <= 0 {
		return fmt.Errorf("config: scratchpad.max_tokens must be positive, got %d", sp.MaxTokens)
	}
	if sp.EntryTTLMinutes <= 0 {
		return fmt.Errorf("config: scratchpad.entry_ttl_minutes must be positive, got %d", sp.EntryTTLMinutes)
	}
	if sp.InjectBudget <= 0 {
		return fmt.Errorf("config: scratchpad.inject_budget must be positive, got %d", sp.InjectBudget)
	}
	switch sp.Redact {
	case "", "off", "keys", "strict":
	default:
		return fmt.Errorf("config: scratchpad.redact must be off, keys or strict, got %q", sp.Redact)
	}
	switch c.Providers.Default {
	case "", "openai", "anthropic":
	default:
		return fmt.Errorf("config: unknown providers.default %q", c.Providers.Default)
	}
	switch c.MCP.Transport {
	case "", "stdio", "http":
	default:
		return fmt.Errorf("config: unknown mcp.transport %q", c.MCP.Transport)
	}
	return nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	toSave := cfg
	perm := os.FileMode(0644)

	if cfg.Secrets.Encrypt {
		cloneData, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		var clone Config
		if err := json.Unmarshal(cloneData, &clone); err != nil {
			return err
		}

		kr, err := secrets.OpenKeyring(keyringPath(path))
		if err != nil {
			return fmt.Errorf("config: open keyring: %w", err)
		}
		for _, fp := range sensitiveFields(&clone) {
			sealed, err := kr.Seal(*fp)
			if err != nil {
				return fmt.Errorf("config: seal field: %w", err)
			}
			*fp = sealed
		}
		toSave = &clone
		perm = 0600
	}

	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(toSave)
	} else {
		data, err = json.MarshalIndent(toSave, "", "  ")
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, perm)
}

// GraphDBPath returns the graph database path with ~ expanded.
func (c *Config) GraphDBPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Graph.DBPath)
}

func (c *Config) RulesPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Graph.RulesPath)
}

func (c *Config) RecordsPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Indexer.RecordsPath)
}

// ActiveProvider returns the name and settings of the provider that backs
// compression, or "" when none is configured with a key.
func (c *Config) ActiveProvider() (string, ProviderConfig) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.Providers.Default {
	case "openai":
		return "openai", c.Providers.OpenAI
	case "anthropic":
		return "anthropic", c.Providers.Anthropic
	}
	if c.Providers.OpenAI.APIKey != "" {
		return "openai", c.Providers.OpenAI
	}
	if c.Providers.Anthropic.APIKey != "" {
		return "anthropic", c.Providers.Anthropic
	}
	return "", ProviderConfig{}
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
