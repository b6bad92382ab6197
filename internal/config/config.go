// Package config loads GenForge configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up in the working directory.
const DefaultFileName = "forge.yaml"

// Config holds all GenForge configuration.
type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Store    StoreConfig    `yaml:"store"`
	Corpus   CorpusConfig   `yaml:"corpus"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Tester   TesterConfig   `yaml:"tester"`
}

// LLMConfig configures the model client.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini, openai
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
}

// StoreConfig configures the checkpoint store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// CorpusConfig configures the retrieval delegate's knowledge base.
type CorpusConfig struct {
	Dir string `yaml:"dir"`
}

// WorkflowConfig configures the error budgets.
type WorkflowConfig struct {
	// MaxRouterErrors is the generic per-workflow retry budget.
	MaxRouterErrors int `yaml:"max_router_errors"`
	// QueryErrorThreshold is the middleware's per-(agent, task) budget.
	QueryErrorThreshold int `yaml:"query_error_threshold"`
}

// TesterConfig configures the test-generation agent.
type TesterConfig struct {
	TestCommand []string `yaml:"test_command"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.0-flash",
		},
		Store: StoreConfig{
			Path: filepath.Join(".forge", "forge.db"),
		},
		Corpus: CorpusConfig{
			Dir: "docs",
		},
		Workflow: WorkflowConfig{
			MaxRouterErrors:     3,
			QueryErrorThreshold: 3,
		},
		Tester: TesterConfig{
			TestCommand: []string{"go", "test", "./..."},
		},
	}
}

// Load reads configuration from path, falling back to defaults when the file
// does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %q: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies GENFORGE_* environment variables on top of the
// file values. Provider-specific API key variables are honored too.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}

	if v := os.Getenv("GENFORGE_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("GENFORGE_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("GENFORGE_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("GENFORGE_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("GENFORGE_DB"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("GENFORGE_CORPUS_DIR"); v != "" {
		c.Corpus.Dir = v
	}
	if v := os.Getenv("GENFORGE_QUERY_ERROR_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Workflow.QueryErrorThreshold = n
		}
	}
	if v := os.Getenv("GENFORGE_MAX_ROUTER_ERRORS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Workflow.MaxRouterErrors = n
		}
	}
}
