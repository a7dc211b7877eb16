// Package config builds the explicit configuration value shared by every
// indexbot component. Nothing here is global: Load returns a *Config that the
// caller threads through the builder, the query engine and the worker pool.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default values mirror the behaviour of the original bot.
const (
	DefaultProjectName     = "AIssist"
	DefaultProjectBase     = "."
	DefaultOllamaURL       = "http://localhost:11434"
	DefaultLLMModel        = "llama3"
	DefaultEmbedModel      = "all-minilm"
	DefaultEmbedProvider   = "ollama"
	DefaultDevice          = "cpu"
	DefaultTopK            = 2
	DefaultPoolSize        = 2
	DefaultLLMTimeout      = "600s"
	DefaultChunkSize       = 1024
	DefaultChunkOverlap    = 128
	DefaultMaxFileSize     = 100 * 1024 * 1024
	DefaultGraphMinNodes   = 2048
	DefaultKeepGenerations = 2

	// ProjectConfigFile is looked up in the working directory when --config is not given.
	ProjectConfigFile = "indexbot.yaml"
)

// Config is the complete indexbot configuration.
type Config struct {
	Version     int               `yaml:"version" json:"version"`
	Project     ProjectConfig     `yaml:"project" json:"project"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings" json:"embeddings"`
	LLM         LLMConfig         `yaml:"llm" json:"llm"`
	Index       IndexConfig       `yaml:"index" json:"index"`
	Query       QueryConfig       `yaml:"query" json:"query"`
	Performance PerformanceConfig `yaml:"performance" json:"performance"`
	Watch       WatchConfig       `yaml:"watch" json:"watch"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
}

// ProjectConfig locates the project on disk: <base>/<name>/{input,index}.
type ProjectConfig struct {
	Name string `yaml:"name" json:"name"`
	Base string `yaml:"base" json:"base"`
}

// EmbeddingsConfig selects and tunes the embedding model.
type EmbeddingsConfig struct {
	// Provider: "ollama" or "static".
	Provider string `yaml:"provider" json:"provider"`
	// Model is the embedding model identifier, e.g. "all-minilm".
	Model string `yaml:"model" json:"model"`
	// Device: "cpu" (default), "gpu" or "auto".
	Device     string `yaml:"device" json:"device"`
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	Timeout    string `yaml:"timeout" json:"timeout"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
}

// LLMConfig configures the text-generation endpoint.
type LLMConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	Model   string `yaml:"model" json:"model"`
	Timeout string `yaml:"timeout" json:"timeout"`
}

// IndexConfig tunes the build.
type IndexConfig struct {
	ChunkSize       int   `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap    int   `yaml:"chunk_overlap" json:"chunk_overlap"`
	MaxFileSize     int64 `yaml:"max_file_size" json:"max_file_size"`
	GraphMinNodes   int   `yaml:"graph_min_nodes" json:"graph_min_nodes"`
	KeepGenerations int   `yaml:"keep_generations" json:"keep_generations"`
	EmbedWorkers    int   `yaml:"embed_workers" json:"embed_workers"`
}

// QueryConfig tunes retrieval and prompting.
type QueryConfig struct {
	TopK           int    `yaml:"top_k" json:"top_k"`
	PromptTemplate string `yaml:"prompt_template,omitempty" json:"prompt_template,omitempty"`
	CacheSize      int    `yaml:"cache_size" json:"cache_size"`
}

// PerformanceConfig sizes the worker pool that runs builds and queries.
type PerformanceConfig struct {
	PoolSize int `yaml:"pool_size" json:"pool_size"`
}

// WatchConfig configures the input directory watcher.
type WatchConfig struct {
	Debounce string `yaml:"debounce" json:"debounce"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file,omitempty" json:"file,omitempty"`
}

// NewConfig returns a configuration populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Project: ProjectConfig{
			Name: DefaultProjectName,
			Base: DefaultProjectBase,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   DefaultEmbedProvider,
			Model:      DefaultEmbedModel,
			Device:     DefaultDevice,
			OllamaHost: DefaultOllamaURL,
			BatchSize:  32,
			Timeout:    "60s",
			CacheSize:  1024,
		},
		LLM: LLMConfig{
			BaseURL: DefaultOllamaURL,
			Model:   DefaultLLMModel,
			Timeout: DefaultLLMTimeout,
		},
		Index: IndexConfig{
			ChunkSize:       DefaultChunkSize,
			ChunkOverlap:    DefaultChunkOverlap,
			MaxFileSize:     DefaultMaxFileSize,
			GraphMinNodes:   DefaultGraphMinNodes,
			KeepGenerations: DefaultKeepGenerations,
			EmbedWorkers:    DefaultPoolSize,
		},
		Query: QueryConfig{
			TopK:      DefaultTopK,
			CacheSize: 2,
		},
		Performance: PerformanceConfig{
			PoolSize: DefaultPoolSize,
		},
		Watch: WatchConfig{
			Debounce: "2s",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadOptions controls where Load looks for configuration.
type LoadOptions struct {
	// ConfigFile is an explicit project config path. Missing is an error.
	ConfigFile string
	// Dir is searched for indexbot.yaml and .env when ConfigFile is empty.
	Dir string
	// SkipUserConfig disables the user-level config file (tests).
	SkipUserConfig bool
}

// Load builds the configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config ($XDG_CONFIG_HOME/indexbot/config.yaml)
//  3. Project config (--config, else indexbot.yaml in Dir)
//  4. .env in Dir (never overrides variables already set)
//  5. Environment variables
func Load(opts LoadOptions) (*Config, error) {
	cfg := NewConfig()

	if !opts.SkipUserConfig {
		if userCfg, err := loadUserConfig(); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		} else if userCfg != nil {
			cfg.mergeWith(userCfg)
		}
	}

	dir := opts.Dir
	if dir == "" {
		dir = "."
	}

	switch {
	case opts.ConfigFile != "":
		if !fileExists(opts.ConfigFile) {
			return nil, fmt.Errorf("config file not found: %s", opts.ConfigFile)
		}
		if err := cfg.loadYAML(opts.ConfigFile); err != nil {
			return nil, err
		}
	case fileExists(filepath.Join(dir, ProjectConfigFile)):
		if err := cfg.loadYAML(filepath.Join(dir, ProjectConfigFile)); err != nil {
			return nil, err
		}
	}

	envFile := filepath.Join(dir, ".env")
	if fileExists(envFile) {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// GetUserConfigPath returns the path to the user configuration file.
// It follows the XDG Base Directory specification.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "indexbot", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "indexbot", "config.yaml")
	}
	return filepath.Join(home, ".config", "indexbot", "config.yaml")
}

// loadUserConfig returns nil, nil when no user config exists.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	var parsed Config
	if err := parseYAMLFile(configPath, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// loadYAML merges the non-zero values of a YAML file into c.
func (c *Config) loadYAML(path string) error {
	var parsed Config
	if err := parseYAMLFile(path, &parsed); err != nil {
		return err
	}
	c.mergeWith(&parsed)
	return nil
}

func parseYAMLFile(path string, out *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	mergeString(&c.Project.Name, other.Project.Name)
	mergeString(&c.Project.Base, other.Project.Base)

	mergeString(&c.Embeddings.Provider, other.Embeddings.Provider)
	mergeString(&c.Embeddings.Model, other.Embeddings.Model)
	mergeString(&c.Embeddings.Device, other.Embeddings.Device)
	mergeString(&c.Embeddings.OllamaHost, other.Embeddings.OllamaHost)
	mergeString(&c.Embeddings.Timeout, other.Embeddings.Timeout)
	mergeInt(&c.Embeddings.BatchSize, other.Embeddings.BatchSize)
	mergeInt(&c.Embeddings.CacheSize, other.Embeddings.CacheSize)

	mergeString(&c.LLM.BaseURL, other.LLM.BaseURL)
	mergeString(&c.LLM.Model, other.LLM.Model)
	mergeString(&c.LLM.Timeout, other.LLM.Timeout)

	mergeInt(&c.Index.ChunkSize, other.Index.ChunkSize)
	mergeInt(&c.Index.ChunkOverlap, other.Index.ChunkOverlap)
	if other.Index.MaxFileSize != 0 {
		c.Index.MaxFileSize = other.Index.MaxFileSize
	}
	mergeInt(&c.Index.GraphMinNodes, other.Index.GraphMinNodes)
	mergeInt(&c.Index.KeepGenerations, other.Index.KeepGenerations)
	mergeInt(&c.Index.EmbedWorkers, other.Index.EmbedWorkers)

	mergeInt(&c.Query.TopK, other.Query.TopK)
	mergeString(&c.Query.PromptTemplate, other.Query.PromptTemplate)
	mergeInt(&c.Query.CacheSize, other.Query.CacheSize)

	mergeInt(&c.Performance.PoolSize, other.Performance.PoolSize)
	mergeString(&c.Watch.Debounce, other.Watch.Debounce)
	mergeString(&c.Logging.Level, other.Logging.Level)
	mergeString(&c.Logging.File, other.Logging.File)
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// applyEnvOverrides applies environment variable overrides. The unprefixed
// names are the ones the original bot read from its .env file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PROJECT_NAME"); v != "" {
		c.Project.Name = v
	}
	if v := os.Getenv("PROJECT_BASE"); v != "" {
		c.Project.Base = v
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		c.LLM.BaseURL = v
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("EMBED_MODEL"); v != "" {
		c.Embeddings.Model = v
	}

	if v := os.Getenv("INDEXBOT_EMBED_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("INDEXBOT_EMBED_DEVICE"); v != "" {
		c.Embeddings.Device = v
	}
	if v := os.Getenv("INDEXBOT_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("INDEXBOT_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			c.Query.TopK = k
		}
	}
	if v := os.Getenv("INDEXBOT_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Performance.PoolSize = n
		}
	}
	if v := os.Getenv("INDEXBOT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	name := strings.TrimSpace(c.Project.Name)
	if name == "" {
		return fmt.Errorf("project.name must not be empty")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("project.name must be a plain directory name, got %q", c.Project.Name)
	}

	if c.Query.TopK < 1 {
		return fmt.Errorf("query.top_k must be at least 1, got %d", c.Query.TopK)
	}
	if c.Performance.PoolSize < 1 {
		return fmt.Errorf("performance.pool_size must be at least 1, got %d", c.Performance.PoolSize)
	}
	if c.Index.ChunkSize < 1 {
		return fmt.Errorf("index.chunk_size must be positive, got %d", c.Index.ChunkSize)
	}
	if c.Index.ChunkOverlap < 0 || c.Index.ChunkOverlap >= c.Index.ChunkSize {
		return fmt.Errorf("index.chunk_overlap must be in [0, chunk_size), got %d", c.Index.ChunkOverlap)
	}
	if c.Index.KeepGenerations < 1 {
		return fmt.Errorf("index.keep_generations must be at least 1, got %d", c.Index.KeepGenerations)
	}

	validProviders := map[string]bool{"ollama": true, "static": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'ollama' or 'static', got %s", c.Embeddings.Provider)
	}
	validDevices := map[string]bool{"cpu": true, "gpu": true, "auto": true}
	if !validDevices[strings.ToLower(c.Embeddings.Device)] {
		return fmt.Errorf("embeddings.device must be 'cpu', 'gpu' or 'auto', got %s", c.Embeddings.Device)
	}

	for field, v := range map[string]string{
		"embeddings.timeout": c.Embeddings.Timeout,
		"llm.timeout":        c.LLM.Timeout,
		"watch.debounce":     c.Watch.Debounce,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: invalid duration %q", field, v)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// ProjectDir is <base>/<name>.
func (c *Config) ProjectDir() string {
	return filepath.Join(c.Project.Base, c.Project.Name)
}

// InputDir is where delivered documents land.
func (c *Config) InputDir() string {
	return filepath.Join(c.ProjectDir(), "input")
}

// IndexDir is owned exclusively by the index store.
func (c *Config) IndexDir() string {
	return filepath.Join(c.ProjectDir(), "index")
}

// LLMTimeout returns the parsed LLM timeout. Validate guarantees it parses.
func (c *Config) LLMTimeout() time.Duration {
	d, _ := time.ParseDuration(c.LLM.Timeout)
	return d
}

// EmbeddingTimeout returns the parsed per-request embedding timeout.
func (c *Config) EmbeddingTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Embeddings.Timeout)
	return d
}

// DebounceInterval returns the parsed watcher debounce window.
func (c *Config) DebounceInterval() time.Duration {
	d, _ := time.ParseDuration(c.Watch.Debounce)
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
