// Package config provides configuration loading and structs for primr.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Search    SearchConfig    `yaml:"search"`
	Slack     SlackConfig     `yaml:"slack"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// RequestTimeoutSecs bounds each HTTP request, including the provider calls it makes.
	RequestTimeoutSecs int `yaml:"request_timeout_secs"`
}

// StorageConfig holds paths for the vector file, the chunk catalog and the source documents.
type StorageConfig struct {
	VectorsPath string `yaml:"vectors_path"`
	CatalogPath string `yaml:"catalog_path"`
	DataDir     string `yaml:"data_dir"`
}

// EmbeddingConfig configures the OpenAI-compatible embedding provider.
type EmbeddingConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model"`
	BatchSize         int     `yaml:"batch_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	CacheSize         int     `yaml:"cache_size"`
}

// Timeout returns the per-call timeout.
func (e EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSecs) * time.Second
}

// LLMConfig configures the answer synthesizer.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// Timeout returns the per-call timeout.
func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSecs) * time.Second
}

// SearchConfig holds retrieval and chunking settings.
type SearchConfig struct {
	TopK         int      `yaml:"top_k"`
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	Extensions   []string `yaml:"extensions"`
}

// SlackConfig names the environment variables holding Slack credentials and the slash commands.
type SlackConfig struct {
	BotTokenEnv   string `yaml:"bot_token_env"`
	AppTokenEnv   string `yaml:"app_token_env"`
	AskCommand    string `yaml:"ask_command"`
	StatusCommand string `yaml:"status_command"`
}

// WatchConfig controls file watching in the server.
type WatchConfig struct {
	// Enabled reloads the vector store when the vectors file is replaced.
	Enabled bool `yaml:"enabled"`
	// DataDir re-ingests when documents under storage.data_dir change.
	DataDir bool `yaml:"data_dir"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.VectorsPath = expandPath(cfg.Storage.VectorsPath, configDir)
	cfg.Storage.CatalogPath = expandPath(cfg.Storage.CatalogPath, configDir)
	cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir, configDir)

	return &cfg, nil
}

// LoadOrDefault loads path when it exists; a missing file yields the defaults.
// Relative default paths are then resolved against the working directory.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	cfg = Default()
	if cwd, cwdErr := os.Getwd(); cwdErr == nil {
		cfg.Storage.VectorsPath = expandPath(cfg.Storage.VectorsPath, cwd)
		cfg.Storage.CatalogPath = expandPath(cfg.Storage.CatalogPath, cwd)
		cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir, cwd)
	}
	return cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Save writes the config to path, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// LoadEnv loads KEY=VALUE pairs from the given .env files into the process
// environment without overriding variables that are already set.
// Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Secret returns the value of the environment variable named by envName.
func Secret(envName string) (string, error) {
	if envName == "" {
		return "", fmt.Errorf("no environment variable configured")
	}
	v := strings.TrimSpace(os.Getenv(envName))
	if v == "" {
		return "", fmt.Errorf("missing %s in environment", envName)
	}
	return v, nil
}

// MissingEnv returns the names in envNames that are unset or empty.
func MissingEnv(envNames ...string) []string {
	var missing []string
	for _, n := range envNames {
		if strings.TrimSpace(os.Getenv(n)) == "" {
			missing = append(missing, n)
		}
	}
	return missing
}

// expandPath converts a path to absolute. Relative paths resolve against configDir,
// and a leading "~/" resolves against the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
		return path
	}
	return filepath.Join(configDir, path)
}
