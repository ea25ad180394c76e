// Package config loads docsearch settings from a TOML file, a .env file and
// the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/docsearch/internal/chunker"
)

// Environment overrides
const (
	EnvDBPath      = "DOCSEARCH_DB_PATH"
	EnvOllamaHost  = "OLLAMA_HOST"
	EnvEmbedModel  = "DOCSEARCH_EMBED_MODEL"
	EnvRerankModel = "DOCSEARCH_RERANK_MODEL"
	EnvLogLevel    = "DOCSEARCH_LOG_LEVEL"
	EnvConfigPath  = "DOCSEARCH_CONFIG"
)

// Cache backends
const (
	CacheSQLite = "sqlite"
	CacheBadger = "badger"
	CacheMemory = "memory"
)

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Config holds every tunable setting
type Config struct {
	DBPath   string         `toml:"db_path"`
	Log      LogConfig      `toml:"log"`
	Ollama   OllamaConfig   `toml:"ollama"`
	Models   ModelsConfig   `toml:"models"`
	Chunk    ChunkConfig    `toml:"chunk"`
	Search   SearchConfig   `toml:"search"`
	Cache    CacheConfig    `toml:"cache"`
	Schedule ScheduleConfig `toml:"schedule"`
	Watch    WatchConfig    `toml:"watch"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type OllamaConfig struct {
	URL string `toml:"url"`
	// Timeout bounds each HTTP request; 0 disables the client-side timeout
	Timeout Duration `toml:"timeout"`
}

type ModelsConfig struct {
	Embed  string `toml:"embed"`
	Rerank string `toml:"rerank"`
}

type ChunkConfig struct {
	Window  int `toml:"window"`
	Overlap int `toml:"overlap"`
}

type SearchConfig struct {
	LexicalK             float64 `toml:"lexical_k"`
	RRFK                 float64 `toml:"rrf_k"`
	RerankNegativeFactor float64 `toml:"rerank_negative_factor"`
	RerankCandidates     int     `toml:"rerank_candidates"`
	DefaultLimit         int     `toml:"default_limit"`
}

type CacheConfig struct {
	Backend    string `toml:"backend"`
	Dir        string `toml:"dir"`
	MemorySize int    `toml:"memory_size"`
}

// ScheduleConfig holds cron specs; empty disables the job
type ScheduleConfig struct {
	Update  string `toml:"update"`
	Cleanup string `toml:"cleanup"`
}

type WatchConfig struct {
	Debounce Duration `toml:"debounce"`
}

// Duration is a time.Duration written as a string ("30s") in TOML
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Default returns the built-in settings
func Default() *Config {
	return &Config{
		DBPath: filepath.Join(defaultDir(), "index.sqlite"),
		Log:    LogConfig{Level: "info", Format: "console"},
		Ollama: OllamaConfig{URL: "http://localhost:11434", Timeout: Duration{2 * time.Minute}},
		Models: ModelsConfig{Embed: "embeddinggemma", Rerank: "qwen3:0.6b"},
		Chunk:  ChunkConfig{Window: chunker.DefaultWindow, Overlap: chunker.DefaultOverlap},
		Search: SearchConfig{
			LexicalK:             50,
			RRFK:                 60,
			RerankNegativeFactor: 0.3,
			RerankCandidates:     30,
			DefaultLimit:         10,
		},
		Cache: CacheConfig{Backend: CacheSQLite, MemorySize: 10000},
		Watch: WatchConfig{Debounce: Duration{2 * time.Second}},
	}
}

// DefaultPath is the config file used when none is given
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return filepath.Join(defaultDir(), "config.toml")
}

func defaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".docsearch"
	}
	return filepath.Join(home, ".docsearch")
}

// Load reads path over the defaults, then applies .env and environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	// Values already in the environment win over .env
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv()

	cfg.DBPath = expandHome(cfg.DBPath)
	cfg.Cache.Dir = expandHome(cfg.Cache.Dir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.DBPath, EnvDBPath)
	set(&c.Ollama.URL, EnvOllamaHost)
	set(&c.Models.Embed, EnvEmbedModel)
	set(&c.Models.Rerank, EnvRerankModel)
	set(&c.Log.Level, EnvLogLevel)

	// OLLAMA_HOST is commonly given without a scheme
	if c.Ollama.URL != "" && !strings.Contains(c.Ollama.URL, "://") {
		c.Ollama.URL = "http://" + c.Ollama.URL
	}
}

// Validate checks settings that would otherwise fail deep inside an operation
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("%w: db_path is empty", ErrInvalid)
	}
	if c.Ollama.URL == "" {
		return fmt.Errorf("%w: ollama.url is empty", ErrInvalid)
	}
	if c.Ollama.Timeout.Duration < 0 {
		return fmt.Errorf("%w: ollama.timeout must not be negative", ErrInvalid)
	}
	if c.Models.Embed == "" || c.Models.Rerank == "" {
		return fmt.Errorf("%w: models.embed and models.rerank are required", ErrInvalid)
	}
	if err := chunker.Validate(c.Chunk.Window, c.Chunk.Overlap); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Search.LexicalK <= 0 || c.Search.RRFK <= 0 {
		return fmt.Errorf("%w: search.lexical_k and search.rrf_k must be positive", ErrInvalid)
	}
	if f := c.Search.RerankNegativeFactor; f <= 0 || f > 1 {
		return fmt.Errorf("%w: search.rerank_negative_factor must be in (0,1], got %v", ErrInvalid, f)
	}
	if c.Search.RerankCandidates <= 0 || c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("%w: search.rerank_candidates and search.default_limit must be positive", ErrInvalid)
	}
	switch c.Cache.Backend {
	case CacheSQLite, CacheMemory:
	case CacheBadger:
		if c.Cache.Dir == "" {
			return fmt.Errorf("%w: cache.dir is required for the badger backend", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown cache.backend %q", ErrInvalid, c.Cache.Backend)
	}
	if c.Watch.Debounce.Duration < 0 {
		return fmt.Errorf("%w: watch.debounce must not be negative", ErrInvalid)
	}
	return nil
}

// Save writes the configuration as TOML, creating the parent directory
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
