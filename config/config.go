package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"ctxpipe/internal/domain"
)

// Config holds all configuration for the ctxpipe tools.
type Config struct {
	ArtifactsDir string         `yaml:"artifacts_dir"`
	Sync         SyncConfig     `yaml:"sync"`
	Embed        EmbedConfig    `yaml:"embed"`
	Vector       VectorConfig   `yaml:"vector"`
	GitHub       GitHubConfig   `yaml:"github"`
	Validators   ValidateConfig `yaml:"validate"`
	Logging      LoggingConfig  `yaml:"logging"`
}

// SyncConfig holds source staging configuration.
type SyncConfig struct {
	SourcesFile string `yaml:"sources_file"`
	Destination string `yaml:"destination"`
	DryRun      bool   `yaml:"dry_run"`
	Report      string `yaml:"report"`
	TokenEnv    string `yaml:"token_env"` // bearer credential for https remotes
	Token       string `yaml:"-"`
}

// Embedding modes.
const (
	ModeRemote = "remote-api"
	ModeLocal  = "local-model"
	ModeDry    = "dry"
)

// EmbedConfig holds chunking and embedding configuration.
type EmbedConfig struct {
	Mode               string   `yaml:"mode"` // "", "remote-api", "local-model", "dry"
	DryRun             bool     `yaml:"dry_run"`
	ContextDir         string   `yaml:"context_dir"`
	Extensions         []string `yaml:"extensions"`
	ChunkTokens        int      `yaml:"chunk_tokens"`
	APIKeyEnv          string   `yaml:"api_key_env"`
	APIKey             string   `yaml:"-"`
	Model              string   `yaml:"model"`
	BaseURL            string   `yaml:"base_url"`
	BatchSize          int      `yaml:"batch_size"` // 0 sends every chunk in one request
	LocalModel         string   `yaml:"local_model"`
	OllamaURL          string   `yaml:"ollama_url"`
	TimeoutSeconds     int      `yaml:"timeout_seconds"`
	ChunkManifest      string   `yaml:"chunk_manifest"`
	EmbeddingsManifest string   `yaml:"embeddings_manifest"`
}

// VectorConfig holds vector store configuration.
type VectorConfig struct {
	Upsert         bool   `yaml:"upsert"`
	Reconcile      bool   `yaml:"reconcile"`
	Backend        string `yaml:"backend"` // "qdrant" or "bolt"
	URL            string `yaml:"url"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	APIKey         string `yaml:"-"`
	Collection     string `yaml:"collection"`
	Dimension      int    `yaml:"dimension"`
	Distance       string `yaml:"distance"`
	OnDisk         bool   `yaml:"on_disk"`
	HNSWM          int    `yaml:"hnsw_m"`
	EFConstruct    int    `yaml:"ef_construct"`
	BoltPath       string `yaml:"bolt_path"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// GitHubConfig holds the GitHub adapter configuration.
type GitHubConfig struct {
	Owner          string `yaml:"owner"`
	Repo           string `yaml:"repo"`
	TokenEnv       string `yaml:"token_env"`
	Token          string `yaml:"-"`
	APIURL         string `yaml:"api_url"`
	Listen         string `yaml:"listen"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// ValidateConfig holds pre-commit validator configuration.
type ValidateConfig struct {
	HeaderMarker string   `yaml:"header_marker"`
	Repos        []string `yaml:"repos"`
	HeaderExts   []string `yaml:"header_exts"`
	DeltaLog     string   `yaml:"delta_log"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ArtifactsDir: "artifacts",
		Sync: SyncConfig{
			SourcesFile: filepath.Join("docs", "sources.yaml"),
			Destination: filepath.Join("docs", "context"),
			DryRun:      true,
			Report:      "sync.report.json",
			TokenEnv:    "SYNC_GIT_TOKEN",
		},
		Embed: EmbedConfig{
			ContextDir:         filepath.Join("docs", "context"),
			Extensions:         []string{".md", ".yaml", ".yml", ".txt", ".conf", ".html", ".js", ".ts", ".sh", ".py"},
			ChunkTokens:        800,
			APIKeyEnv:          "OPENAI_API_KEY",
			Model:              "text-embedding-3-small",
			BaseURL:            "https://api.openai.com/v1",
			LocalModel:         "all-minilm",
			OllamaURL:          "http://localhost:11434",
			TimeoutSeconds:     30,
			ChunkManifest:      "chunks.manifest.json",
			EmbeddingsManifest: "chunks.embeddings.json",
		},
		Vector: VectorConfig{
			Upsert:         false,
			Backend:        "qdrant",
			Host:           "qdrant",
			Port:           6333,
			Collection:     "context_docs",
			Dimension:      1536,
			Distance:       "cosine",
			OnDisk:         true,
			HNSWM:          16,
			EFConstruct:    128,
			BoltPath:       "vectors.db",
			TimeoutSeconds: 30,
		},
		GitHub: GitHubConfig{
			TokenEnv:       "GITHUB_TOKEN",
			Listen:         ":8085",
			TimeoutSeconds: 30,
		},
		Validators: ValidateConfig{
			HeaderMarker: "--- Script Metadata ---",
			Repos:        []string{"ctxpipe"},
			HeaderExts:   []string{".py", ".sh", ".js"},
			DeltaLog:     filepath.Join("docs", "context", "context_delta.log.yaml"),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrConfiguration, path, err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for ctxpipe.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "ctxpipe.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".ctxpipe", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays environment values on top of the file configuration.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	e := envReader{lookup: lookup}

	e.str("CTXPIPE_ARTIFACTS_DIR", &c.ArtifactsDir)
	e.str("LOG_LEVEL", &c.Logging.Level)

	e.str("SYNC_SOURCES_FILE", &c.Sync.SourcesFile)
	e.str("SYNC_DESTINATION", &c.Sync.Destination)
	e.boolean("SYNC_DRY_RUN", &c.Sync.DryRun)
	e.str(c.Sync.TokenEnv, &c.Sync.Token)

	e.str("EMBED_MODE", &c.Embed.Mode)
	e.boolean("EMBED_DRY_RUN", &c.Embed.DryRun)
	e.str("EMBED_CONTEXT_DIR", &c.Embed.ContextDir)
	e.integer("EMBED_CHUNK_TOKENS", &c.Embed.ChunkTokens)
	e.str(c.Embed.APIKeyEnv, &c.Embed.APIKey)
	e.str("OPENAI_EMBED_MODEL", &c.Embed.Model)
	e.str("OPENAI_BASE_URL", &c.Embed.BaseURL)
	e.integer("EMBED_BATCH_SIZE", &c.Embed.BatchSize)
	e.str("LOCAL_EMBED_MODEL", &c.Embed.LocalModel)
	e.str("OLLAMA_URL", &c.Embed.OllamaURL)

	// QDRANT_UPSERT is the older spelling; EMBED_QDRANT_UPSERT wins when both are set.
	e.boolean("QDRANT_UPSERT", &c.Vector.Upsert)
	e.boolean("EMBED_QDRANT_UPSERT", &c.Vector.Upsert)
	e.boolean("EMBED_RECONCILE", &c.Vector.Reconcile)
	e.str("VECTOR_BACKEND", &c.Vector.Backend)
	e.str("QDRANT_URL", &c.Vector.URL)
	e.str("QDRANT_HOST", &c.Vector.Host)
	e.integer("QDRANT_PORT", &c.Vector.Port)
	e.str("QDRANT_API_KEY", &c.Vector.APIKey)
	e.str("QDRANT_COLLECTION", &c.Vector.Collection)
	e.integer("EMBEDDING_DIM", &c.Vector.Dimension)
	e.str("QDRANT_DISTANCE", &c.Vector.Distance)

	e.str("GITHUB_OWNER", &c.GitHub.Owner)
	e.str("GITHUB_REPO", &c.GitHub.Repo)
	e.str(c.GitHub.TokenEnv, &c.GitHub.Token)
	e.str("GITHUB_API_URL", &c.GitHub.APIURL)
	e.str("GITHUB_ADAPTER_ADDR", &c.GitHub.Listen)

	return e.err
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Embed.ChunkTokens <= 0 {
		return fmt.Errorf("%w: embed.chunk_tokens must be positive, got %d", domain.ErrConfiguration, c.Embed.ChunkTokens)
	}
	if _, err := c.Embed.ResolveMode(); err != nil {
		return err
	}
	if domain.ParseDistance(c.Vector.Distance) == domain.DistanceUnknown {
		return fmt.Errorf("%w: unknown distance %q (use cosine | dot | euclid)", domain.ErrConfiguration, c.Vector.Distance)
	}
	switch c.Vector.Backend {
	case "qdrant", "bolt":
	default:
		return fmt.Errorf("%w: unknown vector backend %q (use qdrant | bolt)", domain.ErrConfiguration, c.Vector.Backend)
	}
	if c.Vector.Collection == "" {
		return fmt.Errorf("%w: vector.collection is empty", domain.ErrConfiguration)
	}
	return nil
}

// ResolveMode returns the embedding mode to run. An explicit mode wins;
// otherwise the remote API is used when its credential is present, else dry.
func (e EmbedConfig) ResolveMode() (string, error) {
	if e.DryRun {
		return ModeDry, nil
	}
	switch strings.ToLower(strings.TrimSpace(e.Mode)) {
	case "":
		if e.APIKey != "" {
			return ModeRemote, nil
		}
		return ModeDry, nil
	case ModeRemote, "openai", "remote":
		return ModeRemote, nil
	case ModeLocal, "local":
		return ModeLocal, nil
	case ModeDry:
		return ModeDry, nil
	default:
		return "", fmt.Errorf("%w: unknown embed mode %q (use remote-api | local-model | dry)", domain.ErrConfiguration, e.Mode)
	}
}

// Endpoint returns the vector store base URL.
func (v VectorConfig) Endpoint() string {
	if v.URL != "" {
		return strings.TrimRight(v.URL, "/")
	}
	return "http://" + net.JoinHostPort(v.Host, strconv.Itoa(v.Port))
}

// ArtifactPath returns the path of a named artifact under dir.
func (c *Config) ArtifactPath(dir, name string) string {
	return resolve(dir, filepath.Join(c.ArtifactsDir, name))
}

// Resolve joins a configured path onto dir unless it is absolute.
func Resolve(dir, path string) string {
	return resolve(dir, path)
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// EnsureArtifactsDir ensures the artifacts directory exists.
func (c *Config) EnsureArtifactsDir(dir string) error {
	return os.MkdirAll(resolve(dir, c.ArtifactsDir), 0755)
}

type envReader struct {
	lookup LookupFunc
	err    error
}

func (e *envReader) get(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	v, ok := e.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) integer(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v)
		return
	}
	*dst = n
}

func (e *envReader) boolean(key string, dst *bool) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v)
		return
	}
	*dst = b
}

func (e *envReader) fail(key, value string) {
	if e.err == nil {
		e.err = fmt.Errorf("%w: invalid value %q for %s", domain.ErrConfiguration, value, key)
	}
}
