// Package config provides application configuration with multi-source priority.
//
// Sources, highest to lowest:
//  1. Environment variables (SUPPORTMIND_* runtime override)
//  2. Config file (~/.supportmind/config.yaml)
//  3. Defaults
//
// Sensitive values (the Postgres password) are never logged; see MarshalJSON.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidModelName indicates the judgment model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is empty.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidTopK indicates retrieval top_k is not a positive integer.
	ErrInvalidTopK = errors.New("invalid retrieval top_k")

	// ErrInvalidChunking indicates chunk size/overlap are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidBodyBounds indicates the review body length bounds are inconsistent.
	ErrInvalidBodyBounds = errors.New("invalid review body bounds")
)

// Defaults for the embedding and judgment models.
const (
	// DefaultEmbedderModel outputs 3072 dimensions by default but supports
	// truncation to 768 via OutputDimensionality; the chunks table schema
	// uses 768 (see index.VectorDimension).
	DefaultEmbedderModel = "gemini-embedding-001"

	DefaultModelName = "googleai/gemini-2.5-flash"
)

// Postgres holds PostgreSQL connection settings.
type Postgres struct {
	Host     string `mapstructure:"host" json:"host"`
	Port     int    `mapstructure:"port" json:"port"`
	User     string `mapstructure:"user" json:"user"`
	Password string `mapstructure:"password" json:"-"`
	DBName   string `mapstructure:"dbname" json:"dbname"`
	SSLMode  string `mapstructure:"sslmode" json:"sslmode"`
}

// URL returns the postgres:// connection URL.
func (p Postgres) URL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:   p.DBName,
	}
	q := u.Query()
	q.Set("sslmode", p.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Judge holds retry and timeout settings for judgment-capability calls.
type Judge struct {
	MaxRetries      int           `mapstructure:"max_retries" json:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval" json:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval" json:"max_interval"`
	Timeout         time.Duration `mapstructure:"timeout" json:"timeout"`
	RequestsPerMin  int           `mapstructure:"requests_per_min" json:"requests_per_min"`
}

// Pipeline holds knowledge-pipeline policy knobs.
type Pipeline struct {
	RetrievalTopK int `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`
	ExcerptChars  int `mapstructure:"excerpt_chars" json:"excerpt_chars"`
	ChunkSize     int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap  int `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	MinBodyChars  int `mapstructure:"min_body_chars" json:"min_body_chars"`
	MaxBodyChars  int `mapstructure:"max_body_chars" json:"max_body_chars"`
}

// Observability holds tracing settings.
type Observability struct {
	Enabled      bool   `mapstructure:"enabled" json:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
}

// Config stores the full application configuration.
type Config struct {
	ModelName     string        `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string        `mapstructure:"embedder_model" json:"embedder_model"`
	Temperature   float32       `mapstructure:"temperature" json:"temperature"`
	Postgres      Postgres      `mapstructure:"postgres" json:"postgres"`
	Judge         Judge         `mapstructure:"judge" json:"judge"`
	Pipeline      Pipeline      `mapstructure:"pipeline" json:"pipeline"`
	Observability Observability `mapstructure:"observability" json:"observability"`
	Debug         bool          `mapstructure:"debug" json:"debug"`
}

// MarshalJSON masks the Postgres password so configs can be logged safely.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.Postgres.Password = ""
	return json.Marshal(a)
}

// Load reads configuration from file, environment, and defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir, err := configDir(); err == nil {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("SUPPORTMIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file is fine; defaults + env apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks all configuration values and returns the first violation.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model must not be empty", ErrInvalidEmbedderModel)
	}
	if strings.TrimSpace(c.Postgres.Host) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.Postgres.Port < 1 || c.Postgres.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range [1, 65535]", ErrInvalidPostgresPort, c.Postgres.Port)
	}
	if strings.TrimSpace(c.Postgres.DBName) == "" {
		return fmt.Errorf("%w: dbname must not be empty", ErrInvalidPostgresDBName)
	}
	if c.Pipeline.RetrievalTopK < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidTopK, c.Pipeline.RetrievalTopK)
	}
	if c.Pipeline.ChunkSize < 1 || c.Pipeline.ChunkOverlap < 0 || c.Pipeline.ChunkOverlap >= c.Pipeline.ChunkSize {
		return fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidChunking, c.Pipeline.ChunkSize, c.Pipeline.ChunkOverlap)
	}
	if c.Pipeline.MinBodyChars < 1 || c.Pipeline.MaxBodyChars <= c.Pipeline.MinBodyChars {
		return fmt.Errorf("%w: min=%d max=%d", ErrInvalidBodyBounds, c.Pipeline.MinBodyChars, c.Pipeline.MaxBodyChars)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("temperature", 0.1)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "supportmind")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "supportmind")
	v.SetDefault("postgres.sslmode", "disable")

	v.SetDefault("judge.max_retries", 3)
	v.SetDefault("judge.initial_interval", 500*time.Millisecond)
	v.SetDefault("judge.max_interval", 10*time.Second)
	v.SetDefault("judge.timeout", 60*time.Second)
	v.SetDefault("judge.requests_per_min", 60)

	v.SetDefault("pipeline.retrieval_top_k", 5)
	v.SetDefault("pipeline.excerpt_chars", 300)
	v.SetDefault("pipeline.chunk_size", 600)
	v.SetDefault("pipeline.chunk_overlap", 100)
	v.SetDefault("pipeline.min_body_chars", 50)
	v.SetDefault("pipeline.max_body_chars", 20000)

	v.SetDefault("observability.enabled", false)
	v.SetDefault("observability.otlp_endpoint", "localhost:4318")

	v.SetDefault("debug", false)
}

// configDir returns ~/.supportmind, creating it if needed.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	dir := filepath.Join(home, ".supportmind")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	return dir, nil
}
