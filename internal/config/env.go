package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Search backends.
const (
	BackendPostgres = "postgres"
	BackendBleve    = "bleve"
	BackendMemory   = "memory"
)

// Credential kinds accepted for content understanding.
const (
	CredentialKey     = "key"
	CredentialKeyless = "keyless"
)

const (
	defaultIndexName   = "gptkbindex"
	defaultAnalyzer    = "en.microsoft"
	defaultBucketName  = "content"
	defaultRemoveDelay = 2 * time.Second
)

var (
	ErrDatabaseURLMissing = errors.New("DATABASE_URL not set")
	ErrBucketMissing      = errors.New("BUCKET_NAME not set")
	ErrUnknownBackend     = errors.New("unknown SEARCH_BACKEND")
	ErrEmbedKeyMissing    = errors.New("GEMINI_API_KEY not set but embeddings are enabled")
)

type Config struct {
	// Search index
	SearchBackend  string `toml:"search_backend"`
	IndexName      string `toml:"index_name"`
	SearchAnalyzer string `toml:"search_analyzer"`
	BlevePath      string `toml:"bleve_path"`
	DatabaseURL    string `toml:"database_url"`
	SslCertPath    string `toml:"ssl_cert_path"`
	UseACLs        bool   `toml:"use_acls"`

	// Object storage
	AwsAccessKey   string `toml:"aws_access_key"`
	AwsSecretKey   string `toml:"aws_secret_key"`
	AwsRegion      string `toml:"aws_region"`
	BucketName     string `toml:"bucket_name"`
	BlobPrefix     string `toml:"blob_prefix"`
	S3Endpoint     string `toml:"s3_endpoint"`
	SkipBlobs      bool   `toml:"skip_blobs"`
	DataLakeBucket string `toml:"datalake_bucket"`
	DataLakePath   string `toml:"datalake_path"`

	// Embeddings
	AIAPIKey          string  `toml:"ai_api_key"`
	EmbedModel        string  `toml:"embed_model"`
	EmbedDim          int     `toml:"embed_dim"`
	DisableEmbeddings bool    `toml:"disable_embeddings"`
	EmbedBatchSize    int     `toml:"embed_batch_size"`
	EmbedRPS          float64 `toml:"embed_rps"`
	GenModel          string  `toml:"gen_model"`
	DescribeImages    bool    `toml:"describe_images"`
	ImageEmbedURL     string  `toml:"image_embed_url"`
	ImageEmbedKey     string  `toml:"image_embed_key"`
	ImageEmbedDim     int     `toml:"image_embed_dim"`

	// Content understanding
	UseContentUnderstanding      bool   `toml:"use_content_understanding"`
	ContentUnderstandingEndpoint string `toml:"content_understanding_endpoint"`
	ContentUnderstandingToken    string `toml:"content_understanding_token"`
	CredentialKind               string `toml:"credential_kind"`

	// Splitting
	TargetTokens  int `toml:"target_tokens"`
	OverlapTokens int `toml:"overlap_tokens"`

	// Removal and reconciliation
	RemoveBackoff       time.Duration `toml:"remove_backoff"`
	RemoveMaxIterations int           `toml:"remove_max_iterations"`

	Verbose bool `toml:"verbose"`
}

// LoadConfig loads the environment variables (and .env, when present) and returns config.
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		SearchBackend:  getEnv("SEARCH_BACKEND", BackendPostgres),
		IndexName:      getEnv("SEARCH_INDEX", defaultIndexName),
		SearchAnalyzer: getEnv("SEARCH_ANALYZER", defaultAnalyzer),
		BlevePath:      getEnv("BLEVE_PATH", "./data/index.bleve"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		SslCertPath:    getEnv("SSL_CERT_PATH", ""),
		UseACLs:        getEnvBool("USE_ACLS", false),

		AwsAccessKey:   getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:   getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:      getEnv("AWS_REGION", "us-east-2"),
		BucketName:     getEnv("BUCKET_NAME", defaultBucketName),
		BlobPrefix:     getEnv("BLOB_PREFIX", ""),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		SkipBlobs:      getEnvBool("SKIP_BLOBS", false),
		DataLakeBucket: getEnv("DATALAKE_BUCKET", ""),
		DataLakePath:   getEnv("DATALAKE_PATH", ""),

		AIAPIKey:          getEnv("GEMINI_API_KEY", ""),
		EmbedModel:        getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:          getEnvInt("EMBED_DIM", 768),
		DisableEmbeddings: getEnvBool("DISABLE_EMBEDDINGS", false),
		EmbedBatchSize:    getEnvInt("EMBED_BATCH_SIZE", 16),
		EmbedRPS:          getEnvFloat("EMBED_RPS", 5),
		GenModel:          getEnv("GEN_MODEL", "gemini-1.5-flash"),
		DescribeImages:    getEnvBool("DESCRIBE_IMAGES", false),
		ImageEmbedURL:     getEnv("IMAGE_EMBED_URL", ""),
		ImageEmbedKey:     getEnv("IMAGE_EMBED_KEY", ""),
		ImageEmbedDim:     getEnvInt("IMAGE_EMBED_DIM", 1024),

		UseContentUnderstanding:      getEnvBool("USE_CONTENT_UNDERSTANDING", false),
		ContentUnderstandingEndpoint: getEnv("CONTENT_UNDERSTANDING_ENDPOINT", ""),
		ContentUnderstandingToken:    getEnv("CONTENT_UNDERSTANDING_TOKEN", ""),
		CredentialKind:               getEnv("CREDENTIAL_KIND", CredentialKeyless),

		TargetTokens:  getEnvInt("TARGET_TOKENS", 500),
		OverlapTokens: getEnvInt("OVERLAP_TOKENS", 50),

		RemoveBackoff:       getEnvDuration("REMOVE_BACKOFF", defaultRemoveDelay),
		RemoveMaxIterations: getEnvInt("REMOVE_MAX_ITERATIONS", 50),
	}

	return cfg
}

// LoadFile overlays the values of a TOML file on top of cfg.
// Keys missing from the file keep their current value.
func LoadFile(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("decode config %q: %w", path, err)
	}
	return nil
}

// Validate reports configuration errors that must abort a run before any
// document is processed.
func (c *Config) Validate() error {
	var errs []error
	switch c.SearchBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, ErrDatabaseURLMissing)
		}
	case BackendBleve, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownBackend, c.SearchBackend))
	}
	if !c.SkipBlobs && c.BucketName == "" {
		errs = append(errs, ErrBucketMissing)
	}
	if c.EmbeddingsEnabled() && c.AIAPIKey == "" {
		errs = append(errs, ErrEmbedKeyMissing)
	}
	return errors.Join(errs...)
}

// EmbeddingsEnabled reports whether text embeddings should be computed.
func (c *Config) EmbeddingsEnabled() bool {
	return !c.DisableEmbeddings
}

// LogLevel returns the slog level matching the verbosity setting.
func (c *Config) LogLevel() slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("env value is not an int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("env value is not a number, using default", "key", key, "value", v, "default", def)
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := strings.TrimSpace(getEnv(key, ""))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("env value is not a bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("env value is not a duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}
