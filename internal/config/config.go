// Package config loads and validates annotator configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/paper-annotator/internal/paper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Discovery  DiscoveryConfig  `mapstructure:"discovery"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Extract    ExtractConfig    `mapstructure:"extract"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Output     OutputConfig     `mapstructure:"output"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Upload     UploadConfig     `mapstructure:"upload"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Server     ServerConfig     `mapstructure:"server"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// DiscoveryConfig selects and tunes the WorkItem source.
// LocalRoot, when set, replaces the archive crawl with a directory listing.
type DiscoveryConfig struct {
	BaseURL        string   `mapstructure:"base_url"`
	LocalRoot      string   `mapstructure:"local_root"`
	Years          []string `mapstructure:"years"`
	UserAgent      string   `mapstructure:"user_agent"`
	Parallelism    int      `mapstructure:"parallelism"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
}

// FetchConfig governs PDF downloads.
type FetchConfig struct {
	DownloadDir    string `mapstructure:"download_dir"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxAttempts    int    `mapstructure:"max_attempts"`
	BackoffMs      int    `mapstructure:"backoff_ms"`
}

// ExtractConfig tunes the title/abstract heuristics.
type ExtractConfig struct {
	MaxPages         int `mapstructure:"max_pages"`
	TitleScanLines   int `mapstructure:"title_scan_lines"`
	TitleMinLength   int `mapstructure:"title_min_length"`
	AbstractMaxChars int `mapstructure:"abstract_max_chars"`
}

// ClassifierConfig configures the Vertex AI classifier and its retry policy.
type ClassifierConfig struct {
	ProjectID             string   `mapstructure:"project_id"`
	Region                string   `mapstructure:"region"`
	Model                 string   `mapstructure:"model"`
	Categories            []string `mapstructure:"categories"`
	RequestTimeoutSeconds int      `mapstructure:"request_timeout_seconds"`
	RateLimitWaitSeconds  int      `mapstructure:"rate_limit_wait_seconds"`
	MaxAttempts           int      `mapstructure:"max_attempts"`
}

// CacheConfig selects the classification cache store.
type CacheConfig struct {
	Provider string `mapstructure:"provider"`
	Path     string `mapstructure:"path"`
}

// OutputConfig locates the annotated CSV.
type OutputConfig struct {
	CSVPath string `mapstructure:"csv_path"`
}

// PipelineConfig sizes the worker pool and pacing.
type PipelineConfig struct {
	Concurrency    int `mapstructure:"concurrency"`
	QueueDepth     int `mapstructure:"queue_depth"`
	PaceIntervalMs int `mapstructure:"pace_interval_ms"`
}

// UploadConfig configures the optional upload of downloaded PDFs.
type UploadConfig struct {
	Provider       string `mapstructure:"provider"`
	GCSBucket      string `mapstructure:"gcs_bucket"`
	LocalDir       string `mapstructure:"local_dir"`
	Prefix         string `mapstructure:"prefix"`
	QueueDepth     int    `mapstructure:"queue_depth"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// PostgresConfig enables the optional record mirror.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for record notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the progress/metrics HTTP server. Port 0 disables it.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ANNOTATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	const defaultUA = "paper-annotator/1.0 (+https://github.com/JakeFAU/paper-annotator)"
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("discovery.base_url", "https://papers.nips.cc/")
	v.SetDefault("discovery.local_root", "")
	v.SetDefault("discovery.years", []string{})
	v.SetDefault("discovery.user_agent", defaultUA)
	v.SetDefault("discovery.parallelism", 5)
	v.SetDefault("discovery.timeout_seconds", 30)
	v.SetDefault("fetch.download_dir", "downloads")
	v.SetDefault("fetch.user_agent", defaultUA)
	v.SetDefault("fetch.timeout_seconds", 60)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.backoff_ms", 2000)
	v.SetDefault("extract.max_pages", 2)
	v.SetDefault("extract.title_scan_lines", 5)
	v.SetDefault("extract.title_min_length", 5)
	v.SetDefault("extract.abstract_max_chars", 1000)
	v.SetDefault("classifier.region", "us-central1")
	v.SetDefault("classifier.model", "gemini-1.5-flash")
	v.SetDefault("classifier.categories", paper.DefaultCategories)
	v.SetDefault("classifier.request_timeout_seconds", 60)
	v.SetDefault("classifier.rate_limit_wait_seconds", 60)
	v.SetDefault("classifier.max_attempts", 3)
	v.SetDefault("cache.provider", "sqlite")
	v.SetDefault("cache.path", "classification_cache.db")
	v.SetDefault("output.csv_path", "annotated_papers.csv")
	v.SetDefault("pipeline.concurrency", 2)
	v.SetDefault("pipeline.queue_depth", 64)
	v.SetDefault("pipeline.pace_interval_ms", 5000)
	v.SetDefault("upload.provider", "none")
	v.SetDefault("upload.prefix", "papers")
	v.SetDefault("upload.queue_depth", 32)
	v.SetDefault("upload.timeout_seconds", 120)
	v.SetDefault("postgres.table", "annotated_papers")
	v.SetDefault("server.port", 0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("pipeline.concurrency must be > 0")
	}
	if c.Pipeline.QueueDepth <= 0 {
		return fmt.Errorf("pipeline.queue_depth must be > 0")
	}
	if c.Pipeline.PaceIntervalMs < 0 {
		return fmt.Errorf("pipeline.pace_interval_ms must be >= 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.MaxAttempts <= 0 {
		return fmt.Errorf("fetch.max_attempts must be > 0")
	}
	if strings.TrimSpace(c.Fetch.DownloadDir) == "" {
		return fmt.Errorf("fetch.download_dir is required")
	}
	if c.Extract.MaxPages <= 0 || c.Extract.AbstractMaxChars <= 0 || c.Extract.TitleScanLines <= 0 {
		return fmt.Errorf("extract.max_pages, extract.title_scan_lines and extract.abstract_max_chars must be > 0")
	}
	if len(c.Classifier.Categories) == 0 {
		return fmt.Errorf("classifier.categories must not be empty")
	}
	if c.Classifier.MaxAttempts <= 0 {
		return fmt.Errorf("classifier.max_attempts must be > 0")
	}
	if c.Classifier.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("classifier.request_timeout_seconds must be > 0")
	}
	switch c.Cache.Provider {
	case "sqlite":
		if c.Cache.Path == "" {
			return fmt.Errorf("cache.path is required for the sqlite cache")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown cache.provider %q", c.Cache.Provider)
	}
	switch c.Upload.Provider {
	case "", "none", "memory":
	case "gcs":
		if c.Upload.GCSBucket == "" {
			return fmt.Errorf("upload.gcs_bucket is required when upload.provider is gcs")
		}
	case "local":
		if c.Upload.LocalDir == "" {
			return fmt.Errorf("upload.local_dir is required when upload.provider is local")
		}
	default:
		return fmt.Errorf("unknown upload.provider %q", c.Upload.Provider)
	}
	if c.Discovery.LocalRoot == "" && c.Discovery.BaseURL == "" {
		return fmt.Errorf("one of discovery.base_url or discovery.local_root is required")
	}
	if c.Server.Port < 0 {
		return fmt.Errorf("server.port must be >= 0")
	}
	return nil
}

// RequireClassifier reports whether the settings needed to call Vertex AI are present.
func (c Config) RequireClassifier() error {
	if c.Classifier.ProjectID == "" {
		return fmt.Errorf("classifier.project_id is required to annotate")
	}
	if c.Classifier.Region == "" || c.Classifier.Model == "" {
		return fmt.Errorf("classifier.region and classifier.model are required to annotate")
	}
	return nil
}

// FetchTimeout is the per-request download timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// FetchBackoff is the fixed wait between download attempts.
func (c Config) FetchBackoff() time.Duration {
	return time.Duration(c.Fetch.BackoffMs) * time.Millisecond
}

// ClassifierRequestTimeout bounds a single call to the classification service.
func (c Config) ClassifierRequestTimeout() time.Duration {
	return time.Duration(c.Classifier.RequestTimeoutSeconds) * time.Second
}

// RateLimitWait is the sleep after a rate-limit signal from the service.
func (c Config) RateLimitWait() time.Duration {
	return time.Duration(c.Classifier.RateLimitWaitSeconds) * time.Second
}

// PaceInterval is the minimum spacing between completed items across workers.
func (c Config) PaceInterval() time.Duration {
	return time.Duration(c.Pipeline.PaceIntervalMs) * time.Millisecond
}

// DiscoveryTimeout bounds each archive page request.
func (c Config) DiscoveryTimeout() time.Duration {
	return time.Duration(c.Discovery.TimeoutSeconds) * time.Second
}

// UploadTimeout bounds each upload.
func (c Config) UploadTimeout() time.Duration {
	return time.Duration(c.Upload.TimeoutSeconds) * time.Second
}
