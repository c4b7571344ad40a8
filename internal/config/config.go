// Package config provides configuration management for the crawl service.
// Values come from a YAML file with environment variable overrides; see Load.
package config

import (
	"fmt"
	"time"

	"github.com/jonesrussell/re-search/internal/logger"
)

// Fetcher defaults.
const (
	DefaultUserAgent      = "re-search-bot/1.0 (+opportunity crawler)"
	DefaultRequestTimeout = 30 * time.Second
	DefaultFetchAttempts  = 3
	DefaultInitialBackoff = 4 * time.Second
	DefaultMaxBackoff     = 10 * time.Second
	DefaultHostDelay      = 2 * time.Second
	DefaultRenderSettle   = 3 * time.Second
	DefaultRenderTimeout  = 45 * time.Second
)

// Inference defaults.
const (
	DefaultInferenceProvider  = "openai"
	DefaultDailyCallLimit     = 500
	DefaultInferenceTimeout   = 45 * time.Second
	DefaultInferenceRetries   = 2
	DefaultSampleRate         = 1.0
	DefaultTemperature        = 0.1
	DefaultMaxTokens          = 2000
	DefaultRequestsPerMinute  = 30
	DefaultInferenceBackoff   = 2 * time.Second
	DefaultMaxPromptChars     = 6000
	DefaultQualityThreshold   = 0.3
	DefaultBreakerFailures    = 5
	DefaultBreakerOpenTimeout = 2 * time.Minute
)

// Reconcile defaults.
const (
	DefaultSimilarityThreshold = 0.85
	DefaultRemovalThreshold    = 3
	DefaultNewGrace            = time.Minute
)

// Crawl defaults.
const (
	DefaultWorkers         = 5
	DefaultCrawlSchedule   = "0 2 * * *"
	DefaultCleanupSchedule = "0 4 * * 0"
	DefaultRetention       = 180 * 24 * time.Hour
	DefaultRecentDays      = 7
)

// Infrastructure defaults.
const (
	DefaultServerPort   = 8060
	DefaultDBHost       = "localhost"
	DefaultDBPort       = "5432"
	DefaultDBUser       = "postgres"
	DefaultDBName       = "research"
	DefaultDBSSLMode    = "disable"
	DefaultRedisAddress = "localhost:6379"
	DefaultESURL        = "http://localhost:9200"
	DefaultESIndex      = "opportunities"
)

// Config is the root configuration.
type Config struct {
	Logging       logger.Config       `yaml:"logging"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Server        ServerConfig        `yaml:"server"`
	Fetcher       FetcherConfig       `yaml:"fetcher"`
	Inference     InferenceConfig     `yaml:"inference"`
	Reconcile     ReconcileConfig     `yaml:"reconcile"`
	Crawl         CrawlConfig         `yaml:"crawl"`
	Sources       []SourceConfig      `yaml:"sources"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Enabled  *bool  `env:"DB_ENABLED"  yaml:"enabled"`
	Host     string `env:"DB_HOST"     yaml:"host"`
	Port     string `env:"DB_PORT"     yaml:"port"`
	User     string `env:"DB_USER"     yaml:"user"`
	Password string `env:"DB_PASSWORD" yaml:"password"`
	DBName   string `env:"DB_NAME"     yaml:"dbname"`
	SSLMode  string `env:"DB_SSLMODE"  yaml:"sslmode"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Enabled  bool   `env:"REDIS_ENABLED"  yaml:"enabled"`
	Address  string `env:"REDIS_ADDRESS"  yaml:"address"`
	Password string `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int    `env:"REDIS_DB"       yaml:"db"`
}

// ElasticsearchConfig holds the search read model settings.
type ElasticsearchConfig struct {
	Enabled  bool   `env:"ELASTICSEARCH_ENABLED"  yaml:"enabled"`
	URL      string `env:"ELASTICSEARCH_URL"      yaml:"url"`
	Index    string `env:"ELASTICSEARCH_INDEX"    yaml:"index"`
	Username string `env:"ELASTICSEARCH_USERNAME" yaml:"username"`
	Password string `env:"ELASTICSEARCH_PASSWORD" yaml:"password"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port  int  `env:"SERVER_PORT"  yaml:"port"`
	Debug bool `env:"SERVER_DEBUG" yaml:"debug"`
}

// FetcherConfig controls page retrieval.
type FetcherConfig struct {
	UserAgent      string        `env:"FETCHER_USER_AGENT"      yaml:"user_agent"`
	RequestTimeout time.Duration `env:"FETCHER_REQUEST_TIMEOUT" yaml:"request_timeout"`
	MaxAttempts    int           `env:"FETCHER_MAX_ATTEMPTS"    yaml:"max_attempts"`
	InitialBackoff time.Duration `env:"FETCHER_INITIAL_BACKOFF" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `env:"FETCHER_MAX_BACKOFF"     yaml:"max_backoff"`
	DefaultDelay   time.Duration `env:"FETCHER_DEFAULT_DELAY"   yaml:"default_delay"`
	RespectRobots  *bool         `env:"FETCHER_RESPECT_ROBOTS"  yaml:"respect_robots"`
	RenderEnabled  *bool         `env:"FETCHER_RENDER_ENABLED"  yaml:"render_enabled"`
	RenderSettle   time.Duration `env:"FETCHER_RENDER_SETTLE"   yaml:"render_settle"`
	RenderTimeout  time.Duration `env:"FETCHER_RENDER_TIMEOUT"  yaml:"render_timeout"`
}

// InferenceConfig controls the inference extractor.
type InferenceConfig struct {
	Enabled           *bool         `env:"INFERENCE_ENABLED"             yaml:"enabled"`
	Provider          string        `env:"INFERENCE_PROVIDER"            yaml:"provider"`
	Model             string        `env:"INFERENCE_MODEL"               yaml:"model"`
	APIKey            string        `env:"INFERENCE_API_KEY"             yaml:"api_key"`
	APIURL            string        `env:"INFERENCE_API_URL"             yaml:"api_url"`
	DailyCallLimit    int           `env:"INFERENCE_DAILY_CALL_LIMIT"    yaml:"daily_call_limit"`
	Timeout           time.Duration `env:"INFERENCE_TIMEOUT"             yaml:"timeout"`
	MaxRetries        int           `env:"INFERENCE_MAX_RETRIES"         yaml:"max_retries"`
	SampleRate        float64       `env:"INFERENCE_SAMPLE_RATE"         yaml:"sample_rate"`
	Temperature       float64       `env:"INFERENCE_TEMPERATURE"         yaml:"temperature"`
	MaxTokens         int           `env:"INFERENCE_MAX_TOKENS"          yaml:"max_tokens"`
	RequestsPerMinute int           `env:"INFERENCE_REQUESTS_PER_MINUTE" yaml:"requests_per_minute"`
	RetryDelay        time.Duration `env:"INFERENCE_RETRY_DELAY"         yaml:"retry_delay"`
	MaxPromptChars    int           `env:"INFERENCE_MAX_PROMPT_CHARS"    yaml:"max_prompt_chars"`
	BreakerFailures   int           `env:"INFERENCE_BREAKER_FAILURES"    yaml:"breaker_failures"`
	BreakerTimeout    time.Duration `env:"INFERENCE_BREAKER_TIMEOUT"     yaml:"breaker_timeout"`
}

// ReconcileConfig controls record matching and aging.
type ReconcileConfig struct {
	SimilarityThreshold float64       `env:"RECONCILE_SIMILARITY_THRESHOLD" yaml:"similarity_threshold"`
	RemovalThreshold    int           `env:"RECONCILE_REMOVAL_THRESHOLD"    yaml:"removal_threshold"`
	NewGrace            time.Duration `env:"RECONCILE_NEW_GRACE"            yaml:"new_grace"`
}

// CrawlConfig controls run dispatch and scheduled jobs.
type CrawlConfig struct {
	Workers         int           `env:"CRAWL_WORKERS"     yaml:"workers"`
	URLs            []string      `env:"CRAWL_URLS"        yaml:"urls"`
	Schedule        string        `env:"CRAWL_SCHEDULE"    yaml:"schedule"`
	CleanupSchedule string        `env:"CLEANUP_SCHEDULE"  yaml:"cleanup_schedule"`
	Retention       time.Duration `env:"CLEANUP_RETENTION" yaml:"retention"`
}

// Load reads the configuration at path, applies defaults and validates it.
func Load(path string) (*Config, error) {
	cfg, err := LoadWithDefaults[Config](path, func(c *Config) { c.SetDefaults() })
	if err != nil {
		return nil, err
	}

	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return cfg, nil
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	c.Logging.SetDefaults()
	c.Database.setDefaults()
	c.Fetcher.setDefaults()
	c.Inference.setDefaults()
	c.Reconcile.setDefaults()
	c.Crawl.setDefaults()

	if c.Redis.Address == "" {
		c.Redis.Address = DefaultRedisAddress
	}
	if c.Elasticsearch.URL == "" {
		c.Elasticsearch.URL = DefaultESURL
	}
	if c.Elasticsearch.Index == "" {
		c.Elasticsearch.Index = DefaultESIndex
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if len(c.Sources) == 0 {
		c.Sources = DefaultSources()
	}
}

func (d *DatabaseConfig) setDefaults() {
	if d.Enabled == nil {
		d.Enabled = boolPtr(true)
	}
	if d.Host == "" {
		d.Host = DefaultDBHost
	}
	if d.Port == "" {
		d.Port = DefaultDBPort
	}
	if d.User == "" {
		d.User = DefaultDBUser
	}
	if d.DBName == "" {
		d.DBName = DefaultDBName
	}
	if d.SSLMode == "" {
		d.SSLMode = DefaultDBSSLMode
	}
}

// IsEnabled reports whether persistence goes to PostgreSQL.
func (d *DatabaseConfig) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

func (f *FetcherConfig) setDefaults() {
	if f.UserAgent == "" {
		f.UserAgent = DefaultUserAgent
	}
	if f.RequestTimeout <= 0 {
		f.RequestTimeout = DefaultRequestTimeout
	}
	if f.MaxAttempts <= 0 {
		f.MaxAttempts = DefaultFetchAttempts
	}
	if f.InitialBackoff <= 0 {
		f.InitialBackoff = DefaultInitialBackoff
	}
	if f.MaxBackoff <= 0 {
		f.MaxBackoff = DefaultMaxBackoff
	}
	if f.DefaultDelay <= 0 {
		f.DefaultDelay = DefaultHostDelay
	}
	if f.RespectRobots == nil {
		f.RespectRobots = boolPtr(true)
	}
	if f.RenderEnabled == nil {
		f.RenderEnabled = boolPtr(true)
	}
	if f.RenderSettle <= 0 {
		f.RenderSettle = DefaultRenderSettle
	}
	if f.RenderTimeout <= 0 {
		f.RenderTimeout = DefaultRenderTimeout
	}
}

func (i *InferenceConfig) setDefaults() {
	if i.Enabled == nil {
		i.Enabled = boolPtr(true)
	}
	if i.Provider == "" {
		i.Provider = DefaultInferenceProvider
	}
	if i.DailyCallLimit <= 0 {
		i.DailyCallLimit = DefaultDailyCallLimit
	}
	if i.Timeout <= 0 {
		i.Timeout = DefaultInferenceTimeout
	}
	if i.MaxRetries < 0 {
		i.MaxRetries = 0
	} else if i.MaxRetries == 0 {
		i.MaxRetries = DefaultInferenceRetries
	}
	if i.SampleRate <= 0 {
		i.SampleRate = DefaultSampleRate
	}
	if i.Temperature <= 0 {
		i.Temperature = DefaultTemperature
	}
	if i.MaxTokens <= 0 {
		i.MaxTokens = DefaultMaxTokens
	}
	if i.RequestsPerMinute <= 0 {
		i.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if i.RetryDelay <= 0 {
		i.RetryDelay = DefaultInferenceBackoff
	}
	if i.MaxPromptChars <= 0 {
		i.MaxPromptChars = DefaultMaxPromptChars
	}
	if i.BreakerFailures <= 0 {
		i.BreakerFailures = DefaultBreakerFailures
	}
	if i.BreakerTimeout <= 0 {
		i.BreakerTimeout = DefaultBreakerOpenTimeout
	}
}

// IsEnabled reports whether the inference extractor should be used at all.
func (i *InferenceConfig) IsEnabled() bool {
	return i.Enabled == nil || *i.Enabled
}

func (r *ReconcileConfig) setDefaults() {
	if r.SimilarityThreshold <= 0 {
		r.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if r.RemovalThreshold <= 0 {
		r.RemovalThreshold = DefaultRemovalThreshold
	}
	if r.NewGrace <= 0 {
		r.NewGrace = DefaultNewGrace
	}
}

func (c *CrawlConfig) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if len(c.URLs) == 0 {
		c.URLs = DefaultTargetURLs()
	}
	if c.Schedule == "" {
		c.Schedule = DefaultCrawlSchedule
	}
	if c.CleanupSchedule == "" {
		c.CleanupSchedule = DefaultCleanupSchedule
	}
	if c.Retention <= 0 {
		c.Retention = DefaultRetention
	}
}

func boolPtr(b bool) *bool {
	return &b
}
