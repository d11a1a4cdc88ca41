package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"rating-service/internal/models"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	BackendRedis  = "redis"
	BackendScylla = "scylla"
	BackendMemory = "memory"
)

type Config struct {
	Environment string

	Server        ServerConfig
	Logging       LoggingConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
	KMS           KMSConfig
	Fingerprint   FingerprintConfig
	RateLimit     RateLimitConfig
	Sweeper       SweeperConfig
	Bucketing     BucketingConfig
	HTTPRateLimit HTTPRateLimitConfig

	SubmissionStore string
	StoreTimeout    time.Duration
	CronSecret      string
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
	TLS            TLSConfig
}

// TLSConfig enables HTTPS on the API listener, either from certificate
// files or through ACME (autocert).
type TLSConfig struct {
	Enabled  bool
	AutoCert bool
	Domain   string
	CertFile string
	KeyFile  string
	CacheDir string
	Email    string
	ACMEPort int
}

type LoggingConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Nodes       []string
	Keyspace    string
	Username    string
	Password    string
	AutoMigrate bool
}

type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	RatingsTopic string
	ArchiveGroup string
}

type ElasticsearchConfig struct {
	Enabled       bool
	URL           string
	Username      string
	Password      string
	CommentsIndex string
}

type ClickhouseConfig struct {
	Enabled  bool
	URL      string
	Username string
	Password string
	Database string
}

type KMSConfig struct {
	Enabled bool
	Region  string
}

// FingerprintConfig holds the static key mixed into identity tokens. Either the
// plaintext pepper or a KMS ciphertext of it may be supplied.
type FingerprintConfig struct {
	Pepper           string
	PepperCiphertext string
}

type RateLimitConfig struct {
	Backend      string
	Window       time.Duration
	VoteQuota    int
	CommentQuota int
}

type SweeperConfig struct {
	Interval        time.Duration
	RetentionMargin time.Duration
}

type BucketingConfig struct {
	LedgerBuckets int
}

type HTTPRateLimitConfig struct {
	Requests int
	Window   time.Duration
}

var (
	current   *Config
	currentMu sync.RWMutex
)

// LoadConfig reads an optional .env file and then the process environment.
// The result becomes the value returned by Get.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", EnvDevelopment),
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", ""),
			Port:           getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:    getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:   getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"https://*"}),
			TLS: TLSConfig{
				Enabled:  getEnvBool("TLS_ENABLED", false),
				AutoCert: getEnvBool("TLS_AUTOCERT", false),
				Domain:   getEnv("TLS_DOMAIN", ""),
				CertFile: getEnv("TLS_CERT_FILE", ""),
				KeyFile:  getEnv("TLS_KEY_FILE", ""),
				CacheDir: getEnv("TLS_AUTOCERT_DIR", "./certs"),
				Email:    getEnv("TLS_EMAIL", ""),
				ACMEPort: getEnvInt("TLS_ACME_PORT", 80),
			},
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 20),
		},
		Scylla: ScyllaConfig{
			Nodes:       getEnvList("SCYLLA_NODES", []string{"localhost:9042"}),
			Keyspace:    getEnv("SCYLLA_KEYSPACE", "ratings"),
			Username:    getEnv("SCYLLA_USERNAME", ""),
			Password:    getEnv("SCYLLA_PASSWORD", ""),
			AutoMigrate: getEnvBool("SCYLLA_AUTO_MIGRATE", false),
		},
		Kafka: KafkaConfig{
			Enabled:      getEnvBool("KAFKA_ENABLED", false),
			Brokers:      getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			RatingsTopic: getEnv("KAFKA_RATINGS_TOPIC", "ratings.submitted"),
			ArchiveGroup: getEnv("KAFKA_ARCHIVE_GROUP", "rating-archiver"),
		},
		Elasticsearch: ElasticsearchConfig{
			Enabled:       getEnvBool("ELASTICSEARCH_ENABLED", false),
			URL:           getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Username:      getEnv("ELASTICSEARCH_USERNAME", ""),
			Password:      getEnv("ELASTICSEARCH_PASSWORD", ""),
			CommentsIndex: getEnv("ELASTICSEARCH_COMMENTS_INDEX", "model-comments"),
		},
		Clickhouse: ClickhouseConfig{
			Enabled:  getEnvBool("CLICKHOUSE_ENABLED", false),
			URL:      getEnv("CLICKHOUSE_URL", "http://localhost:9000"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			Database: getEnv("CLICKHOUSE_DATABASE", "ratings"),
		},
		KMS: KMSConfig{
			Enabled: getEnvBool("KMS_ENABLED", false),
			Region:  getEnv("KMS_REGION", "us-east-1"),
		},
		Fingerprint: FingerprintConfig{
			Pepper:           getEnv("FINGERPRINT_PEPPER", ""),
			PepperCiphertext: getEnv("FINGERPRINT_PEPPER_CIPHERTEXT", ""),
		},
		RateLimit: RateLimitConfig{
			Backend:      strings.ToLower(getEnv("RATE_LIMIT_BACKEND", BackendRedis)),
			Window:       time.Duration(getEnvInt("RATE_LIMIT_WINDOW_MS", 86400000)) * time.Millisecond,
			VoteQuota:    getEnvInt("RATE_LIMIT_VOTE_QUOTA", 1),
			CommentQuota: getEnvInt("RATE_LIMIT_COMMENT_QUOTA", 3),
		},
		Sweeper: SweeperConfig{
			Interval:        getEnvDuration("SWEEPER_INTERVAL", 24*time.Hour),
			RetentionMargin: getEnvDuration("SWEEPER_RETENTION_MARGIN", 24*time.Hour),
		},
		Bucketing: BucketingConfig{
			LedgerBuckets: getEnvInt("LEDGER_BUCKETS", 64),
		},
		HTTPRateLimit: HTTPRateLimitConfig{
			Requests: getEnvInt("HTTP_RATE_LIMIT_REQUESTS", 60),
			Window:   getEnvDuration("HTTP_RATE_LIMIT_WINDOW", time.Minute),
		},
		SubmissionStore: strings.ToLower(getEnv("SUBMISSION_STORE", BackendScylla)),
		StoreTimeout:    getEnvDuration("STORE_TIMEOUT", 5*time.Second),
		CronSecret:      getEnv("CRON_SECRET", ""),
	}

	currentMu.Lock()
	current = cfg
	currentMu.Unlock()

	return cfg
}

// Get returns the configuration loaded last, loading it on first use.
func Get() *Config {
	currentMu.RLock()
	cfg := current
	currentMu.RUnlock()
	if cfg == nil {
		return LoadConfig()
	}
	return cfg
}

// Validate reports every setting that would make the service misbehave.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("SERVER_PORT out of range: %d", c.Server.Port))
	}
	switch c.RateLimit.Backend {
	case BackendRedis, BackendScylla, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", c.RateLimit.Backend))
	}
	switch c.SubmissionStore {
	case BackendScylla, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown SUBMISSION_STORE %q", c.SubmissionStore))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW_MS must be positive"))
	}
	if c.RateLimit.VoteQuota < 1 || c.RateLimit.CommentQuota < 1 {
		errs = append(errs, errors.New("rate limit quotas must be at least 1"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}
	if c.Sweeper.Interval <= 0 {
		errs = append(errs, errors.New("SWEEPER_INTERVAL must be positive"))
	}
	if c.Sweeper.RetentionMargin < models.MinSweepMargin {
		errs = append(errs, fmt.Errorf("SWEEPER_RETENTION_MARGIN must be at least %s", models.MinSweepMargin))
	}
	if c.Bucketing.LedgerBuckets < 1 {
		errs = append(errs, errors.New("LEDGER_BUCKETS must be at least 1"))
	}
	if c.KMS.Enabled && c.Fingerprint.PepperCiphertext == "" {
		errs = append(errs, errors.New("KMS_ENABLED requires FINGERPRINT_PEPPER_CIPHERTEXT"))
	}
	if t := c.Server.TLS; t.Enabled {
		if t.AutoCert && t.Domain == "" {
			errs = append(errs, errors.New("TLS_AUTOCERT requires TLS_DOMAIN"))
		}
		if !t.AutoCert && (t.CertFile == "" || t.KeyFile == "") {
			errs = append(errs, errors.New("TLS_ENABLED requires TLS_CERT_FILE and TLS_KEY_FILE or TLS_AUTOCERT"))
		}
	}
	if c.IsProduction() && c.CronSecret == "" {
		errs = append(errs, errors.New("CRON_SECRET is required in production"))
	}

	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func getEnvList(key string, defaultValue []string) []string {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
