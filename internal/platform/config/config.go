package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the process configuration, read from the environment.
type Config struct {
	DatabaseURL     string        `envconfig:"DATABASE_URL" required:"true"`
	DatabaseDriver  string        `envconfig:"DATABASE_DRIVER" default:"pgx"`
	MaxOpenConns    int           `envconfig:"DATABASE_MAX_OPEN_CONNS" default:"20"`
	ConnMaxLifetime time.Duration `envconfig:"DATABASE_CONN_MAX_LIFETIME" default:"30m"`

	Addr          string `envconfig:"HTTP_ADDR" default:":8080"`
	JWTSigningKey string `envconfig:"JWT_SIGNING_KEY" default:"dev-secret-key-change-in-production"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat     string `envconfig:"LOG_FORMAT" default:"json"`

	// BlockedDomains are hosts that cannot be linked as URL aliases.
	BlockedDomains []string `envconfig:"BLOCKED_URL_DOMAINS"`

	Import Import
	Kafka  Kafka
}

// Import tunes the bibliographic importer.
type Import struct {
	BatchSize       int     `envconfig:"IMPORT_BATCH_SIZE" default:"100"`
	Similarity      float64 `envconfig:"IMPORT_TITLE_SIMILARITY" default:"0.5"`
	AmbiguousPolicy string  `envconfig:"IMPORT_AMBIGUOUS_POLICY" default:"create"`
	// Schedule is a cron expression; empty disables scheduled harvests.
	Schedule       string        `envconfig:"HARVEST_SCHEDULE"`
	Dir            string        `envconfig:"HARVEST_DIR" default:"./harvest"`
	Sources        []string      `envconfig:"HARVEST_SOURCES" default:"arxiv"`
	CategoriesFile string        `envconfig:"CATEGORIES_FILE" default:"./configs/categories.yaml"`
	LeaseTTL       time.Duration `envconfig:"IMPORT_LEASE_TTL" default:"10m"`
	CrossrefMailto string        `envconfig:"CROSSREF_MAILTO"`
	// Enrich fetches Crossref metadata for newly linked DOIs after a run.
	Enrich bool `envconfig:"IMPORT_ENRICH" default:"false"`
}

// Kafka configures the feed outbox relay. No brokers disables it.
type Kafka struct {
	Brokers      []string      `envconfig:"KAFKA_BROKERS"`
	Topic        string        `envconfig:"KAFKA_FEED_TOPIC" default:"litgraph.feed"`
	RelayBatch   int           `envconfig:"KAFKA_RELAY_BATCH" default:"100"`
	RelayEvery   time.Duration `envconfig:"KAFKA_RELAY_INTERVAL" default:"2s"`
	ClientID     string        `envconfig:"KAFKA_CLIENT_ID" default:"litgraph"`
	EnsureTopic  bool          `envconfig:"KAFKA_ENSURE_TOPIC" default:"true"`
	Partitions   int32         `envconfig:"KAFKA_TOPIC_PARTITIONS" default:"3"`
	Replications int16         `envconfig:"KAFKA_TOPIC_REPLICATION" default:"1"`
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.Import.BatchSize <= 0 {
		return fmt.Errorf("IMPORT_BATCH_SIZE must be positive, got %d", c.Import.BatchSize)
	}
	if c.Import.Similarity < 0 || c.Import.Similarity > 1 {
		return fmt.Errorf("IMPORT_TITLE_SIMILARITY must be within [0, 1], got %v", c.Import.Similarity)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}

// KafkaEnabled reports whether feed events are relayed to a broker.
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}
