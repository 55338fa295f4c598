// Package config loads and validates apilog configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Client  ClientConfig  `mapstructure:"client"`
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Export  ExportConfig  `mapstructure:"export"`
	Storage StorageConfig `mapstructure:"storage"`
	Cloud   CloudConfig   `mapstructure:"cloud"`
	DB      DBConfig      `mapstructure:"db"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Events  EventsConfig  `mapstructure:"events"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// ClientConfig drives the export orchestrator talking to a backend.
type ClientConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Token          string        `mapstructure:"token"`
	UserID         string        `mapstructure:"user_id"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	OutputDir      string        `mapstructure:"output_dir"`
	FileBase       string        `mapstructure:"file_base"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
	// ExportRPS limits export submissions per second for each user.
	// Zero disables the limit.
	ExportRPS   float64 `mapstructure:"export_rps"`
	ExportBurst int     `mapstructure:"export_burst"`
	// SeedLogs fills the in-memory log store with sample entries.
	SeedLogs int `mapstructure:"seed_logs"`
}

// AuthConfig defines bearer-token authentication for the backend.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
}

// ExportConfig governs the backend dispatcher and export workers.
type ExportConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	QueueDepth     int           `mapstructure:"queue_depth"`
	PageSize       int           `mapstructure:"page_size"`
	ArtifactPrefix string        `mapstructure:"artifact_prefix"`
	PollDelay      time.Duration `mapstructure:"poll_delay"`
}

// StorageConfig selects where file artifacts are kept on the backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	BaseDir string `mapstructure:"base_dir"`
}

// CloudConfig selects where cloud exports are uploaded.
type CloudConfig struct {
	Backend       string        `mapstructure:"backend"`
	GCSBucket     string        `mapstructure:"gcs_bucket"`
	SignedURLTTL  time.Duration `mapstructure:"signed_url_ttl"`
	PublicBaseURL string        `mapstructure:"public_base_url"`
}

// DBConfig controls access to the log database. An empty DSN selects the
// in-memory log store.
type DBConfig struct {
	DSN       string `mapstructure:"dsn"`
	Table     string `mapstructure:"table"`
	JobsTable string `mapstructure:"jobs_table"`
	MaxConns  int32  `mapstructure:"max_conns"`
}

// QueueConfig selects the export job queue.
type QueueConfig struct {
	Backend   string `mapstructure:"backend"`
	RedisAddr string `mapstructure:"redis_addr"`
	RedisKey  string `mapstructure:"redis_key"`
}

// EventsConfig selects where export completion events are published.
type EventsConfig struct {
	Backend string `mapstructure:"backend"`
}

// PubSubConfig holds metadata for export completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// KafkaConfig locates the Kafka cluster used for completion events.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// MetricsConfig toggles the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// TracingConfig controls OpenTelemetry trace propagation.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("APILOG")
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
	v.SetDefault("client.base_url", "http://localhost:5000/api")
	v.SetDefault("client.token", "")
	v.SetDefault("client.user_id", "")
	v.SetDefault("client.poll_interval", "1s")
	v.SetDefault("client.request_timeout", "30s")
	v.SetDefault("client.output_dir", ".")
	v.SetDefault("client.file_base", "logs_export")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.export_rps", 5.0)
	v.SetDefault("server.export_burst", 10)
	v.SetDefault("server.seed_logs", 250)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token", "")
	v.SetDefault("export.concurrency", 2)
	v.SetDefault("export.queue_depth", 32)
	v.SetDefault("export.page_size", 500)
	v.SetDefault("export.artifact_prefix", "exports")
	v.SetDefault("export.poll_delay", "0s")
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.base_dir", "data/exports")
	v.SetDefault("cloud.backend", "memory")
	v.SetDefault("cloud.gcs_bucket", "")
	v.SetDefault("cloud.signed_url_ttl", "15m")
	v.SetDefault("cloud.public_base_url", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "api_logs")
	v.SetDefault("db.jobs_table", "export_jobs")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("queue.backend", "memory")
	v.SetDefault("queue.redis_addr", "")
	v.SetDefault("queue.redis_key", "apilog:exports")
	v.SetDefault("events.backend", "none")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("tracing.enabled", true)
	v.SetDefault("tracing.service_name", "apilog")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Client.BaseURL == "" {
		return fmt.Errorf("client.base_url must be set")
	}
	if u, err := url.Parse(c.Client.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("client.base_url must be an absolute URL")
	}
	if c.Tracing.Enabled && strings.TrimSpace(c.Tracing.ServiceName) == "" {
		return fmt.Errorf("tracing.service_name must be set when tracing is enabled")
	}
	if c.Client.PollInterval <= 0 {
		return fmt.Errorf("client.poll_interval must be > 0")
	}
	if c.Client.RequestTimeout < 0 {
		return fmt.Errorf("client.request_timeout must be >= 0")
	}
	if strings.TrimSpace(c.Client.FileBase) == "" {
		return fmt.Errorf("client.file_base must be set")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.ExportRPS < 0 {
		return fmt.Errorf("server.export_rps must be >= 0")
	}
	if c.Server.ExportRPS > 0 && c.Server.ExportBurst <= 0 {
		return fmt.Errorf("server.export_burst must be > 0 when server.export_rps is set")
	}
	if c.Auth.Enabled && c.Auth.Token == "" {
		return fmt.Errorf("auth.token must be set when auth is enabled")
	}
	if c.Export.Concurrency <= 0 {
		return fmt.Errorf("export.concurrency must be > 0")
	}
	if c.Export.QueueDepth <= 0 {
		return fmt.Errorf("export.queue_depth must be > 0")
	}
	if c.Export.PageSize <= 0 {
		return fmt.Errorf("export.page_size must be > 0")
	}
	switch c.Storage.Backend {
	case "memory":
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set for the local backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	switch c.Cloud.Backend {
	case "memory":
	case "gcs":
		if c.Cloud.GCSBucket == "" {
			return fmt.Errorf("cloud.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("cloud.backend %q is not supported", c.Cloud.Backend)
	}
	if c.Cloud.SignedURLTTL <= 0 {
		return fmt.Errorf("cloud.signed_url_ttl must be > 0")
	}
	if c.DB.DSN != "" && (c.DB.Table == "" || c.DB.JobsTable == "") {
		return fmt.Errorf("db.table and db.jobs_table must be set when db.dsn is set")
	}
	switch c.Queue.Backend {
	case "memory":
	case "redis":
		if c.Queue.RedisAddr == "" {
			return fmt.Errorf("queue.redis_addr must be set for the redis backend")
		}
	default:
		return fmt.Errorf("queue.backend %q is not supported", c.Queue.Backend)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	switch c.Events.Backend {
	case "none", "memory":
	case "pubsub":
		if c.PubSub.ProjectID == "" {
			return fmt.Errorf("pubsub.project_id must be set for the pubsub events backend")
		}
	case "kafka":
		if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
			return fmt.Errorf("kafka.brokers and kafka.topic must be set for the kafka events backend")
		}
	default:
		return fmt.Errorf("events.backend %q is not supported", c.Events.Backend)
	}
	return nil
}

// EventTopic returns the topic completion events go to for the selected
// events backend.
func (c Config) EventTopic() string {
	switch c.Events.Backend {
	case "pubsub":
		return c.PubSub.TopicName
	case "kafka":
		return c.Kafka.Topic
	case "memory":
		return "export-events"
	default:
		return ""
	}
}
