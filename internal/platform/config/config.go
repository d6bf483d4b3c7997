// Package config loads platform configuration from defaults, an optional YAML
// file, and environment variable overrides, in that precedence order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the thin HTTP boundary (worker callback + event ingestion).
type ServerConfig struct {
	Host string `json:"host" env:"SERVER_HOST"`
	Port int    `json:"port" env:"SERVER_PORT"`
}

// DatabaseConfig controls the Postgres-backed domain stores.
type DatabaseConfig struct {
	DSN             string `json:"dsn" env:"DATABASE_DSN"`
	Host            string `json:"host" env:"DATABASE_HOST"`
	Port            int    `json:"port" env:"DATABASE_PORT"`
	User            string `json:"user" env:"DATABASE_USER"`
	Password        string `json:"password" env:"DATABASE_PASSWORD"`
	Name            string `json:"name" env:"DATABASE_NAME"`
	SSLMode         string `json:"sslmode" env:"DATABASE_SSLMODE"`
	MaxOpenConns    int    `json:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `json:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	MigrateOnStart  bool   `json:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level  string `json:"level" env:"LOG_LEVEL"`
	Format string `json:"format" env:"LOG_FORMAT"`
}

// ObjectStoreConfig controls the S3-compatible result/report object store.
type ObjectStoreConfig struct {
	Bucket          string `json:"bucket" env:"OBJECTSTORE_BUCKET"`
	Region          string `json:"region" env:"OBJECTSTORE_REGION"`
	Endpoint        string `json:"endpoint" env:"OBJECTSTORE_ENDPOINT"`
	ForcePathStyle  bool   `json:"force_path_style" env:"OBJECTSTORE_FORCE_PATH_STYLE"`
	AccessKeyID     string `json:"access_key_id" env:"OBJECTSTORE_ACCESS_KEY_ID"`
	SecretAccessKey string `json:"secret_access_key" env:"OBJECTSTORE_SECRET_ACCESS_KEY"`
}

// RedisConfig controls the License token cache and per-tenant write locks.
type RedisConfig struct {
	Addr     string `json:"addr" env:"REDIS_ADDR"`
	Password string `json:"password" env:"REDIS_PASSWORD"`
	DB       int    `json:"db" env:"REDIS_DB"`
}

// LicenseManagerConfig controls the License Client collaborator.
type LicenseManagerConfig struct {
	BaseURL        string `json:"base_url" env:"LM_BASE_URL"`
	SigningKey     string `json:"signing_key" env:"LM_SIGNING_KEY"`
	TokenTTLSecs   int    `json:"token_ttl_secs" env:"LM_TOKEN_TTL_SECS"`
	CallTimeoutSec int    `json:"call_timeout_secs" env:"LM_CALL_TIMEOUT_SECS"`
	MaxRetries     int    `json:"max_retries" env:"LM_MAX_RETRIES"`
}

// RuntimeConfig controls worker pool sizes and polling cadences.
type RuntimeConfig struct {
	ShardBatchWorkers   int `json:"shard_batch_workers" env:"RUNTIME_SHARD_BATCH_WORKERS"`
	SIEMPushWorkers     int `json:"siem_push_workers" env:"RUNTIME_SIEM_PUSH_WORKERS"`
	SchedulerPollSecs   int `json:"scheduler_poll_secs" env:"RUNTIME_SCHEDULER_POLL_SECS"`
	SnapshotIntervalMin int `json:"snapshot_interval_min" env:"RUNTIME_SNAPSHOT_INTERVAL_MIN"`
}

// IntegrationsConfig controls the optional external collaborators named in
// §6 (worker dispatch, SIEM push, cron trigger mirroring, event router
// lookup tables, cloud credential secret store). Each URL left empty
// degrades its collaborator to a logging no-op rather than failing startup,
// matching the teacher's conditional HTTP-backed-wiring-or-logged-warning
// pattern for optional runtime dependencies.
type IntegrationsConfig struct {
	EngineSubmitURL         string `json:"engine_submit_url" env:"ENGINE_SUBMIT_URL"`
	EngineJobDefinition     string `json:"engine_job_definition" env:"ENGINE_JOB_DEFINITION"`
	EngineJobQueue          string `json:"engine_job_queue" env:"ENGINE_JOB_QUEUE"`
	SIEMDestinationName     string `json:"siem_destination_name" env:"SIEM_DESTINATION_NAME"`
	SIEMDestinationURL      string `json:"siem_destination_url" env:"SIEM_DESTINATION_URL"`
	SIEMBearerToken         string `json:"siem_bearer_token" env:"SIEM_BEARER_TOKEN"`
	TriggerRegistrarURL     string `json:"trigger_registrar_url" env:"TRIGGER_REGISTRAR_URL"`
	EventRouterSelfAccount  string `json:"event_router_self_account" env:"EVENT_ROUTER_SELF_ACCOUNT"`
	EventRouterMappingsFile string `json:"event_router_mappings_file" env:"EVENT_ROUTER_MAPPINGS_FILE"`
	SecretsEnabled          bool   `json:"secrets_enabled" env:"SECRETS_ENABLED"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server         ServerConfig         `json:"server"`
	Database       DatabaseConfig       `json:"database"`
	Logging        LoggingConfig        `json:"logging"`
	ObjectStore    ObjectStoreConfig    `json:"object_store"`
	Redis          RedisConfig          `json:"redis"`
	LicenseManager LicenseManagerConfig `json:"license_manager"`
	Runtime        RuntimeConfig        `json:"runtime"`
	Integrations   IntegrationsConfig   `json:"integrations"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{
			MaxOpenConns:   10,
			MaxIdleConns:   5,
			MigrateOnStart: true,
			SSLMode:        "disable",
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		ObjectStore: ObjectStoreConfig{
			Bucket: "rule-engine-results",
			Region: "us-east-1",
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		LicenseManager: LicenseManagerConfig{
			TokenTTLSecs:   120,
			CallTimeoutSec: 30,
			MaxRetries:     5,
		},
		Runtime: RuntimeConfig{
			ShardBatchWorkers:   8,
			SIEMPushWorkers:     4,
			SchedulerPollSecs:   5,
			SnapshotIntervalMin: 60,
		},
	}
}

// ConnectionString builds a libpq-style DSN from host parameters.
func (c DatabaseConfig) ConnectionString() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// Load loads configuration from an optional dotenv file, an optional YAML
// file, and environment overrides, in that order.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode errors out when no tagged field has a matching env var;
		// that simply means "no overrides" for a from-defaults-only run.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	applyDatabaseURLOverride(cfg)
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyDatabaseURLOverride lets DATABASE_URL win over a file-configured DSN,
// matching the convention most Postgres-as-a-service providers expect.
func applyDatabaseURLOverride(cfg *Config) {
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		cfg.Database.DSN = dsn
	}
}
