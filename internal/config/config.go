package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Redis    RedisConfig    `yaml:"redis"`
	Matching MatchingConfig `yaml:"matching"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Vision   VisionConfig   `yaml:"vision"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// RedisConfig controls the optional dedup fingerprint cache. An empty Addr
// disables it; the storage-layer uniqueness constraint remains the
// correctness guarantee either way.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MatchingConfig struct {
	// Threshold is the strict upper bound on Euclidean distance for two
	// faces to belong to the same person. The upstream face model
	// recommends 0.6 for same-person pairs; 0.5 trades recall for
	// precision.
	Threshold    float64 `yaml:"threshold"`
	EmbeddingDim int     `yaml:"embedding_dim"`
	// Backend selects the nearest-neighbor index: "pgvector" (exact) or
	// "hnsw" (approximate in-memory, faster, may change matching
	// decisions).
	Backend string `yaml:"backend"`
}

type IngestConfig struct {
	// ExtractWorkers bounds CPU-heavy embedding extraction. Kept at 1 so
	// extraction cannot starve the host.
	ExtractWorkers int `yaml:"extract_workers"`
	// PersistWorkers bounds concurrent database/object-storage writes.
	PersistWorkers int `yaml:"persist_workers"`
	QueueSize      int `yaml:"queue_size"`
	// MaxDimension is the longest image side after the pre-extraction
	// resize. The content hash is computed on the raw bytes before this.
	MaxDimension int `yaml:"max_dimension"`
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Matching.Threshold == 0 {
		cfg.Matching.Threshold = 0.5
	}
	if cfg.Matching.EmbeddingDim == 0 {
		cfg.Matching.EmbeddingDim = 128
	}
	if cfg.Matching.Backend == "" {
		cfg.Matching.Backend = "pgvector"
	}
	if cfg.Ingest.ExtractWorkers == 0 {
		cfg.Ingest.ExtractWorkers = 1
	}
	if cfg.Ingest.PersistWorkers == 0 {
		cfg.Ingest.PersistWorkers = 3
	}
	if cfg.Ingest.QueueSize == 0 {
		cfg.Ingest.QueueSize = 64
	}
	if cfg.Ingest.MaxDimension == 0 {
		cfg.Ingest.MaxDimension = 1280
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SFP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SFP_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("SFP_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("SFP_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("SFP_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("SFP_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("SFP_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("SFP_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("SFP_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("SFP_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("SFP_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("SFP_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("SFP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SFP_MATCH_THRESHOLD"); v != "" {
		if t, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Matching.Threshold = t
		}
	}
	if v := os.Getenv("SFP_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("SFP_EXTRACT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.ExtractWorkers = n
		}
	}
	if v := os.Getenv("SFP_PERSIST_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.PersistWorkers = n
		}
	}
}
