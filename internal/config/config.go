package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  Server  `yaml:"server"`
	Storage Storage `yaml:"storage"`
	Prices  Prices  `yaml:"prices"`
	Tweets  Tweets  `yaml:"tweets"`
	Logging Logging `yaml:"logging"`
}

// Server configures the HTTP API. WriteTimeout bounds a whole response,
// including a live multi-chunk price fetch.
type Server struct {
	Port         string        `yaml:"port"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type Storage struct {
	DBPath string `yaml:"db_path"`
}

// Prices configures the price source and the chunked fetch.
type Prices struct {
	RefDataURL     string        `yaml:"ref_data_url"`
	ChartEndpoint  string        `yaml:"chart_endpoint"`
	ChunkSize      int           `yaml:"chunk_size"`
	ChunkDelay     time.Duration `yaml:"chunk_delay"`
	MaxAttempts    int           `yaml:"max_attempts"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	MissingSymbols string        `yaml:"missing_symbols"`
}

type Tweets struct {
	BaseURL   string `yaml:"base_url"`
	Dir       string `yaml:"dir"`
	PoolSize  int    `yaml:"pool_size"`
	Overwrite bool   `yaml:"overwrite"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		Server:  Server{Port: "8080", WriteTimeout: 10 * time.Minute},
		Storage: Storage{DBPath: "stocksent.db"},
		Prices: Prices{
			RefDataURL:     "https://api.iextrading.com/1.0/ref-data/symbols",
			ChartEndpoint:  "https://api.iextrading.com/1.0/stock",
			ChunkSize:      50,
			ChunkDelay:     20 * time.Second,
			MaxAttempts:    5,
			RetryBaseDelay: 500 * time.Millisecond,
			MissingSymbols: "omit",
		},
		Tweets: Tweets{
			BaseURL:  "https://twitter.com",
			Dir:      "tweets",
			PoolSize: 30,
		},
		Logging: Logging{Level: "info", Format: "text"},
	}
}

// Load starts from the defaults, overlays the YAML file at path and then the
// environment. An empty path, or a path that does not exist, skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path comes from a command-line flag
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Storage.DBPath = getEnv("DB_PATH", cfg.Storage.DBPath)

	cfg.Prices.RefDataURL = getEnv("PRICES_REF_DATA_URL", cfg.Prices.RefDataURL)
	cfg.Prices.ChartEndpoint = getEnv("PRICES_CHART_ENDPOINT", cfg.Prices.ChartEndpoint)
	cfg.Prices.ChunkSize = getEnvInt("PRICES_CHUNK_SIZE", cfg.Prices.ChunkSize)
	cfg.Prices.ChunkDelay = getEnvDuration("PRICES_CHUNK_DELAY", cfg.Prices.ChunkDelay)
	cfg.Prices.MaxAttempts = getEnvInt("PRICES_MAX_ATTEMPTS", cfg.Prices.MaxAttempts)
	cfg.Prices.MissingSymbols = getEnv("PRICES_MISSING_SYMBOLS", cfg.Prices.MissingSymbols)

	cfg.Tweets.BaseURL = getEnv("TWEETS_BASE_URL", cfg.Tweets.BaseURL)
	cfg.Tweets.Dir = getEnv("TWEETS_DIR", cfg.Tweets.Dir)
	cfg.Tweets.PoolSize = getEnvInt("TWEETS_POOL_SIZE", cfg.Tweets.PoolSize)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return fallback
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return d
}
