package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g. PRICES_CACHE_TTL_SECONDS.
// Keys are derived from field names only; no bare fallback names are read.
const EnvPrefix = "PRICES"

type Server struct {
	Port              string `json:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec" split_words:"true"`
}

type CoinGecko struct {
	Endpoint              string `json:"endpoint"`
	RequestTimeoutSec     int    `json:"request_timeout_sec" split_words:"true"`
	MaxRequestsPerMinute  int    `json:"max_requests_per_minute" split_words:"true"`
	MinRequestIntervalSec int    `json:"min_request_interval_sec" split_words:"true"`
	Burst                 int    `json:"burst"`
}

type Cache struct {
	TTLSeconds int `json:"ttl_sec" split_words:"true"`
	MaxItems   int `json:"max_items" split_words:"true"`
}

type Log struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type Config struct {
	Server    Server    `json:"server"`
	CoinGecko CoinGecko `json:"coingecko"`
	Cache     Cache     `json:"cache"`
	Log       Log       `json:"log"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 15},
		CoinGecko: CoinGecko{
			Endpoint:             "https://api.coingecko.com/api/v3",
			RequestTimeoutSec:    10,
			MaxRequestsPerMinute: 30,
			Burst:                5,
		},
		Cache: Cache{TTLSeconds: 300, MaxItems: 10000},
		Log:   Log{Level: "info", Format: "console"},
	}
}

// Load reads JSON config from path. If path is empty it falls back to
// ./config.json when present, otherwise defaults. Environment variables
// override file values as PRICES_<SECTION>_<FIELD>, e.g. PRICES_SERVER_PORT
// or PRICES_COINGECKO_MAX_REQUESTS_PER_MINUTE.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("env config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is empty"))
	}
	if c.CoinGecko.Endpoint == "" {
		errs = append(errs, errors.New("coingecko.endpoint is empty"))
	}
	if c.CoinGecko.RequestTimeoutSec <= 0 {
		errs = append(errs, errors.New("coingecko.request_timeout_sec must be positive"))
	}
	if c.Cache.TTLSeconds <= 0 {
		errs = append(errs, errors.New("cache.ttl_sec must be positive"))
	}
	if c.Cache.MaxItems < 0 {
		errs = append(errs, errors.New("cache.max_items must not be negative"))
	}
	return errors.Join(errs...)
}

func (c Cache) TTL() time.Duration { return time.Duration(c.TTLSeconds) * time.Second }

func (c CoinGecko) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

func (s Server) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSec) * time.Second
}
