// Package config loads marketd configuration from YAML with environment
// variable expansion.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all marketd configuration.
type Config struct {
	Listen   string         `yaml:"listen"`
	DBPath   string         `yaml:"db_path"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Cache    CacheConfig    `yaml:"cache"`
	Auth     AuthConfig     `yaml:"auth"`
	Quota    QuotaConfig    `yaml:"quota"`
	Log      LogConfig      `yaml:"log"`
}

// UpstreamConfig defines the CoinGecko upstream endpoint and client limits.
type UpstreamConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`

	// RatePerSecond smooths outbound calls to the public API. Zero disables
	// client-side smoothing.
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// CacheConfig controls the market response cache.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// AuthConfig controls password hashing and token issuance.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// QuotaConfig controls per-user daily admission limits.
type QuotaConfig struct {
	FreeDailyLimit int `yaml:"free_daily_limit"`

	// Timezone names the location used for calendar-day rollover.
	// The counter resets on calendar-date change in this zone, not on a
	// sliding 24h window.
	Timezone string `yaml:"timezone"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		DBPath: "marketd.db",
		Upstream: UpstreamConfig{
			BaseURL:       "https://api.coingecko.com/api/v3",
			Timeout:       10 * time.Second,
			RatePerSecond: 0,
			Burst:         1,
		},
		Cache: CacheConfig{
			TTL: 600 * time.Second,
		},
		Auth: AuthConfig{
			JWTSecret: "CHANGE_ME",
			TokenTTL:  60 * time.Minute,
		},
		Quota: QuotaConfig{
			FreeDailyLimit: 10,
			Timezone:       "UTC",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// Location resolves the configured quota timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Quota.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Quota.Timezone)
	if err != nil {
		return nil, fmt.Errorf("quota timezone: %w", err)
	}
	return loc, nil
}
