// Package config loads service settings from FQ_-prefixed environment
// variables.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dukerupert/freelancequest/internal/level"
)

const envPrefix = "FQ"

type Config struct {
	Port                string        `mapstructure:"PORT"`
	DBPath              string        `mapstructure:"DB_PATH"`
	LogLevel            string        `mapstructure:"LOG_LEVEL"`
	LogFormat           string        `mapstructure:"LOG_FORMAT"`
	Timezone            string        `mapstructure:"TIMEZONE"`
	JWTSecret           string        `mapstructure:"JWT_SECRET"`
	InternalAPIKey      string        `mapstructure:"INTERNAL_API_KEY"`
	CatalogPath         string        `mapstructure:"CATALOG_PATH"`
	LevelThresholds     string        `mapstructure:"LEVEL_THRESHOLDS"`
	RedisAddr           string        `mapstructure:"REDIS_ADDR"`
	RedisChannel        string        `mapstructure:"REDIS_CHANNEL"`
	LevelRepairInterval time.Duration `mapstructure:"LEVEL_REPAIR_INTERVAL"`
	AllowedOrigins      []string      `mapstructure:"ALLOWED_ORIGINS"`
	WSRateLimit         int           `mapstructure:"WS_RATE_LIMIT"`
	TrustedProxies      []string      `mapstructure:"TRUSTED_PROXIES"`

	location *time.Location
	curve    level.Table
	proxies  []netip.Prefix
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)

	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_PATH", "freelancequest.db")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("INTERNAL_API_KEY", "")
	v.SetDefault("CATALOG_PATH", "")
	v.SetDefault("LEVEL_THRESHOLDS", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_CHANNEL", "freelancequest:notifications")
	v.SetDefault("LEVEL_REPAIR_INTERVAL", "1h")
	v.SetDefault("ALLOWED_ORIGINS", []string{})
	v.SetDefault("WS_RATE_LIMIT", 30)
	v.SetDefault("TRUSTED_PROXIES", []string{})

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.AllowedOrigins = splitList(cfg.AllowedOrigins)
	cfg.TrustedProxies = splitList(cfg.TrustedProxies)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required secrets and resolves the timezone and level curve.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("FQ_JWT_SECRET is required"))
	}
	if c.InternalAPIKey == "" {
		errs = append(errs, errors.New("FQ_INTERNAL_API_KEY is required"))
	}
	if c.LevelRepairInterval <= 0 {
		errs = append(errs, fmt.Errorf("FQ_LEVEL_REPAIR_INTERVAL must be positive, got %s", c.LevelRepairInterval))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("FQ_LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("FQ_TIMEZONE: %w", err))
	}
	c.location = loc

	curve, err := level.Parse(c.LevelThresholds)
	if err != nil {
		errs = append(errs, fmt.Errorf("FQ_LEVEL_THRESHOLDS: %w", err))
	}
	c.curve = curve

	c.proxies = c.proxies[:0]
	for _, p := range c.TrustedProxies {
		prefix, err := parsePrefix(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("FQ_TRUSTED_PROXIES: %w", err))
			continue
		}
		c.proxies = append(c.proxies, prefix)
	}

	return errors.Join(errs...)
}

// TrustedProxyPrefixes are the networks whose forwarding headers are believed.
func (c *Config) TrustedProxyPrefixes() []netip.Prefix {
	return c.proxies
}

// parsePrefix accepts a CIDR or a single address.
func parsePrefix(s string) (netip.Prefix, error) {
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, err
		}
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// Location is the timezone cadence windows are computed in.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// LevelCurve is the configured xp threshold table.
func (c *Config) LevelCurve() level.Table {
	if c.curve == nil {
		return level.Default()
	}
	return c.curve
}

// splitList accepts both a decoded list and a single comma separated value.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
