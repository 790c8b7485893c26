// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. BULKSCRAPE_SCRAPE_THREADS.
const EnvPrefix = "BULKSCRAPE"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
	Retry    RetryConfig    `mapstructure:"retry"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Output   OutputConfig   `mapstructure:"output"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Progress ProgressConfig `mapstructure:"progress"`
}

// ScrapeConfig governs the worker pool and transport toggles.
type ScrapeConfig struct {
	Threads        int  `mapstructure:"threads"`
	AllowRedirects bool `mapstructure:"allow_redirects"`
	VerifyTLS      bool `mapstructure:"verify_tls"`
}

// RetryConfig configures transport retries.
type RetryConfig struct {
	MaxRetries      int     `mapstructure:"max_retries"`
	BackoffFactor   float64 `mapstructure:"backoff_factor"`
	StatusForcelist []int   `mapstructure:"status_forcelist"`
}

// HTTPConfig configures the HTTP client.
type HTTPConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	MaxBodyBytes int           `mapstructure:"max_body_bytes"`
}

// OutputConfig controls where result files are written.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig enables the metrics endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// ProgressConfig toggles progress event logging.
type ProgressConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"threads":      "scrape.threads",
	"redirects":    "scrape.allow_redirects",
	"max-retries":  "retry.max_retries",
	"backoff":      "retry.backoff_factor",
	"timeout":      "http.timeout",
	"user-agent":   "http.user_agent",
	"output-dir":   "output.dir",
	"metrics-addr": "metrics.addr",
	"progress":     "progress.enabled",
	"dev":          "logging.development",
	"log-level":    "logging.level",
}

// Load builds a Config from defaults, an optional file, the environment and
// flags, in increasing order of precedence. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if err := bindFlags(v, flags); err != nil {
		return Config{}, err
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

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	// --unverified is the inverse of scrape.verify_tls.
	if flag := flags.Lookup("unverified"); flag != nil && flag.Changed {
		unverified, err := flags.GetBool("unverified")
		if err != nil {
			return fmt.Errorf("read unverified flag: %w", err)
		}
		v.Set("scrape.verify_tls", !unverified)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scrape.threads", 100)
	v.SetDefault("scrape.allow_redirects", false)
	v.SetDefault("scrape.verify_tls", true)
	v.SetDefault("retry.max_retries", 0)
	v.SetDefault("retry.backoff_factor", 0.0)
	v.SetDefault("retry.status_forcelist", []int{500, 502, 503, 504})
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.user_agent", "bulk-article-scraper/1.0")
	v.SetDefault("http.max_body_bytes", 10*1024*1024)
	v.SetDefault("output.dir", "exports")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("progress.enabled", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Scrape.Threads <= 0 {
		return fmt.Errorf("scrape.threads must be > 0")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0")
	}
	if c.Retry.BackoffFactor < 0 {
		return fmt.Errorf("retry.backoff_factor must be >= 0")
	}
	for _, code := range c.Retry.StatusForcelist {
		if code < 100 || code > 599 {
			return fmt.Errorf("retry.status_forcelist contains invalid status %d", code)
		}
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.HTTP.MaxBodyBytes < 0 {
		return fmt.Errorf("http.max_body_bytes must be >= 0")
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return fmt.Errorf("output.dir must be set")
	}
	return nil
}
