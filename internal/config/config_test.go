package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("", nil)
	require.NoError(t, err)

	require.Equal(t, 100, cfg.Scrape.Threads)
	require.False(t, cfg.Scrape.AllowRedirects)
	require.True(t, cfg.Scrape.VerifyTLS)
	require.Zero(t, cfg.Retry.MaxRetries)
	require.Zero(t, cfg.Retry.BackoffFactor)
	require.Equal(t, []int{500, 502, 503, 504}, cfg.Retry.StatusForcelist)
	require.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	require.Equal(t, "exports", cfg.Output.Dir)
	require.Empty(t, cfg.Metrics.Addr)
	require.False(t, cfg.Progress.Enabled)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := `
scrape:
  threads: 12
  allow_redirects: true
  verify_tls: false
retry:
  max_retries: 3
  backoff_factor: 0.5
  status_forcelist: [429, 503]
http:
  timeout: 45s
  user_agent: real-agent
  max_body_bytes: 2048
output:
  dir: out
logging:
  development: true
  level: debug
metrics:
  addr: ":9100"
progress:
  enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	require.Equal(t, ScrapeConfig{Threads: 12, AllowRedirects: true, VerifyTLS: false}, cfg.Scrape)
	require.Equal(t, RetryConfig{MaxRetries: 3, BackoffFactor: 0.5, StatusForcelist: []int{429, 503}}, cfg.Retry)
	require.Equal(t, HTTPConfig{Timeout: 45 * time.Second, UserAgent: "real-agent", MaxBodyBytes: 2048}, cfg.HTTP)
	require.Equal(t, "out", cfg.Output.Dir)
	require.Equal(t, LoggingConfig{Development: true, Level: "debug"}, cfg.Logging)
	require.Equal(t, ":9100", cfg.Metrics.Addr)
	require.True(t, cfg.Progress.Enabled)
}

func TestLoadFlagsOverrideFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scrape:\n  threads: 12\nretry:\n  max_retries: 1\n"), 0o600))

	flags := pflag.NewFlagSet("scrape", pflag.ContinueOnError)
	flags.IntP("threads", "t", 100, "")
	flags.BoolP("redirects", "r", false, "")
	flags.BoolP("unverified", "u", false, "")
	flags.IntP("max-retries", "m", 0, "")
	flags.Float64P("backoff", "b", 0, "")
	require.NoError(t, flags.Parse([]string{"-t", "7", "-r", "-u", "-b", "0.25"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	require.Equal(t, 7, cfg.Scrape.Threads, "flag beats file")
	require.True(t, cfg.Scrape.AllowRedirects)
	require.False(t, cfg.Scrape.VerifyTLS)
	require.Equal(t, 1, cfg.Retry.MaxRetries, "unchanged flag keeps file value")
	require.InDelta(t, 0.25, cfg.Retry.BackoffFactor, 1e-9)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BULKSCRAPE_SCRAPE_THREADS", "9")
	t.Setenv("BULKSCRAPE_OUTPUT_DIR", "env-out")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.Equal(t, 9, cfg.Scrape.Threads)
	require.Equal(t, "env-out", cfg.Output.Dir)
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.ErrorContains(t, err, "read config")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scrape:\n  threads: 0\n"), 0o600))
	_, err = Load(path, nil)
	require.ErrorContains(t, err, "scrape.threads must be > 0")
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Scrape: ScrapeConfig{Threads: 1},
		HTTP:   HTTPConfig{Timeout: time.Second},
		Output: OutputConfig{Dir: "exports"},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "threads", mutate: func(c *Config) { c.Scrape.Threads = 0 }, want: "scrape.threads"},
		{name: "retries", mutate: func(c *Config) { c.Retry.MaxRetries = -1 }, want: "retry.max_retries"},
		{name: "backoff", mutate: func(c *Config) { c.Retry.BackoffFactor = -1 }, want: "retry.backoff_factor"},
		{name: "forcelist", mutate: func(c *Config) { c.Retry.StatusForcelist = []int{42} }, want: "retry.status_forcelist"},
		{name: "timeout", mutate: func(c *Config) { c.HTTP.Timeout = 0 }, want: "http.timeout"},
		{name: "body", mutate: func(c *Config) { c.HTTP.MaxBodyBytes = -1 }, want: "http.max_body_bytes"},
		{name: "output", mutate: func(c *Config) { c.Output.Dir = " " }, want: "output.dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
