package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/bulk-article-scraper/internal/clock/system"
	"github.com/JakeFAU/bulk-article-scraper/internal/config"
	"github.com/JakeFAU/bulk-article-scraper/internal/extract"
	collyfetcher "github.com/JakeFAU/bulk-article-scraper/internal/fetcher/colly"
	"github.com/JakeFAU/bulk-article-scraper/internal/id/uuid"
	"github.com/JakeFAU/bulk-article-scraper/internal/input"
	"github.com/JakeFAU/bulk-article-scraper/internal/runner"
	"github.com/JakeFAU/bulk-article-scraper/internal/scrape"
)

// newScrapeCmd creates the 'scrape' subcommand, which runs one bulk scrape
// over the URLs in the given input file.
func newScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape <file>",
		Short: "Scrape every URL listed in a .txt, .csv or .xlsx file",
		Long: `Fetches each URL in the first column of the input file exactly once and
writes <name>-contents.csv and <name>-error.csv to the output directory.
Rows whose extracted text is empty are dropped from the contents file once
the run finishes. A short summary is printed on completion.`,
		Args: cobra.ExactArgs(1),
		RunE: runScrapeCommand,
	}

	flags := cmd.Flags()
	flags.IntP("threads", "t", 100, "number of concurrent workers")
	flags.BoolP("redirects", "r", false, "follow HTTP redirects")
	flags.BoolP("unverified", "u", false, "skip TLS certificate verification")
	flags.IntP("max-retries", "m", 0, "retries per URL for connection errors and retryable statuses")
	flags.Float64P("backoff", "b", 0, "backoff factor; retry n waits factor*2^(n-1) seconds")
	flags.Duration("timeout", 30*time.Second, "per-request timeout")
	flags.String("user-agent", "bulk-article-scraper/1.0", "User-Agent header sent with every request")
	flags.String("output-dir", "exports", "directory for the result files")
	flags.String("metrics-addr", "", "serve /metrics, /healthz and /v1/progress on this address")
	flags.Bool("progress", false, "log per-item progress events")
	flags.Bool("dev", false, "human-readable development logging")
	flags.String("log-level", "", "override the log level (debug, info, warn, error)")

	return cmd
}

func runScrapeCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.GetConfig()
	logger := appInstance.GetLogger()

	src, err := input.Read(args[0])
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	logger.Info("Loaded input",
		zap.String("path", args[0]),
		zap.Int("urls", len(src.Items)),
	)

	coordinator, err := buildCoordinator(cfg, src.Name, appInstance, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := coordinator.Run(ctx, src.Items); err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("scrape interrupted, partial results kept: %w", err)
		}
		return fmt.Errorf("run scrape: %w", err)
	}
	return nil
}

func buildCoordinator(cfg config.Config, name string, appInstance App, out io.Writer) (*runner.Coordinator, error) {
	logger := appInstance.GetLogger()

	policy, err := scrape.NewRetryPolicy(cfg.Retry.MaxRetries, cfg.Retry.BackoffFactor, cfg.Retry.StatusForcelist)
	if err != nil {
		return nil, fmt.Errorf("init retry policy: %w", err)
	}

	fetcher, err := collyfetcher.New(collyfetcher.Config{
		UserAgent:      cfg.HTTP.UserAgent,
		Timeout:        cfg.HTTP.Timeout,
		AllowRedirects: cfg.Scrape.AllowRedirects,
		VerifyTLS:      cfg.Scrape.VerifyTLS,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
	}, policy, logger.Named("fetcher"))
	if err != nil {
		return nil, fmt.Errorf("init fetcher: %w", err)
	}

	coordinator, err := runner.New(
		runner.Config{
			Name:      name,
			OutputDir: cfg.Output.Dir,
			Threads:   cfg.Scrape.Threads,
		},
		fetcher,
		extract.New(logger.Named("extract")),
		uuid.NewUUIDGenerator(),
		system.New(),
		appInstance.GetProgress(),
		out,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("init coordinator: %w", err)
	}
	return coordinator, nil
}
