package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Wisny97/Projet-1/config"
	"github.com/Wisny97/Projet-1/models"
	"github.com/Wisny97/Projet-1/pipeline"
	"github.com/Wisny97/Projet-1/scraper"
	"github.com/Wisny97/Projet-1/store"
)

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scraper [home-url] [output-dir]",
		Short: "Scrape a paginated catalog into one file per category",
		Long: `scraper walks every category listed in the catalog sidebar, follows each
category's pagination, extracts every product page and writes one CSV (or
JSONL) file per category into the output directory.

Settings come from, in order of precedence: flags, SCRAPER_* environment
variables, the --config file, built-in defaults.`,
		Args:         cobra.MaximumNArgs(2),
		SilenceUsage: true,
		RunE:         runScrape,
	}

	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "config file path (yaml)")
	registerFlags(cmd.Flags(), config.DefaultConfig())
	return cmd
}

func registerFlags(flags *pflag.FlagSet, def *config.Config) {
	flags.String(config.KeyHomeURL, def.HomeURL, "catalog home page")
	flags.String(config.KeyOutputDir, def.OutputDir, "directory for per-category files")
	flags.String(config.KeyOutputFormat, def.OutputFormat, "output format: csv, json, or dual")
	flags.StringSlice(config.KeyColumns, def.Columns, "output columns, in order")
	flags.Int(config.KeyParallelism, def.Parallelism, "categories processed concurrently")
	flags.Int(config.KeyMaxPages, def.MaxPages, "maximum listing pages per category")
	flags.Int(config.KeyVisitedCacheSize, def.VisitedCacheSize, "listing pages remembered for cycle detection")
	flags.Int(config.KeyBatchSize, def.BatchSize, "records buffered before each write")
	flags.Duration(config.KeyDelay, def.Delay, "delay between requests")
	flags.Duration(config.KeyRandomDelay, def.RandomDelay, "random jitter added to delay")
	flags.Duration(config.KeyTimeout, def.Timeout, "per-request timeout")
	flags.Int(config.KeyMaxRetries, def.MaxRetries, "maximum retry attempts per address")
	flags.Duration(config.KeyRetryBackoff, def.RetryBackoff, "initial retry backoff")
	flags.Duration(config.KeyRetryBackoffMax, def.RetryBackoffMax, "maximum retry backoff")
	flags.String(config.KeyUserAgent, def.UserAgent, "User-Agent header")
	flags.BoolP(config.KeyVerbose, "v", def.Verbose, "enable verbose logging")
	flags.Bool(config.KeyRespectRobots, def.RespectRobotsTxt, "respect robots.txt directives")
	flags.String(config.KeyMetricsAddr, def.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	flags.String(config.KeyRedisAddr, def.RedisAddr, "Redis address for publishing run status (optional)")
	flags.String(config.KeyRedisPrefix, def.RedisPrefix, "Redis key prefix")
	flags.Duration(config.KeyRedisTTL, def.RedisTTL, "Redis key TTL")
}

func runScrape(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if len(args) > 0 {
		cfg.HomeURL = args[0]
	}
	if len(args) > 1 {
		cfg.OutputDir = args[1]
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	logger.Info("starting scrape",
		slog.String("home_url", cfg.HomeURL),
		slog.String("output_dir", cfg.OutputDir),
		slog.String("format", cfg.OutputFormat),
		slog.Int("workers", cfg.Parallelism),
	)

	s, err := scraper.NewScraper(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialise scraper: %w", err)
	}

	factory, err := pipeline.NewWriterFactory(cfg.OutputDir, cfg.OutputFormat, cfg.Columns)
	if err != nil {
		return fmt.Errorf("create writer factory: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received, waiting for in-flight categories to stop")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && s.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		logger.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	p := pipeline.NewPipeline(ctx, s, factory, cfg, logger)

	var reports *store.RedisReportStore
	if cfg.RedisAddr != "" {
		reports = store.NewRedisReportStore(cfg.RedisAddr, cfg.RedisPrefix, cfg.RedisTTL)
		defer reports.Close()
		p.OnReport(func(report models.CategoryReport) {
			publishCategory(logger, reports, s.RunID, report)
		})
		logger.Info("publishing run status", slog.String("redis_addr", cfg.RedisAddr), slog.String("run_id", s.RunID))
	}

	p.Start(cfg.Parallelism)
	if cfg.Verbose {
		p.StartProgressReporting(10 * time.Second)
	}

	result, err := s.Run(ctx, p)
	if err != nil {
		logger.Error("scraping failed", slog.Any("error", err))
		return err
	}

	if reports != nil {
		publishRun(logger, reports, *result)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(result)
	return nil
}

func publishCategory(logger *slog.Logger, reports store.ReportStore, runID string, report models.CategoryReport) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := reports.SaveCategory(ctx, runID, report); err != nil {
		logger.Warn("publish category status failed",
			slog.String("category", report.Category.Name),
			slog.Any("error", err),
		)
	}
}

func publishRun(logger *slog.Logger, reports store.ReportStore, result models.RunReport) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := reports.SaveRun(ctx, result); err != nil {
		logger.Warn("publish run status failed", slog.Any("error", err))
	}
}

func printSummary(result *models.RunReport) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")

	duration := result.EndTime.Sub(result.StartTime)
	written := result.TotalWritten()
	itemsPerSec := 0.0
	if duration.Seconds() > 0 {
		itemsPerSec = float64(written) / duration.Seconds()
	}

	fmt.Printf("  Run ID:        %s\n", result.ID)
	fmt.Printf("  Categories:    %d\n", len(result.Categories))
	fmt.Printf("  Records:       %d\n", written)
	fmt.Printf("  Skipped:       %d\n", result.TotalSkipped())
	fmt.Printf("  Requests:      %d\n", result.RequestCount)
	fmt.Printf("  Retries:       %d\n", result.RetryCount)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	failed := result.FailedCategories()
	fmt.Printf("  Failed:        %d\n", len(failed))
	for _, c := range failed {
		fmt.Printf("    - %s: %s\n", c.Category.Name, c.Error)
	}
	fmt.Printf("  Duration:      %v\n", duration)
	fmt.Printf("  Records/sec:   %.2f\n", itemsPerSec)
	fmt.Printf("  Output dir:    %s\n", result.OutputDir)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
