package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/agenda-events/config"
	"github.com/aluiziolira/agenda-events/models"
	"github.com/aluiziolira/agenda-events/runner"
	"github.com/aluiziolira/agenda-events/scraper"
	"github.com/aluiziolira/agenda-events/store"
)

func main() {
	_ = godotenv.Load()

	defaultCfg := config.DefaultConfig()
	cityDefault := defaultCfg.City
	if value, ok := config.EnvString("SCRAPE_CITY"); ok {
		cityDefault = value
	}
	untilDaysDefault := defaultCfg.UntilDays
	if value, ok, err := config.EnvInt("SCRAPE_UNTIL_DAYS"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SCRAPE_UNTIL_DAYS: %v\n", err)
		os.Exit(1)
	} else if ok {
		untilDaysDefault = value
	}
	delayDefault := defaultCfg.Delay
	if value, ok, err := config.EnvDuration("REQUEST_DELAY_MS"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid REQUEST_DELAY_MS: %v\n", err)
		os.Exit(1)
	} else if ok {
		delayDefault = value
	}
	timeoutDefault := defaultCfg.Timeout
	if value, ok, err := config.EnvDuration("REQUEST_TIMEOUT_MS"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid REQUEST_TIMEOUT_MS: %v\n", err)
		os.Exit(1)
	} else if ok {
		timeoutDefault = value
	}
	retriesDefault := defaultCfg.MaxRetries
	if value, ok, err := config.EnvInt("RETRY_MAX"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid RETRY_MAX: %v\n", err)
		os.Exit(1)
	} else if ok {
		retriesDefault = value
	}
	databaseURL, _ := config.EnvString("DATABASE_URL")

	city := flag.String("city", cityDefault, "City slug to scrape")
	untilDays := flag.Int("until-days", untilDaysDefault, "Future window for marketplace events (days)")
	sourcesFlag := flag.String("sources", "sympla,elcabong", "Comma-separated sources to run (sympla, elcabong, instagram)")
	maxPages := flag.Int("pages", defaultCfg.MaxPages, "Maximum listing pages per source section")
	delay := flag.Duration("delay", delayDefault, "Pause between successive requests to one source")
	timeout := flag.Duration("timeout", timeoutDefault, "Timeout per HTTP request")
	maxRetries := flag.Int("max-retries", retriesDefault, "Maximum retry attempts per page")
	rateLimitPause := flag.Duration("rate-limit-pause", defaultCfg.RateLimitPause, "Pause before retrying a rate-limited request")
	feedFile := flag.String("instagram-feed", "", "Path to the Instagram feed export (JSON)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := defaultCfg
	cfg.City = *city
	cfg.UntilDays = *untilDays
	cfg.MaxPages = *maxPages
	cfg.Delay = *delay
	cfg.Timeout = *timeout
	cfg.MaxRetries = *maxRetries
	cfg.RateLimitPause = *rateLimitPause
	cfg.InstagramFeedFile = *feedFile
	cfg.DatabaseURL = databaseURL
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := scraper.NewMetrics()
	sources, err := buildSources(cfg, metrics, strings.Split(*sourcesFlag, ","))
	if err != nil {
		slog.Error("building sources", slog.Any("error", err))
		os.Exit(1)
	}

	st, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("connecting to store", slog.Any("error", err))
		os.Exit(1)
	}
	defer st.Close()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	slog.Info("starting scrape",
		slog.String("city", cfg.City),
		slog.String("sources", *sourcesFlag),
		slog.Int("until_days", cfg.UntilDays),
	)

	outcomes := runner.New(st, cfg).RunAll(ctx, sources)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(outcomes)
	os.Exit(exitCode(outcomes))
}

func buildSources(cfg *config.Config, metrics *scraper.Metrics, names []string) ([]scraper.Source, error) {
	var sources []scraper.Source
	for _, name := range names {
		switch models.Source(strings.TrimSpace(name)) {
		case models.SourceSympla:
			src, err := scraper.NewSympla(cfg, metrics)
			if err != nil {
				return nil, fmt.Errorf("sympla: %w", err)
			}
			sources = append(sources, src)
		case models.SourceElCabong:
			src, err := scraper.NewElCabong(cfg, metrics)
			if err != nil {
				return nil, fmt.Errorf("elcabong: %w", err)
			}
			sources = append(sources, src)
		case models.SourceInstagram:
			if cfg.InstagramFeedFile == "" {
				return nil, fmt.Errorf("instagram source requires -instagram-feed")
			}
			sources = append(sources, scraper.NewInstagram(cfg.InstagramFeedFile))
		default:
			return nil, fmt.Errorf("unknown source %q", name)
		}
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources selected")
	}
	return sources, nil
}

// exitCode: a single-source invocation fails the process when its source
// failed; multi-source invocations only fail when every source failed.
func exitCode(outcomes []runner.Outcome) int {
	failed := 0
	for _, o := range outcomes {
		if o.Status == models.RunFailed {
			failed++
		}
	}
	if failed == 0 {
		return 0
	}
	if len(outcomes) == 1 || failed == len(outcomes) {
		return 1
	}
	return 0
}

func printSummary(outcomes []runner.Outcome) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")
	for _, o := range outcomes {
		fmt.Printf("  %-10s %-8s fetched=%d valid=%d invalid=%d upserted=%d\n",
			o.Source, o.Status, o.Metrics.Fetched, o.Metrics.Valid, o.Metrics.Invalid, o.Metrics.Upserted)
		if o.Err != nil {
			fmt.Printf("             error: %v\n", o.Err)
		}
	}
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
