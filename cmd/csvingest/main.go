package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"csvingest/internal/config"
	"csvingest/internal/ingest"
	"csvingest/internal/metrics"
	"csvingest/internal/metrics/datadog"
	"csvingest/internal/metrics/prompush"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "csvingest/internal/storage/all"
)

// main loads the job config, overlays CSVINGEST_* environment overrides,
// installs a metrics backend and runs the ingest.
func main() {
	var (
		cfgPath           string
		metricsBackendFlg string
		pushGatewayURLFlg string
		threads           int
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "configs/jobs/sample.json", "job config JSON path")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend (pushgateway, datadog, none); overrides metrics.kind")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.IntVar(&threads, "threads", 0, "system thread budget (overrides scan.threads)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	logger, err := newLogger(*verbose)
	if err != nil {
		fatalf("init logger: %v", err)
	}

	cfg, err := config.LoadFile(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}
	if err := config.ApplyEnv(config.EnvPrefix, &cfg); err != nil {
		fatalf("%v", err)
	}
	if threads > 0 {
		cfg.Scan.Threads = threads
	}

	issues := config.ValidateIngest(cfg)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		logger.Error("configuration is invalid", zap.String("config", cfgPath))
		os.Exit(1)
	}
	if validate {
		logger.Info("configuration is valid", zap.String("config", cfgPath))
		os.Exit(0)
	}

	os.Exit(run(cfg, metricsBackendFlg, pushGatewayURLFlg, logger))
}

// run executes the job and returns the process exit code. Deferred
// shutdown steps run before the caller exits.
func run(cfg config.Ingest, backendFlag, gwFlag string, logger *zap.Logger) int {
	defer func() { _ = logger.Sync() }()
	if flush := setupMetrics(cfg, backendFlag, gwFlag, logger); flush != nil {
		defer flush()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := ingest.New(ingest.Options{PoolSize: cfg.Scan.Threads, Logger: logger})
	if err != nil {
		logger.Error("init engine", zap.Error(err))
		return 1
	}
	defer eng.Close()

	logger.Debug("job",
		zap.Strings("paths", cfg.Source.Paths),
		zap.String("storage", cfg.Storage.Kind),
		zap.String("table", cfg.Storage.DB.Table))

	res, err := eng.Run(ctx, cfg)
	if err != nil {
		logger.Error("ingest failed", zap.Error(err))
		return 1
	}

	fmt.Printf("run=%s files=%d workers=%d rows=%s inserted=%s rejects=%d elapsed=%s\n",
		res.RunID, res.Files, res.Workers,
		humanize.Comma(res.RowsScanned), humanize.Comma(res.RowsInserted),
		res.RejectsWritten, res.Duration.Truncate(time.Millisecond))
	if cfg.Scan.DebugMaxLineLength {
		fmt.Printf("max_line_length=%d\n", res.MaxLineLength)
	}
	return 0
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// setupMetrics installs the selected backend and returns its flush func, or
// nil when metrics are disabled. Selection order: flag, env, config.
func setupMetrics(cfg config.Ingest, backendFlag, gwFlag string, logger *zap.Logger) func() {
	backendName := backendFlag
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	if backendName == "" {
		backendName = cfg.Metrics.Kind
	}
	jobName := cfg.Job
	if jobName == "" {
		jobName = "csvingest"
	}

	var (
		b   metrics.Backend
		err error
	)
	switch backendName {
	case "pushgateway":
		gwURL := gwFlag
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = cfg.Metrics.Options.String("url", "http://localhost:9091")
		}
		b, err = prompush.NewBackend(jobName, gwURL)
		logger.Info("metrics", zap.String("backend", backendName), zap.String("url", gwURL), zap.String("job", jobName))

	case "datadog":
		opts := cfg.Metrics.Options
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       opts.String("addr", "127.0.0.1:8125"),
			Namespace:  opts.String("namespace", "csvingest."),
			GlobalTags: append(opts.StringSlice("tags"), "job:"+jobName),
		})
		logger.Info("metrics", zap.String("backend", backendName), zap.String("job", jobName))

	case "", "none":
		logger.Debug("metrics disabled")
		return nil

	default:
		logger.Warn("unknown metrics backend; metrics disabled", zap.String("backend", backendName))
		return nil
	}
	if err != nil {
		logger.Warn("metrics backend init failed; using nop", zap.String("backend", backendName), zap.Error(err))
		return nil
	}

	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			logger.Warn("metrics flush", zap.Error(err))
		}
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
