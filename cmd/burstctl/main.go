package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/analyzercfg"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/engine"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/logging"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/observability"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/schema"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/store"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/trace"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/webhook"
	"github.com/prometheus/client_golang/prometheus"
)

var version = "dev"

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 1 && (args[0] == "--version" || args[0] == "version") {
		fmt.Fprintln(stdout, version)
		return 0
	}

	defaultConfigPath := filepath.Join("config", "analyzer.yaml")
	configPathValue := resolveConfigPath(args, defaultConfigPath)
	cfg := analyzercfg.Default()
	loaded, configErr := analyzercfg.Load(configPathValue)
	if configErr == nil {
		cfg = loaded
	}

	fs := flag.NewFlagSet("burstctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	tracePath := fs.String("trace", "", "trace JSON file to analyze")
	profilePath := fs.String("profile", cfg.Profile.Path, "radio profile file (.yaml or .toml)")
	technology := fs.String("technology", cfg.Profile.Technology, "technology defaults when no profile file is given: 3g|lte|wifi")
	_ = fs.String("config", configPathValue, "analyzer config path")
	outPath := fs.String("out", "-", "report JSON output path ('-' for stdout)")
	burstsOut := fs.String("bursts-out", "", "optional bursts JSONL output path")
	categoriesOut := fs.String("categories-out", "", "optional category summary CSV output path")
	intervalsOut := fs.String("intervals-out", "", "optional radio state intervals JSONL output path")
	schemaPath := fs.String(
		"schema",
		filepath.Join("docs", "contracts", "v1", "burst-report.schema.json"),
		"burst report JSON schema path ('' skips validation)",
	)
	dbPath := fs.String("db", cfg.Storage.Path, "optional SQLite run history path")
	metricsOut := fs.String("metrics-out", cfg.Metrics.Out, "optional Prometheus text exposition output path")
	filterBegin := fs.Float64("filter-begin", cfg.Filter.Begin, "analyze packets at or after this time (s)")
	filterEnd := fs.Float64("filter-end", cfg.Filter.End, "analyze packets up to this time (s), 0 for open")
	workers := fs.Int("workers", cfg.Workers, "periodicity worker count")
	logLevel := fs.String("log-level", cfg.Logging.Level, "log level: debug|info|warn|error")
	logFormat := fs.String("log-format", cfg.Logging.Format, "log format: text|json")
	tracingExporter := fs.String("tracing-exporter", cfg.Tracing.Exporter, "span exporter: none|stdout|otlp")
	webhookEnabled := fs.Bool("webhook-enabled", cfg.Webhook.Enabled, "enable webhook delivery")
	webhookURL := fs.String("webhook-url", cfg.Webhook.URL, "webhook endpoint URL")
	webhookSecret := fs.String("webhook-secret", cfg.Webhook.Secret, "webhook secret for HMAC signature")
	webhookFormat := fs.String("webhook-format", cfg.Webhook.Format, "webhook format: generic|pagerduty")
	webhookTimeoutMS := fs.Int("webhook-timeout-ms", cfg.Webhook.TimeoutMS, "webhook timeout in milliseconds")
	webhookStrict := fs.Bool("webhook-strict", false, "fail command when webhook delivery fails")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	if strings.TrimSpace(*tracePath) == "" {
		fmt.Fprintln(stderr, "missing required -trace")
		fs.Usage()
		return 2
	}

	base := logging.New(logging.Config{Level: *logLevel, Format: *logFormat, Output: stderr})
	ctx, log := logging.WithRunLogger(ctx, base)
	runID := logging.RunIDFromContext(ctx)
	if configErr != nil {
		log.Warn(ctx, "config not loaded, using defaults",
			logging.String("path", configPathValue),
			logging.Err(configErr),
		)
	}

	cfg.Profile.Path = *profilePath
	cfg.Profile.Technology = *technology
	if explicit["technology"] && !explicit["profile"] {
		cfg.Profile.Path = ""
	}
	prof, err := analyzercfg.ResolveProfile(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "failed to resolve profile: %v\n", err)
		return 1
	}

	tp, shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName: cfg.Tracing.ServiceName,
		Exporter:    *tracingExporter,
		Endpoint:    cfg.Tracing.Endpoint,
		Writer:      stderr,
	}, log)
	if err != nil {
		fmt.Fprintf(stderr, "failed to init tracing: %v\n", err)
		return 1
	}
	defer observability.ShutdownWithTimeout(ctx, shutdown, log)

	metrics, err := observability.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		fmt.Fprintf(stderr, "failed to register metrics: %v\n", err)
		return 1
	}

	tr, err := trace.LoadJSON(*tracePath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load trace: %v\n", err)
		return 1
	}

	eng := engine.New(engine.Config{
		Logger:         log,
		Metrics:        metrics,
		TracerProvider: tp,
		Workers:        *workers,
	})
	res, err := eng.Analyze(ctx, tr, &prof, trace.Filter{Begin: *filterBegin, End: *filterEnd})
	if err != nil {
		fmt.Fprintf(stderr, "failed to analyze trace: %v\n", err)
		return 1
	}

	if timings, err := metrics.StageTimings(); err == nil {
		for _, stage := range []string{
			engine.StagePrepare, engine.StageSegment, engine.StagePeriodicity,
			engine.StageClassify, engine.StageSimulate, engine.StageEnergy,
		} {
			log.Debug(ctx, "stage timing",
				logging.String("stage", stage),
				logging.Duration("seconds", timings[stage].Seconds),
			)
		}
	}

	report := schema.BuildReport(runID, time.Now().UTC(), *tracePath, prof, res)
	if *schemaPath != "" {
		if err := schema.ValidateAgainstSchema(*schemaPath, report); err != nil {
			fmt.Fprintf(stderr, "schema validation failed: %v\n", err)
			return 1
		}
	}

	if err := writeJSON(*outPath, stdout, report); err != nil {
		fmt.Fprintf(stderr, "failed writing report: %v\n", err)
		return 1
	}
	if *burstsOut != "" {
		if err := writeJSONL(*burstsOut, stdout, report.Analysis.Bursts); err != nil {
			fmt.Fprintf(stderr, "failed writing bursts: %v\n", err)
			return 1
		}
	}
	if *categoriesOut != "" {
		if err := writeCategoriesCSV(*categoriesOut, stdout, report.Analysis.Categories); err != nil {
			fmt.Fprintf(stderr, "failed writing categories: %v\n", err)
			return 1
		}
	}
	if *intervalsOut != "" {
		if err := writeJSONL(*intervalsOut, stdout, res.Intervals); err != nil {
			fmt.Fprintf(stderr, "failed writing intervals: %v\n", err)
			return 1
		}
	}

	if *dbPath != "" {
		if err := saveRun(ctx, *dbPath, report); err != nil {
			fmt.Fprintf(stderr, "failed to store run: %v\n", err)
			return 1
		}
		log.Info(ctx, "run stored", logging.String("db", *dbPath))
	}

	if *metricsOut != "" {
		if err := writeMetrics(*metricsOut, stdout, metrics); err != nil {
			fmt.Fprintf(stderr, "failed writing metrics: %v\n", err)
			return 1
		}
	}

	if explicit["webhook-url"] {
		*webhookEnabled = true
	}
	if *webhookEnabled {
		if strings.TrimSpace(*webhookURL) == "" {
			msg := "webhook delivery enabled but webhook-url is empty"
			if *webhookStrict {
				fmt.Fprintln(stderr, msg)
				return 1
			}
			log.Warn(ctx, msg)
		} else {
			format, parseErr := webhook.ParseFormat(strings.ToLower(strings.TrimSpace(*webhookFormat)))
			if parseErr != nil {
				fmt.Fprintf(stderr, "invalid webhook-format: %v\n", parseErr)
				return 2
			}
			exporter := webhook.New(*webhookURL, *webhookSecret, format, *webhookTimeoutMS)
			if err := exporter.Send(ctx, report.Summary()); err != nil {
				if *webhookStrict {
					fmt.Fprintf(stderr, "webhook delivery failed: %v\n", err)
					return 1
				}
				log.Warn(ctx, "webhook delivery failed", logging.Err(err))
			}
		}
	}
	return 0
}

func resolveConfigPath(args []string, fallback string) string {
	for idx := 0; idx < len(args); idx++ {
		arg := strings.TrimSpace(args[idx])
		if (arg == "--config" || arg == "-config") && idx+1 < len(args) {
			return strings.TrimSpace(args[idx+1])
		}
		for _, prefix := range []string{"--config=", "-config="} {
			if strings.HasPrefix(arg, prefix) {
				return strings.TrimSpace(strings.TrimPrefix(arg, prefix))
			}
		}
	}
	return fallback
}

func saveRun(ctx context.Context, path string, report schema.BurstReport) error {
	s, err := store.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	_, err = s.SaveRun(ctx, report)
	return err
}
