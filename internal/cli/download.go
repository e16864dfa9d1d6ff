package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ppiankov/biosbias/internal/cache"
	"github.com/ppiankov/biosbias/internal/dedup"
	"github.com/ppiankov/biosbias/internal/extract"
	"github.com/ppiankov/biosbias/internal/model"
	"github.com/ppiankov/biosbias/internal/pipeline"
	"github.com/ppiankov/biosbias/internal/store"
	"github.com/ppiankov/biosbias/internal/titles"
	"github.com/ppiankov/biosbias/internal/worker"
)

var (
	downloadOutput string
	noCache        bool
	metricsFile    string
)

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download <crawl-id|wet.paths>",
	Short: "Extract bios from every WET shard of a crawl",
	Long: `Download fetches every WET shard listed for a crawl, extracts bios from
each page and writes them as gzip-compressed JSON lines.

The argument is either a crawl id such as 2017-43, resolved through
crawl-data/CC-MAIN-2017-43/wet.paths.gz, or a local file ending in
wet.paths (optionally .gz).

Shards that fail are retried in later rounds unless a tenth or more of
them failed, and scheduling stops once max_failures is exceeded. Failed
paths are written next to the output.

Example:
  biosbias download 2017-43
  biosbias download 2017-43 --parallel 32 --retries 3
  biosbias download sample.wet.paths -o sample.bios.jsonl.gz
  biosbias download 2017-43 --source s3`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	f := downloadCmd.Flags()
	f.StringVarP(&downloadOutput, "output", "o", "", "output file, must end with "+pipeline.OutputSuffix+" (default: <crawl prefix>"+pipeline.OutputSuffix+")")
	f.BoolVar(&noCache, "no-cache", false, "disable the shard result cache")
	f.StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file (textfile collector format)")

	f.IntP("parallel", "p", 0, "number of shards processed concurrently (default: CPU count minus 10%)")
	f.Int("retries", 0, "extra rounds for failed shards (default 2)")
	f.Int("max-failures", 0, "stop scheduling shards after this many failures (default 100)")
	f.String("source", "", "shard source: http or s3 (default http)")
	f.String("base-url", "", "archive base URL for the http source")
	f.Bool("respect-robots", false, "honour robots.txt of the archive host")
	f.String("http-proxy", "", "HTTP proxy URL (overrides HTTP_PROXY env var)")
	f.String("https-proxy", "", "HTTPS proxy URL (overrides HTTPS_PROXY env var)")
	f.String("titles", "", "title catalog file (YAML or JSON)")
}

// downloadBindings maps config keys to download flags
var downloadBindings = map[string]string{
	"concurrency.workers":      "parallel",
	"concurrency.retries":      "retries",
	"concurrency.max_failures": "max-failures",
	"fetch.source":             "source",
	"fetch.base_url":           "base-url",
	"fetch.respect_robots":     "respect-robots",
	"fetch.http_proxy":         "http-proxy",
	"fetch.https_proxy":        "https-proxy",
	"extract.titles_file":      "titles",
}

// bindFlags binds flags of the running command only, since several commands
// share config keys and viper keeps one flag per key
func bindFlags(cmd *cobra.Command, bindings map[string]string) error {
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind --%s: %w", flag, err)
		}
	}
	return nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd, downloadBindings); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if noCache {
		cfg.Cache.Enabled = false
	}

	prefix, err := pipeline.OutputPrefix(args[0])
	if err != nil {
		return err
	}
	output := downloadOutput
	if output == "" {
		output = prefix + pipeline.OutputSuffix
	}
	if !strings.HasSuffix(output, pipeline.OutputSuffix) {
		return fmt.Errorf("output %q must end with %s", output, pipeline.OutputSuffix)
	}
	base := strings.TrimSuffix(output, pipeline.OutputSuffix)
	logFile := base + "log.txt"
	failedFile := base + "failed.txt"

	if err := os.Remove(logFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove old log: %w", err)
	}
	logger, err := newLogger(cfg, logFile)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter := worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)
	source, err := pipeline.NewSource(ctx, cfg, limiter, logger)
	if err != nil {
		return err
	}

	list, err := pipeline.ResolvePaths(ctx, args[0], source)
	if err != nil {
		return err
	}

	p, err := buildPipeline(cfg, source, logger)
	if err != nil {
		return err
	}

	banner("Biosbias Download")
	fmt.Fprintf(os.Stderr, "  Crawl:        %s\n", args[0])
	fmt.Fprintf(os.Stderr, "  Shards:       %d\n", len(list.Paths))
	fmt.Fprintf(os.Stderr, "  Source:       %s\n", cfg.Fetch.Source)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", cfg.Concurrency.Workers)
	fmt.Fprintf(os.Stderr, "  Retries:      %d\n", cfg.Concurrency.Retries)
	fmt.Fprintf(os.Stderr, "  Cache:        %v\n", cfg.Cache.Enabled)
	fmt.Fprintf(os.Stderr, "  Output:       %s\n", output)
	fmt.Fprintf(os.Stderr, "  Log:          %s\n", logFile)
	fmt.Fprintf(os.Stderr, "\n")

	metrics := worker.NewMetrics()
	processor := worker.NewBatchProcessor(p,
		cfg.Concurrency.Workers,
		cfg.Concurrency.MaxFailures,
		cfg.Concurrency.ProgressReports,
		logger,
	).WithMetrics(metrics)
	processor.OnProgress(printProgress)

	start := time.Now()
	result := processor.Harvest(ctx, list.Paths, cfg.Concurrency.Retries)
	records := dedup.Exact(result.Records)

	if err := store.WriteRecords(output, records); err != nil {
		return fmt.Errorf("write records: %w", err)
	}
	logger.Info("wrote bios",
		zap.Int("bios", len(records)),
		zap.Int("shards", result.Shards),
		zap.String("output", output),
	)

	if len(result.Failed) > 0 {
		if err := store.WriteLines(failedFile, result.Failed); err != nil {
			return fmt.Errorf("write failed paths: %w", err)
		}
	} else if err := os.Remove(failedFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("remove stale failed paths", zap.Error(err))
	}

	if metricsFile != "" {
		if err := metrics.WriteTextfile(metricsFile); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	banner("Download Complete")
	fmt.Fprintf(os.Stderr, "  %s Shards:   %d/%d\n", okMark(), result.Shards, len(list.Paths))
	fmt.Fprintf(os.Stderr, "  %s Bios:     %d (%d before cross-shard dedup)\n", okMark(), len(records), len(result.Records))
	if len(result.Failed) > 0 {
		fmt.Fprintf(os.Stderr, "  %s Failed:   %d (see %s)\n", failMark(), len(result.Failed), failedFile)
	}
	if ctx.Err() != nil {
		fmt.Fprintf(os.Stderr, "  %s Interrupted, output is partial\n", warnMark())
	}
	fmt.Fprintf(os.Stderr, "  Elapsed:    %v\n", time.Since(start).Round(time.Second))
	fmt.Fprintf(os.Stderr, "  Output:     %s\n", output)
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}

// buildPipeline wires the title catalog, extractor and shard cache
func buildPipeline(cfg *model.Config, source pipeline.ShardSource, logger *zap.Logger) (*pipeline.Pipeline, error) {
	catalog, err := titles.Load(cfg.Extract.TitlesFile)
	if err != nil {
		return nil, err
	}
	extractor := extract.NewExtractor(catalog, cfg.Extract, logger)

	var shardCache *cache.ShardCache
	if cfg.Cache.Enabled {
		layered := cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL)
		shardCache = cache.NewShardCache(layered, pipeline.Fingerprint(cfg.Extract, catalog.Entries()))
	}

	logger.Debug("pipeline ready",
		zap.Int("titles", catalog.Len()),
		zap.Bool("cache", shardCache != nil),
	)
	return pipeline.NewPipeline(source, extractor, shardCache, cfg.Extract.MaxPageLen, logger), nil
}

func printProgress(p worker.Progress) {
	mark := okMark()
	if p.Failed > 0 {
		mark = warnMark()
	}
	fmt.Fprintf(os.Stderr, "%s %d/%d shards (%d%%) %d bios, ~%d expected, %d failed, %v elapsed, %v remaining\n",
		mark,
		p.Done, p.Total, p.FractionPercent,
		p.Records, p.EstimatedTotal,
		p.Failed,
		p.Elapsed.Round(time.Second), p.Remaining.Round(time.Second),
	)
}
