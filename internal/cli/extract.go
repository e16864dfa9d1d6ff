package cli

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/biosbias/internal/dedup"
	"github.com/ppiankov/biosbias/internal/model"
	"github.com/ppiankov/biosbias/internal/store"
)

var extractOutput string

// extractCmd represents the extract command
var extractCmd = &cobra.Command{
	Use:   "extract <file.warc.wet[.gz]>...",
	Short: "Extract bios from local WET files",
	Long: `Extract runs the bio extractor over local WET (or WARC) files, plain or
gzip-compressed, without touching the network or the shard cache.

Records are written as JSON lines to stdout, or to --output (gzip when the
name ends in .gz).

Example:
  biosbias extract sample.warc.wet.gz
  biosbias extract shards/*.warc.wet.gz -o sample.bios.jsonl.gz --parallel 4`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	f := extractCmd.Flags()
	f.StringVarP(&extractOutput, "output", "o", "", "output file (default: stdout)")
	f.IntP("parallel", "p", 0, "number of files processed concurrently")
	f.String("titles", "", "title catalog file (YAML or JSON)")
	f.Int("min-length", 0, "minimum line and bio length (default 150)")
}

var extractBindings = map[string]string{
	"concurrency.workers": "parallel",
	"extract.titles_file": "titles",
	"extract.min_length":  "min-length",
}

func runExtract(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd, extractBindings); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Cache.Enabled = false

	logger, err := newLogger(cfg, "")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	p, err := buildPipeline(cfg, nil, logger)
	if err != nil {
		return err
	}

	results := make([][]model.BioRecord, len(args))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(max(cfg.Concurrency.Workers, 1))
	for i, file := range args {
		g.Go(func() error {
			records, err := p.ProcessFile(ctx, file)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			logger.Info("extracted", zap.String("file", file), zap.Int("bios", len(records)))
			results[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var all []model.BioRecord
	for _, records := range results {
		all = append(all, records...)
	}
	all = dedup.Exact(all)

	if extractOutput != "" {
		if err := store.WriteRecords(extractOutput, all); err != nil {
			return fmt.Errorf("write records: %w", err)
		}
		fmt.Fprintf(os.Stderr, "%s Wrote %d bios to '%s'\n", okMark(), len(all), extractOutput)
		return nil
	}

	w := bufio.NewWriter(os.Stdout)
	if err := store.EncodeRecords(w, all, store.CompressionNone); err != nil {
		return err
	}
	return w.Flush()
}
