package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/biosbias/internal/dedup"
	"github.com/ppiankov/biosbias/internal/model"
	"github.com/ppiankov/biosbias/internal/normalize"
	"github.com/ppiankov/biosbias/internal/report"
	"github.com/ppiankov/biosbias/internal/store"
)

var (
	dedupOutput string
	dedupSQLite string
	dedupReport string
)

// dedupCmd represents the dedup command
var dedupCmd = &cobra.Command{
	Use:   "dedup <bios.jsonl.gz>...",
	Short: "Merge record files into the final deduplicated corpus",
	Long: `Dedup loads record files written by download, drops ignored titles,
keeps one bio per (name, title) and collapses middle-name variants of the
same person. Each surviving bio gets a normalized copy with pronouns and
name tokens masked.

Example:
  biosbias dedup CC-MAIN-2017-43-bios.jsonl.gz CC-MAIN-2018-05-bios.jsonl.gz -o BIOS.jsonl.gz
  biosbias dedup *-bios.jsonl.gz -o BIOS.jsonl.lz4 --sqlite bios.db --report SUMMARY.md`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDedup,
}

func init() {
	rootCmd.AddCommand(dedupCmd)

	f := dedupCmd.Flags()
	f.StringVarP(&dedupOutput, "output", "o", "BIOS.jsonl.gz", "output file (.gz for gzip, .lz4 for LZ4)")
	f.StringVar(&dedupSQLite, "sqlite", "", "also export the corpus to this SQLite database")
	f.StringVar(&dedupReport, "report", "", "write a Markdown summary by title and gender")
	f.StringSlice("ignore", nil, "title labels to drop (default: titles with too little data)")
	f.String("placeholder", "", "replacement for pronouns and name tokens (default _)")
}

var dedupBindings = map[string]string{
	"dedup.ignore_titles": "ignore",
	"dedup.placeholder":   "placeholder",
}

func runDedup(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd, dedupBindings); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg, "")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	all, err := loadRecordFiles(ctx, args)
	if err != nil {
		return err
	}

	people, stats := dedup.New(cfg.Dedup.IgnoreTitles, logger).Run(all)
	fmt.Fprintf(os.Stderr, "%s %d/%d 'different' name+titles (%.1f%%)\n",
		okMark(), stats.Output, stats.Input-stats.Ignored, percent(stats.Output, stats.Input-stats.Ignored))
	logger.Debug("dedup stats",
		zap.Int("ignored", stats.Ignored),
		zap.Int("after_exact", stats.Exact),
	)

	fmt.Fprintf(os.Stderr, "Processing bios...\n")
	normalize.NewNormalizer(cfg.Dedup.Placeholder).NormalizeAll(people)

	if err := store.WriteRecords(dedupOutput, people); err != nil {
		return fmt.Errorf("write records: %w", err)
	}
	fmt.Fprintf(os.Stderr, "%s Wrote %d bios to '%s'\n", okMark(), len(people), dedupOutput)

	if dedupSQLite != "" {
		if err := exportSQLite(ctx, dedupSQLite, people); err != nil {
			return err
		}
	}
	if dedupReport != "" {
		if err := writeReport(dedupReport, people, args); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%s Wrote summary to '%s'\n", okMark(), dedupReport)
	}
	return nil
}

func writeReport(path string, records []model.BioRecord, sources []string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close report: %w", closeErr)
		}
	}()

	if err := report.NewMarkdownWriter(f).Write(report.Summarize(records), sources); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// loadRecordFiles reads record files concurrently, keeping argument order
func loadRecordFiles(ctx context.Context, files []string) ([]model.BioRecord, error) {
	loaded := make([][]model.BioRecord, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Loading '%s'\n", file)
			records, err := store.ReadRecords(file)
			if err != nil {
				return err
			}
			loaded[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []model.BioRecord
	for _, records := range loaded {
		all = append(all, records...)
	}
	return all, nil
}

func exportSQLite(ctx context.Context, path string, records []model.BioRecord) (err error) {
	db, err := store.OpenSQLite(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := db.Insert(ctx, records); err != nil {
		return err
	}
	counts, err := db.CountByTitle(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "%s Exported %d bios to '%s'\n", okMark(), len(records), path)
	for _, c := range counts {
		fmt.Fprintf(os.Stderr, "    %-24s %s %7d\n", c.Title, c.Gender, c.Count)
	}
	return nil
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}
