package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/biosbias/internal/model"
)

// ShardProcessor extracts the bio records of one shard
type ShardProcessor interface {
	ProcessShard(ctx context.Context, path string) ([]model.BioRecord, error)
}

// ShardJob processes one shard path
type ShardJob struct {
	Index     int
	Path      string
	Processor ShardProcessor
}

// Execute executes the shard job
func (j *ShardJob) Execute(ctx context.Context) Result {
	start := time.Now()
	records, err := j.Processor.ProcessShard(ctx, j.Path)
	return &ShardResult{
		Index:    j.Index,
		Path:     j.Path,
		Records:  records,
		Error:    err,
		Duration: time.Since(start),
	}
}

// ShardResult represents the result of a shard job
type ShardResult struct {
	Index    int
	Path     string
	Records  []model.BioRecord
	Error    error
	Duration time.Duration
}

// GetError returns the error from the shard result
func (r *ShardResult) GetError() error {
	return r.Error
}

// Progress is reported after every chunk of shards
type Progress struct {
	Done            int
	Total           int
	Records         int
	EstimatedTotal  int
	Failed          int
	Elapsed         time.Duration
	Remaining       time.Duration
	FractionPercent int
}

// BatchOutcome is the result of one pass over a list of paths
type BatchOutcome struct {
	// Results of completed shards, in input order
	Results []*ShardResult
	// Failed holds the paths whose processing returned an error
	Failed []string
	// Unscheduled holds the paths skipped after the failure budget ran out
	Unscheduled []string
}

// BatchProcessor processes shards concurrently in chunks, reporting progress
// after each chunk and giving up once too many shards have failed
type BatchProcessor struct {
	processor       ShardProcessor
	concurrency     int
	maxFailures     int
	progressReports int
	logger          *zap.Logger
	onProgress      func(Progress)
	metrics         *Metrics
}

// NewBatchProcessor creates a new batch processor. maxFailures <= 0 never
// gives up; progressReports is the maximum number of chunks.
func NewBatchProcessor(processor ShardProcessor, concurrency, maxFailures, progressReports int, logger *zap.Logger) *BatchProcessor {
	if concurrency <= 0 {
		concurrency = 1
	}
	if progressReports <= 0 {
		progressReports = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchProcessor{
		processor:       processor,
		concurrency:     concurrency,
		maxFailures:     maxFailures,
		progressReports: progressReports,
		logger:          logger,
	}
}

// OnProgress registers a callback invoked after each chunk
func (b *BatchProcessor) OnProgress(fn func(Progress)) {
	b.onProgress = fn
}

// WithMetrics records shard outcomes in m
func (b *BatchProcessor) WithMetrics(m *Metrics) *BatchProcessor {
	b.metrics = m
	return b
}

// ProcessPaths runs one pass over paths
func (b *BatchProcessor) ProcessPaths(ctx context.Context, paths []string) *BatchOutcome {
	outcome := &BatchOutcome{}
	if len(paths) == 0 {
		return outcome
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()
	defer pool.Shutdown()

	start := time.Now()
	numChunks := max(1, min(b.progressReports, len(paths)/b.concurrency))
	chunks := splitChunks(len(paths), numChunks)
	records := 0

	for i, c := range chunks {
		go func(lo, hi int) {
			for idx := lo; idx < hi; idx++ {
				if !pool.Submit(&ShardJob{Index: idx, Path: paths[idx], Processor: b.processor}) {
					return
				}
			}
		}(c[0], c[1])

		for n := c[1] - c[0]; n > 0; n-- {
			var res Result
			select {
			case res = <-pool.Results():
			case <-ctx.Done():
			}
			if res == nil {
				outcome.Unscheduled = unfinished(paths, c[0], outcome)
				b.logger.Warn("batch cancelled", zap.Error(ctx.Err()))
				sortResults(outcome)
				return outcome
			}

			sr := res.(*ShardResult)
			b.metrics.observeShard(sr)
			if sr.Error != nil {
				b.logger.Warn("shard failed", zap.String("path", sr.Path), zap.Error(sr.Error))
				outcome.Failed = append(outcome.Failed, sr.Path)
				continue
			}
			outcome.Results = append(outcome.Results, sr)
			records += len(sr.Records)
		}

		done := c[1]
		b.report(progressOf(done, len(paths), records, len(outcome.Failed), i+1, numChunks, time.Since(start)))

		if b.maxFailures > 0 && len(outcome.Failed) > b.maxFailures {
			outcome.Unscheduled = append(outcome.Unscheduled, paths[done:]...)
			b.logger.Error("too many failed shards, stopping",
				zap.Int("failed", len(outcome.Failed)),
				zap.Int("unscheduled", len(outcome.Unscheduled)),
			)
			break
		}
	}

	sortResults(outcome)
	return outcome
}

func (b *BatchProcessor) report(p Progress) {
	b.logger.Info("progress",
		zap.Int("done", p.Done),
		zap.Int("total", p.Total),
		zap.Int("percent", p.FractionPercent),
		zap.Int("records", p.Records),
		zap.Int("estimated_records", p.EstimatedTotal),
		zap.Int("failed", p.Failed),
		zap.Duration("remaining", p.Remaining.Round(time.Second)),
	)
	if b.onProgress != nil {
		b.onProgress(p)
	}
}

func progressOf(done, total, records, failed, chunk, chunks int, elapsed time.Duration) Progress {
	frac := float64(chunk) / float64(chunks)
	return Progress{
		Done:            done,
		Total:           total,
		Records:         records,
		EstimatedTotal:  int(float64(records) / frac),
		Failed:          failed,
		Elapsed:         elapsed,
		Remaining:       time.Duration(float64(elapsed) * (1/frac - 1)),
		FractionPercent: int(frac*100 + 0.5),
	}
}

// splitChunks divides n items into k contiguous [lo, hi) ranges whose sizes
// differ by at most one
func splitChunks(n, k int) [][2]int {
	if k < 1 {
		k = 1
	}
	chunks := make([][2]int, 0, k)
	for i := 0; i < k; i++ {
		lo, hi := n*i/k, n*(i+1)/k
		if hi > lo {
			chunks = append(chunks, [2]int{lo, hi})
		}
	}
	return chunks
}

// unfinished lists the paths from index lo on that have no outcome yet
func unfinished(paths []string, lo int, o *BatchOutcome) []string {
	finished := make(map[string]bool, len(o.Results)+len(o.Failed))
	for _, r := range o.Results {
		finished[r.Path] = true
	}
	for _, p := range o.Failed {
		finished[p] = true
	}

	var rest []string
	for _, p := range paths[lo:] {
		if !finished[p] {
			rest = append(rest, p)
		}
	}
	return rest
}

func sortResults(o *BatchOutcome) {
	sort.Slice(o.Results, func(i, j int) bool {
		return o.Results[i].Index < o.Results[j].Index
	})
}

// HarvestResult aggregates all passes of a harvest
type HarvestResult struct {
	// Records in input path order, each tagged with its shard path
	Records []model.BioRecord
	Shards  int
	Failed  []string
}

// Harvest processes paths and then retries failed shards up to retries more
// times. Retries are skipped when a tenth or more of the paths failed in the
// first pass, which points at a systemic problem rather than flaky shards.
func (b *BatchProcessor) Harvest(ctx context.Context, paths []string, retries int) *HarvestResult {
	index := make(map[string]int, len(paths))
	for i, p := range paths {
		if _, ok := index[p]; !ok {
			index[p] = i
		}
	}

	byIndex := make(map[int][]model.BioRecord)
	collect := func(o *BatchOutcome) {
		for _, r := range o.Results {
			byIndex[index[r.Path]] = r.Records
		}
	}

	outcome := b.ProcessPaths(ctx, paths)
	collect(outcome)
	failed := append(outcome.Failed, outcome.Unscheduled...)

	if len(failed)*10 < len(paths) {
		for round := 1; round <= retries && len(failed) > 0 && ctx.Err() == nil; round++ {
			b.logger.Info("retrying failed shards", zap.Int("round", round), zap.Int("failed", len(failed)))
			b.metrics.observeRetryRound()
			outcome = b.ProcessPaths(ctx, failed)
			collect(outcome)
			failed = append(outcome.Failed, outcome.Unscheduled...)
		}
	} else if len(failed) > 0 {
		b.logger.Warn("too many failures to retry", zap.Int("failed", len(failed)), zap.Int("total", len(paths)))
	}

	keys := make([]int, 0, len(byIndex))
	for k := range byIndex {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	result := &HarvestResult{Shards: len(keys)}
	for _, k := range keys {
		result.Records = append(result.Records, byIndex[k]...)
	}
	sort.Slice(failed, func(i, j int) bool { return index[failed[i]] < index[failed[j]] })
	result.Failed = failed
	return result
}

// ReadPaths reads shard paths, one per line, skipping blank lines, comments
// and duplicates
func ReadPaths(r io.Reader) ([]string, error) {
	var paths []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			paths = append(paths, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan paths: %w", err)
	}

	return paths, nil
}

// ReadPathsFromFile reads shard paths from a plain text file
func ReadPathsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return ReadPaths(file)
}
