package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ppiankov/biosbias/internal/model"
)

// mockProcessor returns one record per shard. Paths listed in failures fail
// that many times before succeeding; a negative count fails forever.
type mockProcessor struct {
	mu       sync.Mutex
	failures map[string]int
	calls    map[string]int
	delay    time.Duration
}

func newMockProcessor(failures map[string]int) *mockProcessor {
	if failures == nil {
		failures = map[string]int{}
	}
	return &mockProcessor{failures: failures, calls: map[string]int{}}
}

func (m *mockProcessor) ProcessShard(ctx context.Context, path string) ([]model.BioRecord, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	m.calls[path]++
	n := m.calls[path]
	left := m.failures[path]
	m.mu.Unlock()

	if left < 0 || n <= left {
		return nil, errors.New("shard unavailable")
	}
	return []model.BioRecord{{Raw: "bio from " + path, Path: path}}, nil
}

func (m *mockProcessor) callCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[path]
}

func shardPaths(n int) []string {
	paths := make([]string, n)
	for i := range paths {
		paths[i] = fmt.Sprintf("crawl-data/CC-MAIN-2017-43/segments/%05d.warc.wet.gz", i)
	}
	return paths
}

func TestBatchProcessor_ProcessPaths(t *testing.T) {
	processor := NewBatchProcessor(newMockProcessor(nil), 4, 0, 50, nil)
	paths := shardPaths(20)

	outcome := processor.ProcessPaths(context.Background(), paths)

	if len(outcome.Results) != 20 {
		t.Fatalf("expected 20 results, got %d", len(outcome.Results))
	}
	for i, res := range outcome.Results {
		if res.Index != i || res.Path != paths[i] {
			t.Errorf("result %d out of order: index %d path %s", i, res.Index, res.Path)
		}
		if len(res.Records) != 1 {
			t.Errorf("expected 1 record for %s, got %d", res.Path, len(res.Records))
		}
	}
	if len(outcome.Failed) != 0 || len(outcome.Unscheduled) != 0 {
		t.Errorf("unexpected failures: %v %v", outcome.Failed, outcome.Unscheduled)
	}
}

func TestBatchProcessor_ProcessPaths_Empty(t *testing.T) {
	processor := NewBatchProcessor(newMockProcessor(nil), 2, 0, 50, nil)

	outcome := processor.ProcessPaths(context.Background(), nil)
	if len(outcome.Results) != 0 || len(outcome.Failed) != 0 {
		t.Errorf("expected empty outcome, got %+v", outcome)
	}
}

func TestBatchProcessor_ProcessPaths_Failures(t *testing.T) {
	paths := shardPaths(6)
	mock := newMockProcessor(map[string]int{paths[1]: -1, paths[4]: -1})
	processor := NewBatchProcessor(mock, 2, 0, 50, nil)

	outcome := processor.ProcessPaths(context.Background(), paths)

	if len(outcome.Results) != 4 {
		t.Errorf("expected 4 results, got %d", len(outcome.Results))
	}
	if len(outcome.Failed) != 2 {
		t.Fatalf("expected 2 failures, got %v", outcome.Failed)
	}
}

func TestBatchProcessor_StopsAfterMaxFailures(t *testing.T) {
	paths := shardPaths(40)
	failures := map[string]int{}
	for _, p := range paths[:20] {
		failures[p] = -1
	}
	mock := newMockProcessor(failures)
	// one worker, 40 chunks of one shard each
	processor := NewBatchProcessor(mock, 1, 3, 50, nil)

	outcome := processor.ProcessPaths(context.Background(), paths)

	if len(outcome.Failed) != 4 {
		t.Errorf("expected to stop after the 4th failure, got %d failures", len(outcome.Failed))
	}
	if len(outcome.Unscheduled) != 36 {
		t.Errorf("expected 36 unscheduled paths, got %d", len(outcome.Unscheduled))
	}
	if mock.callCount(paths[39]) != 0 {
		t.Error("expected no work after the failure budget ran out")
	}
}

func TestBatchProcessor_ProgressReports(t *testing.T) {
	processor := NewBatchProcessor(newMockProcessor(nil), 2, 0, 5, nil)

	var reports []Progress
	processor.OnProgress(func(p Progress) { reports = append(reports, p) })

	processor.ProcessPaths(context.Background(), shardPaths(20))

	if len(reports) != 5 {
		t.Fatalf("expected 5 progress reports, got %d", len(reports))
	}
	last := reports[len(reports)-1]
	if last.Done != 20 || last.Total != 20 || last.FractionPercent != 100 {
		t.Errorf("unexpected final progress %+v", last)
	}
	if last.Records != 20 || last.EstimatedTotal != 20 {
		t.Errorf("expected 20 records, got %d (estimated %d)", last.Records, last.EstimatedTotal)
	}
	if last.Remaining != 0 {
		t.Errorf("expected no remaining time, got %v", last.Remaining)
	}
	for i := 1; i < len(reports); i++ {
		if reports[i].Done <= reports[i-1].Done {
			t.Errorf("progress not increasing: %d then %d", reports[i-1].Done, reports[i].Done)
		}
	}
}

func TestBatchProcessor_ProgressCappedByWorkers(t *testing.T) {
	processor := NewBatchProcessor(newMockProcessor(nil), 4, 0, 50, nil)

	count := 0
	processor.OnProgress(func(Progress) { count++ })
	processor.ProcessPaths(context.Background(), shardPaths(10))

	// 10 paths over 4 workers leaves room for 2 chunks
	if count != 2 {
		t.Errorf("expected 2 progress reports, got %d", count)
	}
}

func TestBatchProcessor_Cancelled(t *testing.T) {
	mock := newMockProcessor(nil)
	mock.delay = 50 * time.Millisecond
	processor := NewBatchProcessor(mock, 1, 0, 1, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 75*time.Millisecond)
	defer cancel()

	paths := shardPaths(10)
	outcome := processor.ProcessPaths(ctx, paths)

	accounted := len(outcome.Results) + len(outcome.Failed) + len(outcome.Unscheduled)
	if accounted != len(paths) {
		t.Errorf("expected every path accounted for, got %d of %d", accounted, len(paths))
	}
	if len(outcome.Unscheduled) == 0 {
		t.Error("expected unscheduled paths after cancellation")
	}
}

func TestBatchProcessor_LogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	paths := shardPaths(2)
	mock := newMockProcessor(map[string]int{paths[0]: -1})
	processor := NewBatchProcessor(mock, 1, 0, 50, zap.New(core))

	processor.ProcessPaths(context.Background(), paths)

	failed := logs.FilterMessage("shard failed").All()
	if len(failed) != 1 {
		t.Fatalf("expected 1 failure log, got %d", len(failed))
	}
	if got := failed[0].ContextMap()["path"]; got != paths[0] {
		t.Errorf("expected path field %s, got %v", paths[0], got)
	}
	if logs.FilterMessage("progress").Len() == 0 {
		t.Error("expected progress logs")
	}
}

func TestHarvest_RetriesFlakyShards(t *testing.T) {
	paths := shardPaths(30)
	mock := newMockProcessor(map[string]int{paths[7]: 1, paths[21]: 2})
	processor := NewBatchProcessor(mock, 3, 100, 50, nil)

	result := processor.Harvest(context.Background(), paths, 2)

	if len(result.Failed) != 0 {
		t.Errorf("expected all shards to succeed after retries, failed: %v", result.Failed)
	}
	if result.Shards != 30 || len(result.Records) != 30 {
		t.Fatalf("expected 30 shards and records, got %d and %d", result.Shards, len(result.Records))
	}
	for i, r := range result.Records {
		if r.Path != paths[i] {
			t.Errorf("record %d from %s, expected input order %s", i, r.Path, paths[i])
		}
	}
	if mock.callCount(paths[21]) != 3 {
		t.Errorf("expected 3 attempts for twice-flaky shard, got %d", mock.callCount(paths[21]))
	}
}

func TestHarvest_RetriesExhausted(t *testing.T) {
	paths := shardPaths(30)
	mock := newMockProcessor(map[string]int{paths[3]: -1})
	processor := NewBatchProcessor(mock, 3, 100, 50, nil)

	result := processor.Harvest(context.Background(), paths, 2)

	if len(result.Failed) != 1 || result.Failed[0] != paths[3] {
		t.Errorf("expected %s to fail, got %v", paths[3], result.Failed)
	}
	if mock.callCount(paths[3]) != 3 {
		t.Errorf("expected 1 attempt plus 2 retries, got %d", mock.callCount(paths[3]))
	}
	if len(result.Records) != 29 {
		t.Errorf("expected 29 records, got %d", len(result.Records))
	}
}

func TestHarvest_NoRetryWhenTooManyFail(t *testing.T) {
	paths := shardPaths(10)
	mock := newMockProcessor(map[string]int{paths[0]: 1})
	processor := NewBatchProcessor(mock, 2, 100, 50, nil)

	result := processor.Harvest(context.Background(), paths, 2)

	// one failure out of ten is 10%, which is not below the retry threshold
	if len(result.Failed) != 1 {
		t.Errorf("expected the failure to stand, got %v", result.Failed)
	}
	if mock.callCount(paths[0]) != 1 {
		t.Errorf("expected no retry, got %d attempts", mock.callCount(paths[0]))
	}
}

func TestHarvest_ZeroRetries(t *testing.T) {
	paths := shardPaths(30)
	mock := newMockProcessor(map[string]int{paths[0]: 1})
	processor := NewBatchProcessor(mock, 2, 100, 50, nil)

	result := processor.Harvest(context.Background(), paths, 0)
	if len(result.Failed) != 1 {
		t.Errorf("expected 1 failure without retries, got %v", result.Failed)
	}
}

func TestSplitChunks(t *testing.T) {
	chunks := splitChunks(10, 3)
	want := [][2]int{{0, 3}, {3, 6}, {6, 10}}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(chunks))
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d = %v, want %v", i, chunks[i], want[i])
		}
	}

	if got := splitChunks(2, 5); len(got) != 2 {
		t.Errorf("expected empty chunks dropped, got %v", got)
	}
}

func TestShardResult_GetError(t *testing.T) {
	r1 := &ShardResult{Path: "a", Error: nil}
	if r1.GetError() != nil {
		t.Errorf("expected nil error, got %v", r1.GetError())
	}

	expected := errors.New("fetch failed")
	r2 := &ShardResult{Path: "a", Error: expected}
	if r2.GetError() != expected {
		t.Errorf("expected %v, got %v", expected, r2.GetError())
	}
}

func TestReadPaths(t *testing.T) {
	content := `crawl-data/a.warc.wet.gz
# comment
crawl-data/b.warc.wet.gz

crawl-data/a.warc.wet.gz
   crawl-data/c.warc.wet.gz   `

	paths, err := ReadPaths(strings.NewReader(content))
	if err != nil {
		t.Fatalf("ReadPaths failed: %v", err)
	}

	expected := []string{"crawl-data/a.warc.wet.gz", "crawl-data/b.warc.wet.gz", "crawl-data/c.warc.wet.gz"}
	if len(paths) != len(expected) {
		t.Fatalf("expected %d paths, got %d", len(expected), len(paths))
	}
	for i, p := range paths {
		if p != expected[i] {
			t.Errorf("expected path %s at index %d, got %s", expected[i], i, p)
		}
	}
}

func TestReadPathsFromFile(t *testing.T) {
	tmpfile, err := os.CreateTemp(t.TempDir(), "wet.paths")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tmpfile.WriteString("crawl-data/a.warc.wet.gz\ncrawl-data/b.warc.wet.gz\n"); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	paths, err := ReadPathsFromFile(tmpfile.Name())
	if err != nil {
		t.Fatalf("ReadPathsFromFile failed: %v", err)
	}
	if len(paths) != 2 {
		t.Errorf("expected 2 paths, got %d", len(paths))
	}
}

func TestReadPathsFromFile_NonExistent(t *testing.T) {
	_, err := ReadPathsFromFile("non_existent_file.txt")
	if err == nil {
		t.Error("expected error for non-existent file, got nil")
	}
}
