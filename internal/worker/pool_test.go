package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/biosbias/internal/model"
)

// trackingProcessor records how many shards run at once
type trackingProcessor struct {
	delay   time.Duration
	started chan string // receives each path as it starts, if set

	running atomic.Int32
	peak    atomic.Int32
}

func (p *trackingProcessor) ProcessShard(ctx context.Context, path string) ([]model.BioRecord, error) {
	n := p.running.Add(1)
	defer p.running.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if p.started != nil {
		p.started <- path
	}

	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return []model.BioRecord{{Path: path}}, nil
}

func shardJobs(proc ShardProcessor, paths []string) []*ShardJob {
	jobs := make([]*ShardJob, len(paths))
	for i, p := range paths {
		jobs[i] = &ShardJob{Index: i, Path: p, Processor: proc}
	}
	return jobs
}

func TestNewPool_Workers(t *testing.T) {
	tests := []struct {
		workers int
		want    int
	}{
		{8, 8},
		{0, 1},
		{-3, 1},
	}
	for _, tt := range tests {
		if got := NewPool(context.Background(), tt.workers).workers; got != tt.want {
			t.Errorf("NewPool(%d): expected %d workers, got %d", tt.workers, tt.want, got)
		}
	}
}

func TestPool_RunsEveryShard(t *testing.T) {
	proc := newMockProcessor(nil)
	paths := shardPaths(12)

	pool := NewPool(context.Background(), 3)
	pool.Start()
	for _, job := range shardJobs(proc, paths) {
		pool.Submit(job)
	}
	results := pool.Wait()

	if len(results) != len(paths) {
		t.Fatalf("expected %d results, got %d", len(paths), len(results))
	}
	seen := make(map[int]bool)
	for _, res := range results {
		sr := res.(*ShardResult)
		if sr.Error != nil {
			t.Errorf("%s: unexpected error %v", sr.Path, sr.Error)
		}
		if sr.Path != paths[sr.Index] {
			t.Errorf("result %d carries path %s", sr.Index, sr.Path)
		}
		seen[sr.Index] = true
	}
	if len(seen) != len(paths) {
		t.Errorf("expected %d distinct shards, got %d", len(paths), len(seen))
	}
	for _, p := range paths {
		if n := proc.callCount(p); n != 1 {
			t.Errorf("%s processed %d times", p, n)
		}
	}
}

func TestPool_BoundsConcurrency(t *testing.T) {
	workers := 4
	proc := &trackingProcessor{delay: 10 * time.Millisecond}

	pool := NewPool(context.Background(), workers)
	pool.Start()
	go func() {
		for _, job := range shardJobs(proc, shardPaths(40)) {
			pool.Submit(job)
		}
		pool.Close()
	}()

	count := 0
	for range pool.Results() {
		count++
	}

	if count != 40 {
		t.Errorf("expected 40 results, got %d", count)
	}
	if peak := proc.peak.Load(); peak > int32(workers) {
		t.Errorf("%d shards ran at once with %d workers", peak, workers)
	}
}

func TestPool_ShardErrors(t *testing.T) {
	paths := shardPaths(4)
	proc := newMockProcessor(map[string]int{paths[1]: -1})

	pool := NewPool(context.Background(), 2)
	pool.Start()
	for _, job := range shardJobs(proc, paths) {
		pool.Submit(job)
	}

	var failed []string
	for _, res := range pool.Wait() {
		if res.GetError() != nil {
			failed = append(failed, res.(*ShardResult).Path)
		}
	}
	if len(failed) != 1 || failed[0] != paths[1] {
		t.Errorf("expected only %s to fail, got %v", paths[1], failed)
	}
}

func TestPool_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(ctx, 1)
	pool.Start()

	cancel()

	job := &ShardJob{Path: shardPaths(1)[0], Processor: newMockProcessor(nil)}
	if pool.Submit(job) {
		t.Error("expected Submit to refuse shards after the parent context is cancelled")
	}

	done := make(chan struct{})
	go func() {
		for range pool.Results() {
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("results not closed after parent cancel")
	}
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	pool := NewPool(context.Background(), 2)
	pool.Start()
	pool.Shutdown()

	done := make(chan struct{})
	go func() {
		job := &ShardJob{Path: shardPaths(1)[0], Processor: newMockProcessor(nil)}
		if pool.Submit(job) {
			t.Error("expected Submit to report a closed pool")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit after shutdown blocked")
	}
}

func TestPool_ShutdownCancelsRunningShard(t *testing.T) {
	proc := &trackingProcessor{delay: 5 * time.Second, started: make(chan string, 1)}

	pool := NewPool(context.Background(), 2)
	pool.Start()
	pool.Submit(&ShardJob{Path: shardPaths(1)[0], Processor: proc})
	<-proc.started

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pool.Shutdown()
		for range pool.Results() {
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Shutdown did not cancel the running shard")
	}
}
