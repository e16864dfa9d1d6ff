package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/ppiankov/biosbias/internal/cache"
	"github.com/ppiankov/biosbias/internal/dedup"
	"github.com/ppiankov/biosbias/internal/extract"
	"github.com/ppiankov/biosbias/internal/model"
	"github.com/ppiankov/biosbias/internal/warc"
)

// Pipeline turns archive shards into bio records: fetch, decompress, walk
// the WARC records, extract per page and drop exact duplicates
type Pipeline struct {
	source     ShardSource
	extractor  *extract.Extractor
	cache      *cache.ShardCache
	maxPageLen int
	logger     *zap.Logger
}

// NewPipeline creates a pipeline. source and shardCache may be nil when only
// local files are processed or caching is disabled.
func NewPipeline(source ShardSource, extractor *extract.Extractor, shardCache *cache.ShardCache, maxPageLen int, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		source:     source,
		extractor:  extractor,
		cache:      shardCache,
		maxPageLen: maxPageLen,
		logger:     logger,
	}
}

// ProcessShard extracts the records of one archive shard, consulting the
// result cache first
func (p *Pipeline) ProcessShard(ctx context.Context, path string) ([]model.BioRecord, error) {
	if p.cache != nil {
		if records, ok := p.cache.Load(path); ok {
			p.logger.Debug("shard cache hit", zap.String("path", path), zap.Int("records", len(records)))
			return records, nil
		}
	}
	if p.source == nil {
		return nil, errors.New("no shard source configured")
	}

	rc, err := p.source.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open shard: %w", err)
	}
	defer func() { _ = rc.Close() }()

	records, err := p.ExtractStream(ctx, rc, path)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		if err := p.cache.Store(path, records); err != nil {
			p.logger.Warn("cache store failed", zap.String("path", path), zap.Error(err))
		}
	}
	return records, nil
}

// ProcessFile extracts the records of a local WARC or WET file, compressed
// or not
func (p *Pipeline) ProcessFile(ctx context.Context, filename string) ([]model.BioRecord, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return p.ExtractStream(ctx, f, filename)
}

// ExtractStream reads a WARC stream and returns its records, each tagged
// with path. A decoding error fails the whole stream.
func (p *Pipeline) ExtractStream(ctx context.Context, r io.Reader, path string) ([]model.BioRecord, error) {
	wr, err := newWARCReader(r)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = wr.Close() }()

	var records []model.BioRecord
	pages := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec, err := wr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read archive: %w", err)
		}

		text, ok, err := rec.PageText(p.maxPageLen)
		if err != nil {
			p.logger.Debug("skipping record", zap.String("uri", rec.TargetURI()), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		pages++

		// Decomposed accents would split name parts
		text = norm.NFC.String(text)
		for _, bio := range p.extractor.ExtractFromPage(text, rec.TargetURI()) {
			bio.Path = path
			records = append(records, bio)
		}
	}

	records = dedup.Exact(records)
	p.logger.Debug("shard done",
		zap.String("path", path),
		zap.Int("pages", pages),
		zap.Int("records", len(records)),
	)
	if records == nil {
		records = []model.BioRecord{}
	}
	return records, nil
}

func newWARCReader(r io.Reader) (*warc.Reader, error) {
	br, gzipped, err := sniffGzip(r)
	if err != nil {
		return nil, err
	}
	if gzipped {
		return warc.NewGzipReader(br)
	}
	return warc.NewReader(br), nil
}

// Fingerprint identifies the extraction settings and the title catalog
// entries ("title=label"), so cached shard results are reused only when they
// would be identical
func Fingerprint(cfg model.ExtractConfig, entries []string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%d|%d|%d|", cfg.MinLength, cfg.MaxLineLen, cfg.MaxPrecede, cfg.MaxPageLen)
	h.Write([]byte(strings.Join(entries, "\n")))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
