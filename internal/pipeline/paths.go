package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/ppiankov/biosbias/internal/worker"
)

// OutputSuffix is the required suffix of record files written by download
const OutputSuffix = "bios.jsonl.gz"

// crawlIDRegex matches crawl ids such as "2017-43"
var crawlIDRegex = regexp.MustCompile(`^[0-9]+-[0-9]+$`)

// PathList is a resolved list of shard paths
type PathList struct {
	Paths []string
	// Prefix names output files: "CC-MAIN-2017-43-" or the paths file name
	// without "wet.paths"
	Prefix string
}

// DefaultOutput returns the record file name for this list
func (l *PathList) DefaultOutput() string {
	return l.Prefix + OutputSuffix
}

// OutputPrefix derives the output file prefix from a crawl id or a
// "*wet.paths[.gz]" file name
func OutputPrefix(arg string) (string, error) {
	trimmed := strings.TrimSuffix(arg, ".gz")
	switch {
	case strings.HasSuffix(trimmed, "wet.paths"):
		return strings.TrimSuffix(trimmed, "wet.paths"), nil
	case crawlIDRegex.MatchString(arg):
		return "CC-MAIN-" + arg + "-", nil
	default:
		return "", fmt.Errorf("expecting a crawl id like 2017-43 or a file ending in wet.paths, got %q", arg)
	}
}

// ResolvePaths turns a crawl id or a local "*wet.paths[.gz]" file into shard
// paths. Crawl ids are resolved through the archive's own paths index.
func ResolvePaths(ctx context.Context, arg string, source ShardSource) (*PathList, error) {
	prefix, err := OutputPrefix(arg)
	if err != nil {
		return nil, err
	}

	var r io.ReadCloser
	name := arg
	if crawlIDRegex.MatchString(arg) {
		if source == nil {
			return nil, fmt.Errorf("no shard source to resolve crawl %s", arg)
		}
		name = CrawlIndexPath(arg)
		r, err = source.Open(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
	} else {
		r, err = os.Open(arg)
		if err != nil {
			return nil, fmt.Errorf("open paths file: %w", err)
		}
	}
	defer func() { _ = r.Close() }()

	paths, err := readPathList(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return &PathList{Paths: paths, Prefix: prefix}, nil
}

// CrawlIndexPath is the archive path of a crawl's WET paths index
func CrawlIndexPath(crawlID string) string {
	return fmt.Sprintf("crawl-data/CC-MAIN-%s/wet.paths.gz", crawlID)
}

// readPathList reads a path list, gunzipping it when compressed
func readPathList(r io.Reader) ([]string, error) {
	br, gzipped, err := sniffGzip(r)
	if err != nil {
		return nil, err
	}
	if !gzipped {
		return worker.ReadPaths(br)
	}

	zr, err := gzip.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer func() { _ = zr.Close() }()
	return worker.ReadPaths(zr)
}

// sniffGzip peeks at the gzip magic number without consuming input
func sniffGzip(r io.Reader) (*bufio.Reader, bool, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, false, fmt.Errorf("peek: %w", err)
	}
	return br, len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b, nil
}
