package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/biosbias/internal/cache"
	"github.com/ppiankov/biosbias/internal/extract"
	"github.com/ppiankov/biosbias/internal/model"
	"github.com/ppiankov/biosbias/internal/titles"
)

const (
	johnPage = "Welcome to the site.\n" +
		"John Smith is a veteran architect. He designed many buildings. His work is well known."
	janePage = "About the author\n" +
		"Jane Doe is an American architect. She designed many buildings. Her work is well known."
)

type page struct {
	uri  string
	text string
}

// wetShard builds a gzip WET file, one gzip member per record
func wetShard(t *testing.T, pages ...page) []byte {
	t.Helper()
	var out bytes.Buffer

	write := func(warcType, uri, body string) {
		var rec bytes.Buffer
		fmt.Fprintf(&rec, "WARC/1.0\r\nWARC-Type: %s\r\n", warcType)
		if uri != "" {
			fmt.Fprintf(&rec, "WARC-Target-URI: %s\r\n", uri)
		}
		fmt.Fprintf(&rec, "Content-Type: text/plain\r\nContent-Length: %d\r\n\r\n%s\r\n\r\n", len(body), body)

		zw := gzip.NewWriter(&out)
		_, err := zw.Write(rec.Bytes())
		require.NoError(t, err)
		require.NoError(t, zw.Close())
	}

	write("warcinfo", "", "isPartOf: CC-MAIN-2017-43\r\n")
	for _, p := range pages {
		write("conversion", p.uri, p.text)
	}
	return out.Bytes()
}

// memSource serves shards from memory and counts opens
type memSource struct {
	shards map[string][]byte
	opens  atomic.Int32
}

func (m *memSource) Open(_ context.Context, path string) (io.ReadCloser, error) {
	m.opens.Add(1)
	data, ok := m.shards[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func testExtractor(t *testing.T) *extract.Extractor {
	t.Helper()
	catalog, err := titles.NewCatalog(map[string]string{"architect": "architect"})
	require.NoError(t, err)

	cfg := model.DefaultExtractConfig()
	cfg.MinLength = 40
	return extract.NewExtractor(catalog, cfg, nil)
}

func TestPipeline_ProcessShard(t *testing.T) {
	source := &memSource{shards: map[string][]byte{
		"crawl-data/a.warc.wet.gz": wetShard(t,
			page{"http://a.example/", johnPage},
			page{"http://b.example/", janePage},
			page{"http://a.example/", johnPage},
		),
	}}
	p := NewPipeline(source, testExtractor(t), nil, 100000, nil)

	records, err := p.ProcessShard(context.Background(), "crawl-data/a.warc.wet.gz")
	require.NoError(t, err)
	require.Len(t, records, 2, "duplicate page collapses within the shard")

	assert.Equal(t, model.NewName("John", "", "Smith"), records[0].Name)
	assert.Equal(t, "http://a.example/", records[0].URI)
	assert.Equal(t, "crawl-data/a.warc.wet.gz", records[0].Path)
	assert.Equal(t, model.GenderFemale, records[1].Gender)
}

func TestPipeline_ProcessShard_Empty(t *testing.T) {
	source := &memSource{shards: map[string][]byte{
		"empty.wet.gz": wetShard(t, page{"http://c.example/", "Nothing to see here."}),
	}}
	p := NewPipeline(source, testExtractor(t), nil, 100000, nil)

	records, err := p.ProcessShard(context.Background(), "empty.wet.gz")
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestPipeline_ProcessShard_Missing(t *testing.T) {
	p := NewPipeline(&memSource{}, testExtractor(t), nil, 100000, nil)

	_, err := p.ProcessShard(context.Background(), "missing.wet.gz")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPipeline_ProcessShard_Corrupt(t *testing.T) {
	source := &memSource{shards: map[string][]byte{"bad.wet.gz": []byte("WARC/1.0\r\nbroken")}}
	p := NewPipeline(source, testExtractor(t), nil, 100000, nil)

	_, err := p.ProcessShard(context.Background(), "bad.wet.gz")
	assert.Error(t, err)
}

func TestPipeline_ProcessShard_UsesCache(t *testing.T) {
	source := &memSource{shards: map[string][]byte{
		"a.wet.gz": wetShard(t, page{"http://a.example/", johnPage}),
	}}
	shardCache := cache.NewShardCache(cache.NewMemoryCache(time.Minute, time.Minute), "fp")
	p := NewPipeline(source, testExtractor(t), shardCache, 100000, nil)

	first, err := p.ProcessShard(context.Background(), "a.wet.gz")
	require.NoError(t, err)
	second, err := p.ProcessShard(context.Background(), "a.wet.gz")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), source.opens.Load())
}

func TestPipeline_ProcessShard_Cancelled(t *testing.T) {
	source := &memSource{shards: map[string][]byte{
		"a.wet.gz": wetShard(t, page{"http://a.example/", johnPage}),
	}}
	p := NewPipeline(source, testExtractor(t), nil, 100000, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.ProcessShard(ctx, "a.wet.gz")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPipeline_ProcessFile_Uncompressed(t *testing.T) {
	var buf bytes.Buffer
	body := johnPage
	fmt.Fprintf(&buf, "WARC/1.0\r\nWARC-Type: conversion\r\nWARC-Target-URI: http://a.example/\r\n"+
		"Content-Length: %d\r\n\r\n%s\r\n\r\n", len(body), body)

	path := filepath.Join(t.TempDir(), "local.warc.wet")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	p := NewPipeline(nil, testExtractor(t), nil, 100000, nil)
	records, err := p.ProcessFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, path, records[0].Path)
}

func TestPipeline_PageTruncation(t *testing.T) {
	long := "Some of the text." + strings.Repeat(" filler", 20) + "\n" +
		"John Smith is a veteran architect. He designed many buildings. His work is well known."
	source := &memSource{shards: map[string][]byte{
		"a.wet.gz": wetShard(t, page{"http://a.example/", long}),
	}}

	p := NewPipeline(source, testExtractor(t), nil, 1000, nil)
	records, err := p.ProcessShard(context.Background(), "a.wet.gz")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	p = NewPipeline(source, testExtractor(t), nil, 100, nil)
	records, err = p.ProcessShard(context.Background(), "a.wet.gz")
	require.NoError(t, err)
	assert.Empty(t, records, "bio beyond the page limit is cut off")
}

func TestPipeline_NoSource(t *testing.T) {
	p := NewPipeline(nil, testExtractor(t), nil, 100000, nil)
	_, err := p.ProcessShard(context.Background(), "a.wet.gz")
	assert.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	cfg := model.DefaultExtractConfig()
	base := Fingerprint(cfg, []string{"architect=architect"})

	assert.Equal(t, base, Fingerprint(cfg, []string{"architect=architect"}))
	assert.NotEqual(t, base, Fingerprint(cfg, []string{"architect=designer"}))

	cfg.MinLength = 40
	assert.NotEqual(t, base, Fingerprint(cfg, []string{"architect=architect"}))
}

func TestPipeline_ComposesAccents(t *testing.T) {
	decomposed := "Welcome to the site.\n" +
		"Jose\u0301 Garcia is a veteran architect. He designed many buildings. His work is well known."
	source := &memSource{shards: map[string][]byte{
		"a.wet.gz": wetShard(t, page{"http://a.example/", decomposed}),
	}}
	p := NewPipeline(source, testExtractor(t), nil, 100000, nil)

	records, err := p.ProcessShard(context.Background(), "a.wet.gz")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.NewName("Jos\u00e9", "", "Garcia"), records[0].Name)
}
