package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/ppiankov/biosbias/internal/model"
)

// ShardCache stores the records extracted from one shard, gzip-compressed
// JSON lines, keyed by shard path and settings fingerprint
type ShardCache struct {
	store       Cache
	fingerprint string
}

// NewShardCache wraps a byte cache. The fingerprint should change whenever
// extraction settings change.
func NewShardCache(store Cache, fingerprint string) *ShardCache {
	return &ShardCache{
		store:       store,
		fingerprint: fingerprint,
	}
}

// Load returns the cached records of a shard. An empty, non-nil slice is a
// cached shard that produced no records.
func (c *ShardCache) Load(path string) ([]model.BioRecord, bool) {
	data, ok := c.store.Get(CacheKey(path, c.fingerprint))
	if !ok {
		return nil, false
	}

	records, err := decodeRecords(data)
	if err != nil {
		_ = c.store.Delete(CacheKey(path, c.fingerprint))
		return nil, false
	}
	return records, true
}

// Store caches the records of a shard
func (c *ShardCache) Store(path string, records []model.BioRecord) error {
	data, err := encodeRecords(records)
	if err != nil {
		return fmt.Errorf("encode shard %s: %w", path, err)
	}
	return c.store.Set(CacheKey(path, c.fingerprint), data, 0)
}

func encodeRecords(records []model.BioRecord) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	enc := json.NewEncoder(zw)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecords(data []byte) ([]model.BioRecord, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	records := []model.BioRecord{}
	dec := json.NewDecoder(zr)
	for {
		var r model.BioRecord
		if err := dec.Decode(&r); err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}
