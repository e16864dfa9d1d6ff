// Package store reads and writes bio record files and exports the corpus to
// SQLite.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pierrec/lz4/v4"

	"github.com/ppiankov/biosbias/internal/model"
)

// Compression of a record file, chosen by its extension
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionLZ4
)

// CompressionFor returns the compression implied by a file name: ".gz" is
// gzip, ".lz4" is an LZ4 frame, anything else is plain JSON lines.
func CompressionFor(filename string) Compression {
	switch {
	case strings.HasSuffix(filename, ".gz"):
		return CompressionGzip
	case strings.HasSuffix(filename, ".lz4"):
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// WriteRecords writes records as JSON lines, compressed according to
// CompressionFor. The file is written to a temp name and renamed.
func WriteRecords(filename string, records []model.BioRecord) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filename)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := EncodeRecords(tmp, records, CompressionFor(filename)); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, filename); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}

// EncodeRecords writes records as JSON lines to w
func EncodeRecords(w io.Writer, records []model.BioRecord, compression Compression) error {
	bw := bufio.NewWriterSize(w, 1<<20)
	var out io.Writer = bw

	var zw io.WriteCloser
	switch compression {
	case CompressionGzip:
		zw = gzip.NewWriter(bw)
		out = zw
	case CompressionLZ4:
		zw = lz4.NewWriter(bw)
		out = zw
	}

	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
	}

	if zw != nil {
		if err := zw.Close(); err != nil {
			return fmt.Errorf("compress: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// ReadRecords reads a JSON lines record file written by WriteRecords
func ReadRecords(filename string) ([]model.BioRecord, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open records: %w", err)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = bufio.NewReaderSize(f, 1<<20)
	switch CompressionFor(filename) {
	case CompressionGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip %s: %w", filename, err)
		}
		defer func() { _ = zr.Close() }()
		r = zr
	case CompressionLZ4:
		r = lz4.NewReader(r)
	}

	records, err := DecodeRecords(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return records, nil
}

// DecodeRecords reads JSON lines until EOF
func DecodeRecords(r io.Reader) ([]model.BioRecord, error) {
	var records []model.BioRecord
	dec := json.NewDecoder(r)
	for {
		var rec model.BioRecord
		if err := dec.Decode(&rec); err == io.EOF {
			return records, nil
		} else if err != nil {
			return nil, fmt.Errorf("decode record %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
}

// WriteLines writes one string per line, used for failed path lists
func WriteLines(filename string, lines []string) error {
	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(filename, []byte(content), 0644); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}
	return nil
}
