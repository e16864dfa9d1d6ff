// Package warc reads WARC and WET archives as published by Common Crawl.
package warc

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Record types
const (
	TypeWarcInfo   = "warcinfo"
	TypeResponse   = "response"
	TypeRequest    = "request"
	TypeMetadata   = "metadata"
	TypeConversion = "conversion"
)

// maxBodyBytes caps a single record body held in memory
const maxBodyBytes = 32 << 20

// ErrMalformed is returned for records whose header block cannot be parsed
var ErrMalformed = errors.New("malformed warc record")

// Record is one WARC record. Header keys are canonicalized by textproto.
type Record struct {
	Version string
	Header  textproto.MIMEHeader
	Body    []byte
}

// Type returns the WARC-Type header
func (r *Record) Type() string {
	return r.Header.Get("WARC-Type")
}

// TargetURI returns the WARC-Target-URI header
func (r *Record) TargetURI() string {
	return r.Header.Get("WARC-Target-URI")
}

// ContentType returns the record's Content-Type header
func (r *Record) ContentType() string {
	return r.Header.Get("Content-Type")
}

// Reader iterates over the records of an uncompressed WARC stream
type Reader struct {
	br     *bufio.Reader
	tp     *textproto.Reader
	closer io.Closer
}

// NewReader creates a reader over an uncompressed WARC stream
func NewReader(r io.Reader) *Reader {
	br := bufio.NewReaderSize(r, 64<<10)
	return &Reader{
		br: br,
		tp: textproto.NewReader(br),
	}
}

// NewGzipReader creates a reader over a gzip-compressed WARC stream. Common
// Crawl files are concatenated gzip members, one per record.
func NewGzipReader(r io.Reader) (*Reader, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	wr := NewReader(zr)
	wr.closer = zr
	return wr, nil
}

// Close releases the decompressor, if any. It does not close the source.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// Next returns the next record, or io.EOF when the stream is exhausted
func (r *Reader) Next() (*Record, error) {
	version, err := r.readVersion()
	if err != nil {
		return nil, err
	}

	header, err := r.tp.ReadMIMEHeader()
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}

	length, err := strconv.ParseInt(strings.TrimSpace(header.Get("Content-Length")), 10, 64)
	if err != nil || length < 0 {
		return nil, fmt.Errorf("%w: bad content length %q", ErrMalformed, header.Get("Content-Length"))
	}

	keep := length
	if keep > maxBodyBytes {
		keep = maxBodyBytes
	}
	body := make([]byte, keep)
	if _, err := io.ReadFull(r.br, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if rest := length - keep; rest > 0 {
		if _, err := io.CopyN(io.Discard, r.br, rest); err != nil {
			return nil, fmt.Errorf("skip body: %w", err)
		}
	}

	return &Record{
		Version: version,
		Header:  header,
		Body:    body,
	}, nil
}

// readVersion skips the blank lines between records and returns the
// "WARC/1.0" line that opens the next one
func (r *Reader) readVersion() (string, error) {
	for {
		line, err := r.tp.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", fmt.Errorf("read version: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "WARC/") {
			return "", fmt.Errorf("%w: unexpected line %q", ErrMalformed, truncateLine(line))
		}
		return line, nil
	}
}

func truncateLine(s string) string {
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}

// bodyReader exposes a record body to parsers that want a bufio.Reader
func bodyReader(b []byte) *bufio.Reader {
	return bufio.NewReader(bytes.NewReader(b))
}
