package warc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRecord(buf *bytes.Buffer, warcType, uri, contentType, body string) {
	fmt.Fprintf(buf, "WARC/1.0\r\n")
	fmt.Fprintf(buf, "WARC-Type: %s\r\n", warcType)
	if uri != "" {
		fmt.Fprintf(buf, "WARC-Target-URI: %s\r\n", uri)
	}
	fmt.Fprintf(buf, "Content-Type: %s\r\n", contentType)
	fmt.Fprintf(buf, "Content-Length: %d\r\n\r\n", len(body))
	buf.WriteString(body)
	buf.WriteString("\r\n\r\n")
}

func sampleWET() []byte {
	var buf bytes.Buffer
	writeRecord(&buf, TypeWarcInfo, "", "application/warc-fields", "software: test\r\n")
	writeRecord(&buf, TypeConversion, "http://a.example/", "text/plain", "First page\nJohn Smith is a poet.")
	writeRecord(&buf, TypeConversion, "http://b.example/", "text/plain", "Second page")
	return buf.Bytes()
}

func TestReader_Next(t *testing.T) {
	r := NewReader(bytes.NewReader(sampleWET()))

	rec, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "WARC/1.0", rec.Version)
	assert.Equal(t, TypeWarcInfo, rec.Type())

	rec, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, TypeConversion, rec.Type())
	assert.Equal(t, "http://a.example/", rec.TargetURI())
	assert.Equal(t, "text/plain", rec.ContentType())
	assert.Equal(t, "First page\nJohn Smith is a poet.", string(rec.Body))

	rec, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "Second page", string(rec.Body))

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_Empty(t *testing.T) {
	_, err := NewReader(strings.NewReader("")).Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_Malformed(t *testing.T) {
	_, err := NewReader(strings.NewReader("HTTP/1.1 200 OK\r\n\r\n")).Next()
	assert.True(t, errors.Is(err, ErrMalformed))

	_, err = NewReader(strings.NewReader("WARC/1.0\r\nWARC-Type: conversion\r\nContent-Length: x\r\n\r\n")).Next()
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestReader_TruncatedBody(t *testing.T) {
	input := "WARC/1.0\r\nWARC-Type: conversion\r\nContent-Length: 100\r\n\r\nshort"
	_, err := NewReader(strings.NewReader(input)).Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestGzipReader_MultiMember(t *testing.T) {
	var compressed bytes.Buffer
	for _, body := range []string{"one", "two"} {
		var rec bytes.Buffer
		writeRecord(&rec, TypeConversion, "http://x.example/"+body, "text/plain", body)

		zw := gzip.NewWriter(&compressed)
		_, err := zw.Write(rec.Bytes())
		require.NoError(t, err)
		require.NoError(t, zw.Close())
	}

	r, err := NewGzipReader(&compressed)
	require.NoError(t, err)
	defer r.Close()

	var bodies []string
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		bodies = append(bodies, string(rec.Body))
	}
	assert.Equal(t, []string{"one", "two"}, bodies)
}

func TestGzipReader_NotGzip(t *testing.T) {
	_, err := NewGzipReader(strings.NewReader("plain text"))
	assert.Error(t, err)
}
