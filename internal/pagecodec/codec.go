// Package pagecodec compresses raw page bodies before they are persisted.
package pagecodec

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// Supported raw content formats.
const (
	FormatBrotli   = "br"
	FormatZlib     = "zlib"
	FormatIdentity = "identity"
)

// Valid reports whether format is a known encoding.
func Valid(format string) bool {
	switch format {
	case FormatBrotli, FormatZlib, FormatIdentity:
		return true
	default:
		return false
	}
}

// Encode compresses data using format.
func Encode(format string, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	var w io.WriteCloser
	switch format {
	case FormatIdentity:
		return append([]byte(nil), data...), nil
	case FormatBrotli:
		w = brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
	case FormatZlib:
		w = zlib.NewWriter(&buf)
	default:
		return nil, fmt.Errorf("pagecodec: unknown format %q", format)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("pagecodec: encode %s: %w", format, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("pagecodec: encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// Decode reverses Encode.
func Decode(format string, data []byte) ([]byte, error) {
	var r io.Reader
	switch format {
	case FormatIdentity:
		return append([]byte(nil), data...), nil
	case FormatBrotli:
		r = brotli.NewReader(bytes.NewReader(data))
	case FormatZlib:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("pagecodec: decode zlib: %w", err)
		}
		defer zr.Close()
		r = zr
	default:
		return nil, fmt.Errorf("pagecodec: unknown format %q", format)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("pagecodec: decode %s: %w", format, err)
	}
	return out, nil
}
