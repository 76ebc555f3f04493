package deb

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"testing"

	"github.com/kornelski/cargo-deb/internal/deberr"
	"github.com/ulikunitz/xz"
)

func TestGzipCompressorRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	c := GzipCompressor{Fast: true}
	w, err := c.Wrap(&buf)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if _, err := w.Write([]byte("hello world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	gr, err := gzip.NewReader(&buf)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	got, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("got %q", got)
	}
}

func TestXzCompressorRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	c := XzCompressor{}
	w, err := c.Wrap(&buf)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if _, err := w.Write([]byte("hello world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	xr, err := xz.NewReader(&buf)
	if err != nil {
		t.Fatalf("xz.NewReader: %v", err)
	}
	got, err := io.ReadAll(xr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("got %q", got)
	}
}

func TestSystemCompressorMissingBinaryIsToolError(t *testing.T) {
	c := SystemCompressor{Name: "definitely-not-a-real-compressor-binary", Ext: "zz"}
	_, err := c.Wrap(io.Discard)
	if err == nil {
		t.Fatal("expected an error for a missing system compressor binary")
	}
	var toolErr *deberr.Tool
	if !errors.As(err, &toolErr) {
		t.Errorf("got %T (%v), want a *deberr.Tool", err, err)
	}
}
