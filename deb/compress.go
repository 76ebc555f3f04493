package deb

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/kornelski/cargo-deb/internal/deberr"
	"github.com/ulikunitz/xz"
)

// Compressor wraps an io.Writer with a compression codec for one archive
// member (control.tar.<ext> or data.tar.<ext>).
type Compressor interface {
	// Wrap returns a WriteCloser; closing it flushes and finalizes the
	// stream but does not close w.
	Wrap(w io.Writer) (io.WriteCloser, error)
	// Extension is the suffix appended to the member name, e.g. "gz".
	Extension() string
}

// GzipCompressor is the gzip codec (selected by --compress-type gzip),
// matching the teacher's use of the standard library's compress/gzip.
type GzipCompressor struct {
	// Fast selects gzip.BestSpeed instead of gzip.DefaultCompression.
	Fast bool
}

func (c GzipCompressor) Extension() string { return "gz" }

func (c GzipCompressor) Wrap(w io.Writer) (io.WriteCloser, error) {
	level := gzip.DefaultCompression
	if c.Fast {
		level = gzip.BestSpeed
	}
	return gzip.NewWriterLevel(w, level)
}

// XzCompressor is the archive default: single-threaded LZMA2 via
// github.com/ulikunitz/xz, which has no multi-threaded encoder, matching
// the single-threaded-by-default requirement regardless of CPU count.
type XzCompressor struct {
	Fast bool
}

func (c XzCompressor) Extension() string { return "xz" }

func (c XzCompressor) Wrap(w io.Writer) (io.WriteCloser, error) {
	cfg := xz.WriterConfig{}
	if c.Fast {
		// Shrinking the match-finder dictionary trades ratio for speed;
		// ulikunitz/xz has no notion of "preset levels" like the xz CLI.
		cfg.DictCap = 1 << 20
	}
	if err := cfg.Verify(); err != nil {
		return nil, fmt.Errorf("xz writer config: %w", err)
	}
	return cfg.NewWriter(w)
}

// SystemCompressor shells out to an external compressor binary (e.g. the
// system's xz or gzip with flags the Go codecs don't expose, such as
// --rsyncable). It is selected by --compress-system.
type SystemCompressor struct {
	Ctx  context.Context
	Name string
	Args []string
	Ext  string
}

func (c SystemCompressor) Extension() string { return c.Ext }

func (c SystemCompressor) Wrap(w io.Writer) (io.WriteCloser, error) {
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	path, err := exec.LookPath(c.Name)
	if err != nil {
		return nil, deberr.NewTool(c.Name, err)
	}
	cmd := exec.CommandContext(ctx, path, c.Args...)
	cmd.Stdout = w
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, deberr.NewTool(c.Name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, deberr.NewTool(c.Name, err)
	}
	return &systemCompressorHandle{name: c.Name, cmd: cmd, stdin: stdin}, nil
}

type systemCompressorHandle struct {
	name  string
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

func (h *systemCompressorHandle) Write(p []byte) (int, error) { return h.stdin.Write(p) }

func (h *systemCompressorHandle) Close() error {
	if err := h.stdin.Close(); err != nil {
		return deberr.NewTool(h.name, err)
	}
	if err := h.cmd.Wait(); err != nil {
		return deberr.NewTool(h.name, err)
	}
	return nil
}
