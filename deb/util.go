package deb

import (
	"archive/tar"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/blakesmith/ar"
)

// countingWriter wraps an io.Writer and counts the bytes written, giving
// Build its byte-count return value.
type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// addBufferToAr writes a named byte slice as an ar(5) member, stamped with
// ts so every member of one archive shares one timestamp.
func addBufferToAr(w *ar.Writer, name string, body []byte, ts time.Time) error {
	header := &ar.Header{
		Name:    name,
		Size:    int64(len(body)),
		Mode:    0o644,
		ModTime: ts,
	}
	if err := w.WriteHeader(header); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// writeTarHeader writes a tar header, letting the archive/tar package
// transparently emit GNU long-name/long-linkname extension headers for any
// path exceeding the 100-byte ustar field.
func writeTarHeader(tw *tar.Writer, h *tar.Header) error {
	return tw.WriteHeader(h)
}

// tarPath converts an absolute install path into the "./relative" form
// Debian's tar members use.
func tarPath(destPath string) string {
	rel := strings.TrimPrefix(destPath, "/")
	return "./" + rel
}

// directoryEntries returns the deduplicated set of directories implied by
// the assets' destination paths in lexicographic order, which puts every
// directory before anything placed inside it, so a tar consumer always sees
// a directory first.
func directoryEntries(assets []Asset) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, a := range assets {
		dir := path.Dir(a.DestPath)
		for dir != "/" && dir != "." {
			if !seen[dir] {
				seen[dir] = true
				dirs = append(dirs, dir)
			}
			dir = path.Dir(dir)
		}
	}
	sort.Strings(dirs)
	return dirs
}

// splitList splits a comma-separated relationship field into its trimmed
// elements, returning nil for an empty string.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		res = append(res, strings.TrimSpace(p))
	}
	return res
}
