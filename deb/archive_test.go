package deb

import (
	"bytes"
	"compress/gzip"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/blakesmith/ar"
)

func testPackage() *Package {
	return &Package{
		Metadata: Metadata{
			Package:      "hello",
			Version:      "1.0.0-1",
			Architecture: "amd64",
			Maintainer:   "Jane Doe <jane@example.com>",
			Description:  "a friendly greeter\nLonger explanation goes here.",
		},
		Assets: []Asset{
			{DestPath: "/usr/bin/hello", Mode: 0o755, Content: []byte("binary content")},
			{DestPath: "/etc/hello.conf", Mode: 0o644, Content: []byte("greeting=hi\n")},
		},
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	ts := time.Unix(1700000000, 0).UTC()
	opts := BuildOptions{Timestamp: ts, Compressor: GzipCompressor{}}

	var a, b bytes.Buffer
	if _, _, err := testPackage().Build(&a, opts); err != nil {
		t.Fatalf("first Build: %v", err)
	}
	if _, _, err := testPackage().Build(&b, opts); err != nil {
		t.Fatalf("second Build: %v", err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatal("two builds from identical inputs produced different bytes")
	}
}

func TestBuildMemberOrder(t *testing.T) {
	var buf bytes.Buffer
	opts := BuildOptions{Timestamp: time.Unix(0, 0).UTC(), Compressor: GzipCompressor{}}
	if _, _, err := testPackage().Build(&buf, opts); err != nil {
		t.Fatalf("Build: %v", err)
	}

	r := ar.NewReader(&buf)
	var names []string
	for {
		h, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("reading ar member: %v", err)
		}
		names = append(names, strings.TrimRight(h.Name, "/"))
	}

	want := []string{"debian-binary", "control.tar.gz", "data.tar.gz"}
	if len(names) != len(want) {
		t.Fatalf("got members %v, want %v", names, want)
	}
	for i, n := range names {
		if n != want[i] {
			t.Errorf("member %d = %q, want %q", i, n, want[i])
		}
	}
}

func TestBuildReturnsDigestsButOmitsMd5sumsMember(t *testing.T) {
	var buf bytes.Buffer
	opts := BuildOptions{Timestamp: time.Unix(0, 0).UTC(), Compressor: GzipCompressor{}}
	_, digests, err := testPackage().Build(&buf, opts)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(digests) != 2 {
		t.Fatalf("got %d digests, want 2", len(digests))
	}
	if len(digests["/usr/bin/hello"]) != 64 {
		t.Errorf("expected a 64-character hex SHA-256 digest, got %q", digests["/usr/bin/hello"])
	}

	r := ar.NewReader(&buf)
	for {
		h, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("reading ar member: %v", err)
		}
		if !strings.HasPrefix(h.Name, "control.tar") {
			continue
		}
		body := make([]byte, h.Size)
		if _, err := io.ReadFull(r, body); err != nil {
			t.Fatalf("reading control.tar.gz body: %v", err)
		}
		if tarContent := gunzip(t, body); bytes.Contains(tarContent, []byte("md5sums")) {
			t.Error("control archive must not contain an md5sums member")
		}
	}
}

func TestGenerateConffilesUnionsEtcPrefix(t *testing.T) {
	p := testPackage()
	conf := p.generateConffiles()
	if !strings.Contains(conf, "etc/hello.conf") {
		t.Errorf("expected /etc/hello.conf to be inferred as a conffile, got %q", conf)
	}
}

func TestGenerateControlFileFieldOrder(t *testing.T) {
	p := testPackage()
	p.Metadata.Depends = []string{"libc6"}
	content := p.generateControlFile(2048)

	pkgIdx := strings.Index(content, "Package:")
	verIdx := strings.Index(content, "Version:")
	depIdx := strings.Index(content, "Depends:")
	descIdx := strings.Index(content, "Description:")
	if !(pkgIdx < verIdx && verIdx < depIdx && depIdx < descIdx) {
		t.Errorf("control fields out of canonical order:\n%s", content)
	}
	if !strings.Contains(content, "Installed-Size: 2\n") {
		t.Errorf("expected rounded-up Installed-Size, got:\n%s", content)
	}
}

func TestDataArchiveContainsAssetContent(t *testing.T) {
	var buf bytes.Buffer
	opts := BuildOptions{Timestamp: time.Unix(0, 0).UTC(), Compressor: GzipCompressor{}}
	if _, _, err := testPackage().Build(&buf, opts); err != nil {
		t.Fatalf("Build: %v", err)
	}

	r := ar.NewReader(&buf)
	for {
		h, err := r.Next()
		if err == io.EOF {
			t.Fatal("data.tar.gz member not found")
		}
		if err != nil {
			t.Fatalf("reading ar member: %v", err)
		}
		if strings.HasPrefix(h.Name, "data.tar") {
			body := make([]byte, h.Size)
			if _, err := io.ReadFull(r, body); err != nil {
				t.Fatalf("reading data.tar.gz body: %v", err)
			}
			if tarContent := gunzip(t, body); !bytes.Contains(tarContent, []byte("binary content")) {
				t.Error("expected asset content to appear in the data archive")
			}
			return
		}
	}
}

func gunzip(t *testing.T, b []byte) []byte {
	t.Helper()
	gr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	defer gr.Close()
	out, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("reading gzip stream: %v", err)
	}
	return out
}
