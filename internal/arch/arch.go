// Package arch maps compiler target triples to Debian architecture names.
package arch

import (
	"runtime"
	"strings"

	"github.com/kornelski/cargo-deb/internal/deberr"
)

// entry pairs a triple-matching predicate with the Debian name it maps to.
type entry struct {
	match func(triple string) bool
	debian string
}

func hasParts(triple string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(triple, p) {
			return false
		}
	}
	return true
}

// table is ordered most-specific first; FromTriple returns the first match.
var table = []entry{
	{func(t string) bool { return hasParts(t, "x86_64", "linux", "gnu") }, "amd64"},
	{func(t string) bool { return hasParts(t, "x86_64", "linux", "musl") }, "amd64"},
	{func(t string) bool { return hasParts(t, "i686", "linux", "gnu") }, "i386"},
	{func(t string) bool { return hasParts(t, "i586", "linux", "gnu") }, "i386"},
	{func(t string) bool { return hasParts(t, "aarch64", "linux", "gnu") }, "arm64"},
	{func(t string) bool { return hasParts(t, "aarch64", "linux", "musl") }, "arm64"},
	{func(t string) bool { return hasParts(t, "armv7", "linux", "gnueabihf") }, "armhf"},
	{func(t string) bool { return hasParts(t, "armv7", "linux", "musleabihf") }, "armhf"},
	{func(t string) bool { return hasParts(t, "arm", "linux", "gnueabi") && !strings.Contains(t, "hf") }, "armel"},
	{func(t string) bool { return hasParts(t, "mips64el", "linux") }, "mips64el"},
	{func(t string) bool { return hasParts(t, "mips64", "linux") && !strings.Contains(t, "el") }, "mips64"},
	{func(t string) bool { return hasParts(t, "mipsel", "linux") }, "mipsel"},
	{func(t string) bool { return hasParts(t, "mips", "linux") && !strings.Contains(t, "el") }, "mips"},
	{func(t string) bool { return hasParts(t, "powerpc64le", "linux") }, "ppc64el"},
	{func(t string) bool { return hasParts(t, "powerpc64", "linux") && !strings.Contains(t, "le") }, "ppc64"},
	{func(t string) bool { return hasParts(t, "powerpc", "linux") && !strings.Contains(t, "64") }, "powerpc"},
	{func(t string) bool { return hasParts(t, "s390x", "linux") }, "s390x"},
	{func(t string) bool { return hasParts(t, "riscv64", "linux") }, "riscv64"},
}

// FromTriple maps a compiler target triple (e.g. "x86_64-unknown-linux-gnu")
// to its Debian architecture name (e.g. "amd64"). An unrecognized triple is
// a fatal ArchitectureError per the error handling design.
func FromTriple(triple string) (string, error) {
	for _, e := range table {
		if e.match(triple) {
			return e.debian, nil
		}
	}
	return "", deberr.NewArchitecture(triple)
}

var hostTriples = map[string]string{
	"amd64": "x86_64-unknown-linux-gnu",
	"arm64": "aarch64-unknown-linux-gnu",
	"386":   "i686-unknown-linux-gnu",
	"arm":   "armv7-unknown-linux-gnueabihf",
}

// HostTriple guesses the native glibc Linux triple for runtime.GOARCH, used
// when neither --target nor CARGO_BUILD_TARGET selects a cross target.
func HostTriple() string {
	if t, ok := hostTriples[runtime.GOARCH]; ok {
		return t
	}
	return "x86_64-unknown-linux-gnu"
}
