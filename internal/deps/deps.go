// Package deps resolves the "$auto" token in a depends list: it shells out
// to dpkg-shlibdeps when available, falling back to parsing each binary's
// ELF DT_NEEDED entries and mapping SONAMEs to Debian packages via a small
// embedded table.
package deps

import (
	"bytes"
	"context"
	"debug/elf"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/kornelski/cargo-deb/internal/deberr"
)

// ResolveAuto replaces every "$auto" element of depends with the
// comma-separated shared-library dependency expression computed from the
// built binaries, leaving every other element untouched.
func ResolveAuto(ctx context.Context, depends []string, binaries []string, architecture string) ([]string, error) {
	var hasAuto bool
	for _, d := range depends {
		if strings.TrimSpace(d) == "$auto" {
			hasAuto = true
			break
		}
	}
	if !hasAuto {
		return depends, nil
	}

	expr, err := autoDependsExpression(ctx, binaries, architecture)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(depends))
	for _, d := range depends {
		if strings.TrimSpace(d) == "$auto" {
			out = append(out, splitCommaList(expr)...)
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func splitCommaList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// autoDependsExpression prefers dpkg-shlibdeps -O, the authoritative tool on
// a Debian host; it falls back to an ELF-parsing approximation when the
// tool is unavailable (cross builds, non-Debian CI hosts).
func autoDependsExpression(ctx context.Context, binaries []string, architecture string) (string, error) {
	if path, err := exec.LookPath("dpkg-shlibdeps"); err == nil {
		expr, ok, runErr := runDpkgShlibdeps(ctx, path, binaries)
		if runErr == nil && ok {
			return expr, nil
		}
	}
	return fallbackShlibdeps(binaries, architecture)
}

func runDpkgShlibdeps(ctx context.Context, path string, binaries []string) (string, bool, error) {
	args := append([]string{"-O"}, binaries...)
	cmd := exec.CommandContext(ctx, path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", false, deberr.NewTool("dpkg-shlibdeps", fmt.Errorf("%w: %s", err, stderr.String()))
	}
	// dpkg-shlibdeps -O prints "shlibs:Depends=pkg1 (>= x), pkg2" to stdout.
	for _, line := range strings.Split(stdout.String(), "\n") {
		if v, ok := strings.CutPrefix(line, "shlibs:Depends="); ok {
			return strings.TrimSpace(v), true, nil
		}
	}
	return "", false, nil
}

// sonameTable maps a shared library SONAME to the Debian package providing
// it, for the architectures this tool targets most commonly. It is a small,
// deliberately incomplete stand-in for dpkg-shlibdeps' own shlibs database.
var sonameTable = map[string]string{
	"libc.so.6":         "libc6",
	"libm.so.6":         "libc6",
	"libpthread.so.0":   "libc6",
	"libdl.so.2":        "libc6",
	"librt.so.1":        "libc6",
	"libgcc_s.so.1":     "libgcc-s1",
	"libstdc++.so.6":    "libstdc++6",
	"libssl.so.3":       "libssl3",
	"libcrypto.so.3":    "libssl3",
	"libz.so.1":         "zlib1g",
	"libsqlite3.so.0":   "libsqlite3-0",
	"libpq.so.5":        "libpq5",
	"libcurl.so.4":      "libcurl4",
	"libdbus-1.so.3":    "libdbus-1-3",
	"libsystemd.so.0":   "libsystemd0",
}

// fallbackShlibdeps parses each binary's dynamic section for DT_NEEDED
// entries and maps recognized SONAMEs to packages; unrecognized SONAMEs are
// skipped with no error, matching dpkg-shlibdeps' own tolerance for
// libraries it can't resolve when -O is the only requested output.
// architecture is accepted for symmetry with dpkg-shlibdeps' own per-arch
// shlibs database; sonameTable's entries happen not to vary across the
// architectures this tool targets, so it goes unused here.
func fallbackShlibdeps(binaries []string, architecture string) (string, error) {
	packages := make(map[string]bool)
	for _, bin := range binaries {
		needed, err := readDTNeeded(bin)
		if err != nil {
			return "", err
		}
		for _, soname := range needed {
			if pkg, ok := sonameTable[soname]; ok {
				packages[pkg] = true
			}
		}
	}
	var names []string
	for pkg := range packages {
		names = append(names, pkg)
	}
	sort.Strings(names)
	return strings.Join(names, ", "), nil
}

func readDTNeeded(path string) ([]string, error) {
	f, err := elf.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, deberr.NewIO(path, err)
		}
		return nil, deberr.NewAsset(fmt.Sprintf("reading ELF dynamic section of %s", path), err)
	}
	defer f.Close()

	needed, err := f.DynString(elf.DT_NEEDED)
	if err != nil {
		// A statically linked binary has no dynamic section at all.
		return nil, nil
	}
	return needed, nil
}
