// Package assets expands a resolved package description's asset directives
// — the $auto sentinel, globs, and target/release|debug path rewriting —
// into concrete file-to-destination mappings ready for archiving.
package assets

import (
	"bytes"
	"compress/gzip"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kornelski/cargo-deb/internal/arch"
	"github.com/kornelski/cargo-deb/internal/buildlog"
	"github.com/kornelski/cargo-deb/internal/deberr"
	"github.com/kornelski/cargo-deb/manifest"
)

// BuiltBinary is one compiled artifact the builder driver reported, used to
// expand the $auto sentinel.
type BuiltBinary struct {
	Name string
	Path string
}

// Resolved is one concrete asset ready to be written into the data archive.
type Resolved struct {
	SourcePath    string // absolute or cwd-relative; empty when Data is set
	Data          []byte // set for synthesized content (e.g. gzipped docs); SourcePath empty
	DestPath      string // archive path without a leading slash
	Mode          int64
	SymlinkTarget string // non-empty when this entry is a preserved symlink
	IsConf        bool
}

const defaultMode = 0o644

// Plan expands desc.Assets into concrete Resolved entries: $auto expansion,
// path rewriting, glob expansion, dest normalization, conffiles derivation,
// the generated copyright/changelog.Debian.gz assets, and the
// compressed-documentation pass, in that order.
func Plan(cwd string, desc *manifest.PackageDescription, binaries []BuiltBinary, listener buildlog.Listener) ([]Resolved, error) {
	specs, err := expandAuto(desc.Assets, binaries, desc.DebName, desc.ReadmePath)
	if err != nil {
		return nil, err
	}

	buildDir := resolveBuildDir(desc)

	var out []Resolved
	for _, spec := range specs {
		rewritten := rewriteSourcePrefix(spec.Source, buildDir)
		mode := parseMode(spec.Mode, defaultMode)

		matches, err := expandGlob(cwd, rewritten)
		if err != nil {
			return nil, deberr.NewAsset("expanding "+spec.Source, err)
		}
		if len(matches) == 0 {
			return nil, deberr.NewAsset("no files matched asset source "+spec.Source, nil)
		}

		prefixLen := staticPrefixLen(rewritten)
		for _, m := range matches {
			dest := destFor(spec.Dest, rewritten, m, prefixLen)
			if err := manifest.ValidateAssetDest(dest); err != nil {
				return nil, err
			}
			full := resolvePath(cwd, m)

			resolved := Resolved{SourcePath: full, DestPath: dest, Mode: mode}
			if info, err := os.Lstat(full); err == nil && info.Mode()&os.ModeSymlink != 0 && desc.PreserveSymlinks {
				if target, err := os.Readlink(full); err == nil {
					resolved.SymlinkTarget = target
					resolved.SourcePath = ""
				}
			}
			out = append(out, resolved)
		}
	}

	markConfFiles(out, desc.ConfFiles)

	copyright, err := copyrightAsset(cwd, desc)
	if err != nil {
		return nil, err
	}
	out = append(out, copyright)

	if desc.Changelog != "" {
		changelog, err := changelogAsset(cwd, desc, listener)
		if err != nil {
			return nil, err
		}
		out = append(out, changelog)
	}

	compressed, err := compressDocs(out, listener)
	if err != nil {
		return nil, err
	}
	return compressed, nil
}

// copyrightAsset builds usr/share/doc/<name>/copyright: the license-file
// contents (its header skipped per license-skip-lines, and a metadata
// stanza prepended when the file doesn't already carry one) when a license
// file is configured, else just the metadata stanza derived from
// Cargo.toml's own copyright/license fields.
func copyrightAsset(cwd string, desc *manifest.PackageDescription) (Resolved, error) {
	var body bytes.Buffer

	if desc.LicenseFile != "" {
		full := resolvePath(cwd, desc.LicenseFile)
		data, err := os.ReadFile(full)
		if err != nil {
			return Resolved{}, deberr.NewIO(full, err)
		}
		text := string(data)
		if !hasCopyrightMetadata(text) {
			writeCopyrightMetadata(&body, desc)
		}
		lines := strings.Split(text, "\n")
		if desc.LicenseSkipLines < len(lines) {
			lines = lines[desc.LicenseSkipLines:]
		} else {
			lines = nil
		}
		for _, line := range lines {
			if line == " " {
				body.WriteString(" .\n")
			} else {
				body.WriteString(line)
				body.WriteByte('\n')
			}
		}
	} else {
		writeCopyrightMetadata(&body, desc)
	}

	return Resolved{
		Data:     body.Bytes(),
		DestPath: "usr/share/doc/" + desc.DebName + "/copyright",
		Mode:     defaultMode,
	}, nil
}

func hasCopyrightMetadata(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		for _, prefix := range []string{"Copyright: ", "License: ", "Source: ", "Upstream-Name: ", "Format: "} {
			if strings.HasPrefix(line, prefix) {
				return true
			}
		}
	}
	return false
}

func writeCopyrightMetadata(body *bytes.Buffer, desc *manifest.PackageDescription) {
	if desc.Copyright != "" {
		body.WriteString("Copyright: " + desc.Copyright + "\n")
	}
	if desc.License != "" {
		body.WriteString("License: " + desc.License + "\n")
	}
}

// changelogAsset gzips the Debian-specific changelog file Cargo.toml points
// at (pre-compressed .gz sources are copied through unchanged).
func changelogAsset(cwd string, desc *manifest.PackageDescription, listener buildlog.Listener) (Resolved, error) {
	full := resolvePath(cwd, desc.Changelog)
	data, err := os.ReadFile(full)
	if err != nil {
		return Resolved{}, deberr.NewIO(full, err)
	}
	if strings.HasSuffix(full, ".gz") {
		return Resolved{Data: data, DestPath: "usr/share/doc/" + desc.DebName + "/changelog.Debian.gz", Mode: defaultMode}, nil
	}
	listener.Progress("Compressing", "changelog.Debian.gz")
	gz, err := gzipBytes(data)
	if err != nil {
		return Resolved{}, deberr.NewAsset("gzipping "+full, err)
	}
	return Resolved{Data: gz, DestPath: "usr/share/doc/" + desc.DebName + "/changelog.Debian.gz", Mode: defaultMode}, nil
}

// expandAuto replaces the "$auto" sentinel with every [[bin]] target copied
// to usr/bin/<name> mode 0755, plus the README copied to
// usr/share/doc/<name>/README mode 0644 when present.
func expandAuto(specs []manifest.AssetSpec, binaries []BuiltBinary, debName, readmePath string) ([]manifest.AssetSpec, error) {
	var out []manifest.AssetSpec
	for _, s := range specs {
		if !s.Auto {
			out = append(out, s)
			continue
		}
		for _, b := range binaries {
			out = append(out, manifest.AssetSpec{
				Source: b.Path,
				Dest:   "usr/bin/" + b.Name,
				Mode:   "755",
			})
		}
		if readmePath != "" {
			if _, err := os.Stat(readmePath); err == nil {
				out = append(out, manifest.AssetSpec{
					Source: readmePath,
					Dest:   "usr/share/doc/" + debName + "/README",
					Mode:   "644",
				})
			}
		}
	}
	return out, nil
}

// resolveBuildDir computes <target-dir>/<triple>/<profile> when
// desc.TargetTriple names a triple other than the host's, else
// <target-dir>/<profile> — cargo only nests build output under a
// triple-named directory when actually cross-compiling, matching
// cmd/cargo-deb's own guessBuiltBinaries.
func resolveBuildDir(desc *manifest.PackageDescription) string {
	dir := desc.TargetDir
	if dir == "" {
		dir = "target"
	}
	profile := desc.Profile
	if profile == "release" || profile == "" {
		profile = "release"
	} else if profile == "dev" {
		profile = "debug"
	}
	if desc.TargetTriple != "" && desc.TargetTriple != arch.HostTriple() {
		dir = filepath.Join(dir, desc.TargetTriple)
	}
	return filepath.Join(dir, profile)
}

func rewriteSourcePrefix(source, buildDir string) string {
	for _, prefix := range []string{"target/release/", "target/debug/"} {
		if strings.HasPrefix(source, prefix) {
			return filepath.Join(buildDir, strings.TrimPrefix(source, prefix))
		}
	}
	return source
}

func parseMode(s string, def int64) int64 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseInt(s, 8, 32)
	if err != nil {
		return def
	}
	return v
}

// destFor normalizes a single matched source path into its archive
// destination: leading slash stripped, trailing slash means "append the
// matched path's basename (or, for glob expansions, its path below the
// pattern's static prefix)".
func destFor(dest, pattern, matched string, prefixLen int) string {
	dest = strings.TrimPrefix(dest, "/")
	if !strings.HasSuffix(dest, "/") {
		return dest
	}
	parts := strings.Split(filepath.ToSlash(matched), "/")
	var suffix string
	if prefixLen > 0 && prefixLen <= len(parts) {
		suffix = path.Join(parts[prefixLen:]...)
	} else {
		suffix = filepath.Base(matched)
	}
	return path.Join(dest, suffix)
}

func markConfFiles(assets []Resolved, explicit []string) {
	explicitSet := make(map[string]bool, len(explicit))
	for _, e := range explicit {
		explicitSet[strings.TrimPrefix(e, "/")] = true
	}
	for i := range assets {
		if strings.HasPrefix(assets[i].DestPath, "etc/") || explicitSet[assets[i].DestPath] {
			assets[i].IsConf = true
		}
	}
}

// compressDocs gzips man pages, NEWS and changelog files per Debian policy,
// replacing the original asset entry with the compressed one.
func compressDocs(in []Resolved, listener buildlog.Listener) ([]Resolved, error) {
	out := make([]Resolved, 0, len(in))
	for _, a := range in {
		if !needsCompression(a.DestPath) {
			out = append(out, a)
			continue
		}
		data, err := readAssetBytes(a)
		if err != nil {
			return nil, err
		}
		listener.Progress("Compressing", a.DestPath+".gz")
		gz, err := gzipBytes(data)
		if err != nil {
			return nil, deberr.NewAsset("gzipping "+a.DestPath, err)
		}
		out = append(out, Resolved{Data: gz, DestPath: a.DestPath + ".gz", Mode: a.Mode})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DestPath < out[j].DestPath })
	return out, nil
}

func needsCompression(destPath string) bool {
	if strings.HasSuffix(destPath, ".gz") {
		return false
	}
	switch {
	case strings.HasPrefix(destPath, "usr/share/man/"):
		return true
	case strings.HasPrefix(destPath, "usr/share/doc/") && (strings.HasSuffix(destPath, "/NEWS") || strings.HasSuffix(destPath, "/changelog")):
		return true
	case strings.HasPrefix(destPath, "usr/share/info/") && strings.HasSuffix(destPath, ".info"):
		return true
	}
	return false
}

func readAssetBytes(a Resolved) ([]byte, error) {
	if a.Data != nil {
		return a.Data, nil
	}
	b, err := os.ReadFile(a.SourcePath)
	if err != nil {
		return nil, deberr.NewIO(a.SourcePath, err)
	}
	return b, nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
