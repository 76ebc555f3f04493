// Package debuginfo splits detached debug symbols out of a built ELF
// executable via objcopy/strip, deriving the .build-id-based install path
// the Debian debug-info convention expects.
package debuginfo

import (
	"context"
	"debug/elf"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/kornelski/cargo-deb/internal/deberr"
)

// Tools resolves objcopy/strip, trying the cross-compilation prefix first.
type Tools struct {
	CrossPrefix string // e.g. "x86_64-linux-gnu-"; empty for the host toolchain
}

func (t Tools) find(name string) (string, error) {
	if t.CrossPrefix != "" {
		if p, err := exec.LookPath(t.CrossPrefix + name); err == nil {
			return p, nil
		}
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", deberr.NewTool(name, err)
	}
	return p, nil
}

// Options configures one binary's debug-info split. Compress should already
// reflect the caller's default-algorithm decision (DefaultCompressAlgo).
type Options struct {
	Tools    Tools
	Compress string // "", "zlib" or "zstd"
}

// Result reports where the detached debug file and the stripped binary
// ended up, so the caller can attach the .debug file as an asset of the
// correct sibling package.
type Result struct {
	DebugFileData []byte
	DebugDestPath string // e.g. "usr/lib/debug/.build-id/ab/cdef....debug"
	StrippedBinary []byte
}

// Split runs objcopy --only-keep-debug then strips binaryPath in place,
// returning the detached debug content and its install path alongside the
// stripped binary bytes. installPath is the asset's own destination (e.g.
// "usr/bin/hello"), used for the path-derived fallback when no build-id is
// present.
func Split(ctx context.Context, binaryPath, installPath string, opts Options) (Result, error) {
	objcopy, err := opts.Tools.find("objcopy")
	if err != nil {
		return Result{}, err
	}
	strip, err := opts.Tools.find("strip")
	if err != nil {
		return Result{}, err
	}

	buildID, _ := readBuildID(binaryPath)
	destPath := debugDestPath(buildID, installPath)

	debugFile, err := os.CreateTemp("", "cargo-deb-debug-*")
	if err != nil {
		return Result{}, deberr.NewIO(binaryPath, err)
	}
	debugTmpPath := debugFile.Name()
	debugFile.Close()
	defer os.Remove(debugTmpPath)

	if out, err := exec.CommandContext(ctx, objcopy, "--only-keep-debug", binaryPath, debugTmpPath).CombinedOutput(); err != nil {
		return Result{}, deberr.NewTool("objcopy", fmt.Errorf("%s: %w", strings.TrimSpace(string(out)), err))
	}

	if opts.Compress != "" {
		if err := compressDebugSections(ctx, objcopy, debugTmpPath, opts.Compress); err != nil {
			return Result{}, err
		}
	}

	debugData, err := os.ReadFile(debugTmpPath)
	if err != nil {
		return Result{}, deberr.NewIO(debugTmpPath, err)
	}

	strippedPath, err := stripInPlace(ctx, strip, binaryPath)
	if err != nil {
		return Result{}, err
	}
	strippedData, err := os.ReadFile(strippedPath)
	if err != nil {
		return Result{}, deberr.NewIO(strippedPath, err)
	}

	return Result{
		DebugFileData:  debugData,
		DebugDestPath:  destPath,
		StrippedBinary: strippedData,
	}, nil
}

// StripInPlace strips binaryPath without detaching debug info, for the
// default (no --separate-debug-symbols) path.
func StripInPlace(ctx context.Context, binaryPath string, tools Tools) ([]byte, error) {
	strip, err := tools.find("strip")
	if err != nil {
		return nil, err
	}
	out, err := stripInPlace(ctx, strip, binaryPath)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(out)
}

func stripInPlace(ctx context.Context, strip, binaryPath string) (string, error) {
	full := []string{"--strip-unneeded", "--remove-section=.comment", "--remove-section=.note", binaryPath}
	if out, err := exec.CommandContext(ctx, strip, full...).CombinedOutput(); err != nil {
		minimal := []string{"--strip-unneeded", binaryPath}
		if out2, err2 := exec.CommandContext(ctx, strip, minimal...).CombinedOutput(); err2 != nil {
			return "", deberr.NewTool("strip", fmt.Errorf("%s (retry: %s): %w", strings.TrimSpace(string(out)), strings.TrimSpace(string(out2)), err2))
		}
	}
	return binaryPath, nil
}

func compressDebugSections(ctx context.Context, objcopy, debugPath, algo string) error {
	if algo == "zstd" {
		if _, err := exec.CommandContext(ctx, objcopy, "--compress-debug-sections=zstd", debugPath).CombinedOutput(); err != nil {
			// objcopy predates zstd support on some hosts; fall back to an in-process encoder.
			return compressInPlaceZstd(debugPath)
		}
		return nil
	}
	if out, err := exec.CommandContext(ctx, objcopy, "--compress-debug-sections=zlib", debugPath).CombinedOutput(); err != nil {
		return deberr.NewTool("objcopy", fmt.Errorf("%s: %w", strings.TrimSpace(string(out)), err))
	}
	return nil
}

// compressInPlaceZstd re-encodes the detached debug file's bytes through an
// in-process zstd encoder when the host's objcopy lacks --compress-debug-
// sections=zstd support.
func compressInPlaceZstd(debugPath string) error {
	data, err := os.ReadFile(debugPath)
	if err != nil {
		return deberr.NewIO(debugPath, err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return deberr.NewTool("zstd", err)
	}
	defer enc.Close()
	compressed := enc.EncodeAll(data, nil)
	return os.WriteFile(debugPath, compressed, 0o644)
}

// DefaultCompressAlgo implements the spec's default rule: zstd when the
// source was built with full debug info, else zlib.
func DefaultCompressAlgo(wasDebugBuild bool) string {
	if wasDebugBuild {
		return "zstd"
	}
	return "zlib"
}

func readBuildID(binaryPath string) (string, error) {
	f, err := elf.Open(binaryPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	section := f.Section(".note.gnu.build-id")
	if section == nil {
		return "", fmt.Errorf("no .note.gnu.build-id section")
	}
	data, err := section.Data()
	if err != nil {
		return "", err
	}
	return parseBuildIDNote(data)
}

// parseBuildIDNote extracts the build-id bytes from an ELF note whose
// layout is namesz/descsz/type, name (padded to 4), desc (padded to 4).
func parseBuildIDNote(data []byte) (string, error) {
	if len(data) < 12 {
		return "", fmt.Errorf("note too short")
	}
	nameSz := int(data[0]) | int(data[1])<<8 | int(data[2])<<16 | int(data[3])<<24
	descSz := int(data[4]) | int(data[5])<<8 | int(data[6])<<16 | int(data[7])<<24
	nameOff := 12
	namePadded := align4(nameSz)
	descOff := nameOff + namePadded
	if descOff+descSz > len(data) {
		return "", fmt.Errorf("note truncated")
	}
	return hex.EncodeToString(data[descOff : descOff+descSz]), nil
}

func align4(n int) int { return (n + 3) &^ 3 }

// debugDestPath implements §4.4's rule 2: build-id path when available,
// else a path derived from installPath.
func debugDestPath(buildID, installPath string) string {
	if buildID != "" && len(buildID) > 2 {
		return path.Join("usr/lib/debug/.build-id", buildID[:2], buildID[2:]+".debug")
	}
	return "usr/lib/debug/" + strings.TrimPrefix(installPath, "/") + ".debug"
}
