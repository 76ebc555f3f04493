// Package cargobuild drives the Rust compiler and discovers built artifact
// paths from its machine-readable JSON message stream.
package cargobuild

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/kornelski/cargo-deb/internal/buildlog"
	"github.com/kornelski/cargo-deb/internal/deberr"
)

// Options configures one cargo invocation.
type Options struct {
	Dir               string // crate or workspace root to run cargo in
	CargoBuildCmd     string // subcommand in place of "build"; "" defaults to "build"
	Profile           string
	Target            string // compiler triple; "" builds for the host
	Features          []string
	NoDefaultFeatures bool
	AllFeatures       bool
	Offline           bool
	Locked            bool
	Frozen            bool
	PassThroughArgs   []string
}

// Artifact is one built binary cargo reported.
type Artifact struct {
	Name string
	Path string
}

// Build invokes cargo and streams its --message-format=json output,
// collecting every binary artifact it reports. A non-zero cargo exit is
// fatal and surfaced verbatim, per §4.3.
func Build(ctx context.Context, opts Options, listener buildlog.Listener) ([]Artifact, error) {
	args := buildArgs(opts)
	listener.Progress("Compiling", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, "cargo", args...)
	cmd.Dir = opts.Dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, deberr.NewBuild("creating stdout pipe", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, deberr.NewBuild("starting cargo", err)
	}

	artifacts, decodeErr := decodeArtifacts(stdout, listener)

	waitErr := cmd.Wait()
	if waitErr != nil {
		return nil, deberr.NewBuild(strings.TrimSpace(stderr.String()), waitErr)
	}
	if decodeErr != nil {
		return nil, deberr.NewBuild("reading cargo's build plan", decodeErr)
	}
	return artifacts, nil
}

func buildArgs(opts Options) []string {
	cmd := opts.CargoBuildCmd
	if cmd == "" {
		cmd = "build"
	}
	args := []string{cmd, "--message-format=json-render-diagnostics"}

	if opts.Profile != "" && opts.Profile != "dev" {
		args = append(args, "--profile="+opts.Profile)
	}
	if opts.Target != "" {
		args = append(args, "--target="+opts.Target)
	}
	if len(opts.Features) > 0 {
		args = append(args, "--features="+strings.Join(opts.Features, ","))
	}
	if opts.NoDefaultFeatures {
		args = append(args, "--no-default-features")
	}
	if opts.AllFeatures {
		args = append(args, "--all-features")
	}
	if opts.Offline {
		args = append(args, "--offline")
	}
	if opts.Locked {
		args = append(args, "--locked")
	}
	if opts.Frozen {
		args = append(args, "--frozen")
	}
	args = append(args, opts.PassThroughArgs...)
	return args
}

type cargoMessage struct {
	Reason string `json:"reason"`
	Target struct {
		Name string   `json:"name"`
		Kind []string `json:"kind"`
	} `json:"target"`
	Executable *string `json:"executable"`
}

// decodeArtifacts reads cargo's newline-delimited JSON messages as they
// arrive and keeps every compiler-artifact message that names an
// executable (cargo emits one per built binary, and one more without an
// executable for each of its dependencies).
func decodeArtifacts(r io.Reader, listener buildlog.Listener) ([]Artifact, error) {
	var artifacts []Artifact
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg cargoMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			continue // cargo interleaves plain diagnostic text on rare toolchains; ignore non-JSON lines
		}
		if msg.Reason == "compiler-artifact" && msg.Executable != nil && isBinaryKind(msg.Target.Kind) {
			artifacts = append(artifacts, Artifact{Name: msg.Target.Name, Path: *msg.Executable})
			listener.Info("built %s -> %s", msg.Target.Name, *msg.Executable)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning cargo output: %w", err)
	}
	return artifacts, nil
}

func isBinaryKind(kinds []string) bool {
	for _, k := range kinds {
		if k == "bin" {
			return true
		}
	}
	return false
}
