package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

const basicManifest = `
[package]
name = "hello"
version = "1.2.3"
authors = ["Jane Doe <jane@example.com>"]
license = "MIT"
description = "a friendly greeter"

[package.metadata.deb]
depends = "libc6 (>= 2.28)"
`

func TestResolveBasicManifest(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "Cargo.toml", basicManifest)

	desc, err := Resolve(ResolveOptions{
		ManifestPath: path,
		TargetTriple: "x86_64-unknown-linux-gnu",
		TargetDir:    filepath.Join(dir, "target"),
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if desc.Name != "hello" || desc.DebName != "hello" {
		t.Errorf("got Name=%q DebName=%q, want both %q", desc.Name, desc.DebName, "hello")
	}
	if desc.Version != "1.2.3" {
		t.Errorf("got Version=%q, want 1.2.3", desc.Version)
	}
	if desc.Revision != "1" {
		t.Errorf("got Revision=%q, want default \"1\"", desc.Revision)
	}
	if desc.Architecture != "amd64" {
		t.Errorf("got Architecture=%q, want amd64", desc.Architecture)
	}
	if desc.Maintainer != "Jane Doe <jane@example.com>" {
		t.Errorf("got Maintainer=%q, want the first author", desc.Maintainer)
	}
	if got := desc.Relationships["depends"]; len(got) != 1 || got[0] != "libc6 (>= 2.28)" {
		t.Errorf("got Relationships[depends]=%v, want one entry", got)
	}
	if desc.License != "MIT" {
		t.Errorf("got License=%q, want MIT", desc.License)
	}
}

const workspaceRoot = `
[workspace]
[workspace.package]
version = "0.9.0"
authors = ["Team Lead <lead@example.com>"]
license = "Apache-2.0"
`

const workspaceMember = `
[package]
name = "worker"
version.workspace = true
authors.workspace = true
license.workspace = true

[package.metadata.deb]
`

func TestResolveWorkspaceInheritance(t *testing.T) {
	dir := t.TempDir()
	wsPath := writeManifest(t, dir, "Cargo.toml", workspaceRoot)
	memberPath := writeManifest(t, dir, "worker.toml", workspaceMember)

	desc, err := Resolve(ResolveOptions{
		ManifestPath:          memberPath,
		WorkspaceManifestPath: wsPath,
		TargetTriple:          "x86_64-unknown-linux-gnu",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if desc.Version != "0.9.0" {
		t.Errorf("got Version=%q, want inherited 0.9.0", desc.Version)
	}
	if desc.Maintainer != "Team Lead <lead@example.com>" {
		t.Errorf("got Maintainer=%q, want inherited author", desc.Maintainer)
	}
}

const variantManifest = `
[package]
name = "hello"
version = "1.0.0"
authors = ["Jane Doe <jane@example.com>"]
license = "MIT"

[package.metadata.deb]
depends = "libc6"
section = "net"

[package.metadata.deb.variants.minimal]
section = "utils"
depends = "libc6-minimal"
`

func TestResolveVariantOverlay(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "Cargo.toml", variantManifest)

	base, err := Resolve(ResolveOptions{ManifestPath: path, TargetTriple: "x86_64-unknown-linux-gnu"})
	if err != nil {
		t.Fatalf("Resolve base: %v", err)
	}
	if base.DebName != "hello" || base.Section != "net" {
		t.Errorf("base: got DebName=%q Section=%q", base.DebName, base.Section)
	}

	variant, err := Resolve(ResolveOptions{ManifestPath: path, Variant: "minimal", TargetTriple: "x86_64-unknown-linux-gnu"})
	if err != nil {
		t.Fatalf("Resolve variant: %v", err)
	}
	if variant.DebName != "hello-minimal" {
		t.Errorf("got DebName=%q, want derived \"hello-minimal\"", variant.DebName)
	}
	if variant.Section != "utils" {
		t.Errorf("got Section=%q, want variant override \"utils\"", variant.Section)
	}
	if got := variant.Relationships["depends"]; len(got) != 1 || got[0] != "libc6-minimal" {
		t.Errorf("got Relationships[depends]=%v, want variant override", got)
	}
}

func TestResolveCLIOverridesWinOverManifest(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "Cargo.toml", basicManifest)

	revision := ""
	maintainer := "Ops Team <ops@example.com>"
	desc, err := Resolve(ResolveOptions{
		ManifestPath: path,
		TargetTriple: "x86_64-unknown-linux-gnu",
		CLI: CLIOverrides{
			Maintainer: &maintainer,
			DebRevision: &revision,
		},
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if desc.Maintainer != maintainer {
		t.Errorf("got Maintainer=%q, want CLI override %q", desc.Maintainer, maintainer)
	}
	if desc.Revision != "" {
		t.Errorf("got Revision=%q, want CLI-supplied empty string to win over the \"1\" default", desc.Revision)
	}
}

func TestResolveNoStripOverrideDisablesSeparateDebugSymbolsAndSetsNoStrip(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "Cargo.toml", basicManifest)

	desc, err := Resolve(ResolveOptions{
		ManifestPath: path,
		TargetTriple: "x86_64-unknown-linux-gnu",
		CLI:          CLIOverrides{NoStrip: true},
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !desc.NoStrip {
		t.Error("expected NoStrip to be set from CLIOverrides.NoStrip")
	}
	if desc.SeparateDebugSymbols {
		t.Error("expected --no-strip to also disable SeparateDebugSymbols")
	}
}

func TestResolveUnpublishedWithoutLicenseDefaultsToUnlicensed(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "Cargo.toml", `
[package]
name = "internal-tool"
version = "0.1.0"
authors = ["Jane Doe <jane@example.com>"]
publish = false

[package.metadata.deb]
`)
	desc, err := Resolve(ResolveOptions{ManifestPath: path, TargetTriple: "x86_64-unknown-linux-gnu"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if desc.License != "UNLICENSED" {
		t.Errorf("got License=%q, want the UNLICENSED default for an unpublished package", desc.License)
	}
}

func TestResolvePublishedWithoutLicenseErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "Cargo.toml", `
[package]
name = "public-tool"
version = "0.1.0"
authors = ["Jane Doe <jane@example.com>"]

[package.metadata.deb]
`)
	if _, err := Resolve(ResolveOptions{ManifestPath: path, TargetTriple: "x86_64-unknown-linux-gnu"}); err == nil {
		t.Fatal("expected an error for a publishable package with no license")
	}
}

func TestResolveRejectsUnknownVariant(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "Cargo.toml", basicManifest)
	if _, err := Resolve(ResolveOptions{ManifestPath: path, Variant: "nonexistent", TargetTriple: "x86_64-unknown-linux-gnu"}); err == nil {
		t.Fatal("expected an error for an unknown variant")
	}
}

func TestResolveRejectsUnmappableTriple(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "Cargo.toml", basicManifest)
	if _, err := Resolve(ResolveOptions{ManifestPath: path, TargetTriple: "nonsense-triple"}); err == nil {
		t.Fatal("expected an error for an unmappable target triple")
	}
}

func TestApplyMergeAssetsByDestReplacesAllMatches(t *testing.T) {
	parent := []AssetSpec{
		{Source: "a", Dest: "/usr/bin/x", Mode: "755"},
		{Source: "b", Dest: "/usr/bin/x", Mode: "755"},
		{Source: "c", Dest: "/usr/bin/y", Mode: "755"},
	}
	merge := map[string]any{
		"by": map[string]any{
			"dest": []any{
				[]any{"z", "/usr/bin/x", "700"},
			},
		},
	}
	got, err := applyMergeAssets(parent, merge)
	if err != nil {
		t.Fatalf("applyMergeAssets: %v", err)
	}
	var rewritten int
	for _, a := range got {
		if a.Dest == "/usr/bin/x" {
			rewritten++
			if a.Source != "z" || a.Mode != "700" {
				t.Errorf("got %+v, want source=z mode=700", a)
			}
		}
	}
	if rewritten != 2 {
		t.Errorf("got %d entries rewritten at /usr/bin/x, want both parent entries replaced", rewritten)
	}
}

func TestResolveExtendedDescriptionFilePrecedesLiteralAndReadme(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "DESC.txt", "the long-form description\nfrom a file\n")
	path := writeManifest(t, dir, "Cargo.toml", `
[package]
name = "hello"
version = "1.0.0"
authors = ["Jane Doe <jane@example.com>"]
license = "MIT"
readme = "README.md"

[package.metadata.deb]
extended-description = "a literal description"
extended-description-file = "DESC.txt"
`)
	writeManifest(t, dir, "README.md", "# Hello\n\nIgnored because the file field wins.\n")

	desc, err := Resolve(ResolveOptions{ManifestPath: path, TargetTriple: "x86_64-unknown-linux-gnu"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := "the long-form description\nfrom a file\n"
	if desc.ExtendedDescription != want {
		t.Errorf("got ExtendedDescription=%q, want the file contents %q", desc.ExtendedDescription, want)
	}
}

func TestResolveExtendedDescriptionFallsBackToReadme(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "Cargo.toml", `
[package]
name = "hello"
version = "1.0.0"
authors = ["Jane Doe <jane@example.com>"]
license = "MIT"
readme = "README.md"

[package.metadata.deb]
`)
	writeManifest(t, dir, "README.md", "# Hello\n\nA README-derived description.\n")

	desc, err := Resolve(ResolveOptions{ManifestPath: path, TargetTriple: "x86_64-unknown-linux-gnu"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if desc.ExtendedDescription != "A README-derived description." {
		t.Errorf("got ExtendedDescription=%q", desc.ExtendedDescription)
	}
}

func TestResolveDefaultsAbsentDependsToAuto(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "Cargo.toml", `
[package]
name = "hello"
version = "1.0.0"
authors = ["Jane Doe <jane@example.com>"]
license = "MIT"
`)
	desc, err := Resolve(ResolveOptions{ManifestPath: path, TargetTriple: "x86_64-unknown-linux-gnu"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	got := desc.Relationships["depends"]
	if len(got) != 1 || got[0] != "$auto" {
		t.Errorf("got Relationships[depends]=%v, want [\"$auto\"]", got)
	}
}

func TestResolveLicenseFileOverrideWithSkipLines(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "Cargo.toml", `
[package]
name = "hello"
version = "1.0.0"
authors = ["Jane Doe <jane@example.com>"]
license = "MIT"
license-file = "LICENSE-TOPLEVEL"

[package.metadata.deb]
license-file = ["LICENSE-DEB", "3"]
`)
	desc, err := Resolve(ResolveOptions{ManifestPath: path, TargetTriple: "x86_64-unknown-linux-gnu"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if desc.LicenseFile != "LICENSE-DEB" {
		t.Errorf("got LicenseFile=%q, want the deb-table override to win over the top-level license-file", desc.LicenseFile)
	}
	if desc.LicenseSkipLines != 3 {
		t.Errorf("got LicenseSkipLines=%d, want 3", desc.LicenseSkipLines)
	}
}

func TestResolveReadsMaintainerScriptsVerbatim(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "debian"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, "debian/postinst", "#!/bin/sh\nsystemctl daemon-reload\n")
	path := writeManifest(t, dir, "Cargo.toml", `
[package]
name = "hello"
version = "1.0.0"
authors = ["Jane Doe <jane@example.com>"]
license = "MIT"

[package.metadata.deb]
maintainer-scripts = "debian"
`)

	desc, err := Resolve(ResolveOptions{ManifestPath: path, TargetTriple: "x86_64-unknown-linux-gnu"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if desc.Scripts.PostInst != "#!/bin/sh\nsystemctl daemon-reload\n" {
		t.Errorf("got PostInst=%q", desc.Scripts.PostInst)
	}
	if desc.Scripts.PreInst != "" {
		t.Errorf("got PreInst=%q, want empty since no such file exists", desc.Scripts.PreInst)
	}
}

func TestResolveRejectsAssetDestEscapingPermittedRoots(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "payload.txt", "x")
	path := writeManifest(t, dir, "Cargo.toml", `
[package]
name = "hello"
version = "1.0.0"
authors = ["Jane Doe <jane@example.com>"]
license = "MIT"

[package.metadata.deb]
assets = [["payload.txt", "../../etc/passwd", "644"]]
`)

	if _, err := Resolve(ResolveOptions{ManifestPath: path, TargetTriple: "x86_64-unknown-linux-gnu"}); err == nil {
		t.Fatal("expected an error for an asset dest escaping the permitted roots")
	}
}

func TestValidateAssetDestRejectsDotDotAndUnknownRoot(t *testing.T) {
	cases := []struct {
		dest string
		ok   bool
	}{
		{"usr/bin/hello", true},
		{"/etc/hello.conf", true},
		{"var/lib/hello/state", true},
		{"../etc/passwd", false},
		{"usr/bin/../../../etc/passwd", false},
		{"home/hello/data", false},
	}
	for _, c := range cases {
		err := ValidateAssetDest(c.dest)
		if c.ok && err != nil {
			t.Errorf("ValidateAssetDest(%q): unexpected error %v", c.dest, err)
		}
		if !c.ok && err == nil {
			t.Errorf("ValidateAssetDest(%q): expected an error", c.dest)
		}
	}
}

func TestElideMarkdownStripsHeadingsAndFences(t *testing.T) {
	in := "# Title\n\nSome prose.\n\n```sh\nrm -rf /\n```\n\nMore prose.\n"
	got := elideMarkdown(in)
	if got != "Some prose.\n\nMore prose." {
		t.Errorf("got %q", got)
	}
}
