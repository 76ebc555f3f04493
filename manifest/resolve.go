package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kornelski/cargo-deb/internal/arch"
	"github.com/kornelski/cargo-deb/internal/buildlog"
	"github.com/kornelski/cargo-deb/internal/deberr"
	"github.com/pelletier/go-toml/v2"
)

// Env captures the environment variables the resolver consults. Callers
// build it from os.Getenv so tests can inject values without mutating the
// process environment.
type Env struct {
	CargoTargetDir           string
	CargoBuildTarget         string
	CargoProfileReleaseDebug string
	CargoProfileReleaseStrip string
	SourceDateEpoch          string
}

// LoadEnv reads the Cargo and SOURCE_DATE_EPOCH environment variables that
// Env carries; RUST_LOG is read by cmd/cargo-deb, not here.
func LoadEnv() Env {
	return Env{
		CargoTargetDir:           os.Getenv("CARGO_TARGET_DIR"),
		CargoBuildTarget:         os.Getenv("CARGO_BUILD_TARGET"),
		CargoProfileReleaseDebug: os.Getenv("CARGO_PROFILE_RELEASE_DEBUG"),
		CargoProfileReleaseStrip: os.Getenv("CARGO_PROFILE_RELEASE_STRIP"),
		SourceDateEpoch:          os.Getenv("SOURCE_DATE_EPOCH"),
	}
}

// CLIOverrides mirrors the subset of §6's flag table that feeds config
// resolution; pointer fields distinguish "not given" from "given as the
// zero value" (notably --deb-revision "").
type CLIOverrides struct {
	Maintainer            *string
	DebVersion            *string
	DebRevision           *string
	NoStrip               bool
	SeparateDebugSymbols  *bool
	Dbgsym                *bool
	CompressDebugSymbols  *string
	Features              []string
	NoDefaultFeatures     bool
	Profile               string
	Offline, Locked, Frozen bool
	PassThroughArgs       []string
	CargoBuild            string // subcommand in place of "build"; "" defaults to "build"
}

// ResolveOptions bundles everything Resolve needs beyond the manifest bytes
// themselves.
type ResolveOptions struct {
	ManifestPath          string
	WorkspaceManifestPath string // "" when the crate is not part of a workspace
	Variant               string
	TargetTriple          string // host triple when not cross-compiling
	TargetDir             string // resolved "target/" root
	CLI                   CLIOverrides
	Env                   Env
	Listener              buildlog.Listener // warnings go here; nil defaults to NoOp
}

// Resolve implements §4.1's algorithm end to end: parse, inherit, overlay
// the variant, apply CLI overrides, fill defaults, validate.
func Resolve(opts ResolveOptions) (*PackageDescription, error) {
	listener := opts.Listener
	if listener == nil {
		listener = buildlog.NoOp{}
	}

	data, err := os.ReadFile(opts.ManifestPath)
	if err != nil {
		return nil, deberr.NewIO(opts.ManifestPath, err)
	}
	var man cargoManifest
	if err := toml.Unmarshal(data, &man); err != nil {
		return nil, deberr.NewConfig("parsing "+opts.ManifestPath, err)
	}
	if man.Package == nil {
		return nil, deberr.NewConfig(opts.ManifestPath+": missing [package] table", nil)
	}

	var ws cargoWorkspacePackage
	if opts.WorkspaceManifestPath != "" {
		wsData, err := os.ReadFile(opts.WorkspaceManifestPath)
		if err != nil {
			return nil, deberr.NewIO(opts.WorkspaceManifestPath, err)
		}
		var wsMan cargoManifest
		if err := toml.Unmarshal(wsData, &wsMan); err != nil {
			return nil, deberr.NewConfig("parsing "+opts.WorkspaceManifestPath, err)
		}
		if wsMan.Workspace != nil && wsMan.Workspace.Package != nil {
			ws = *wsMan.Workspace.Package
		}
	}

	pkg := man.Package

	version, err := inheritScalar("version", pkg.Version, ws.Version)
	if err != nil {
		return nil, err
	}
	authors, err := inheritList("authors", pkg.Authors, ws.Authors)
	if err != nil {
		return nil, err
	}
	license, err := inheritScalar("license", pkg.License, ws.License)
	if err != nil {
		return nil, err
	}
	licenseFile, err := inheritScalar("license-file", pkg.LicenseFile, ws.LicenseFile)
	if err != nil {
		return nil, err
	}
	licenseSkipLines := 0
	homepage, err := inheritScalar("homepage", pkg.Homepage, ws.Homepage)
	if err != nil {
		return nil, err
	}
	readme, err := inheritScalar("readme", pkg.Readme, ws.Readme)
	if err != nil {
		return nil, err
	}

	publishable := true
	if b, ok := pkg.Publish.(bool); ok && !b {
		publishable = false
	}

	debRaw, err := decodeDebTable(pkg.Metadata["deb"])
	if err != nil {
		return nil, err
	}

	debName := pkg.Name
	if opts.Variant != "" {
		variant, ok := debRaw.Variants[opts.Variant]
		if !ok {
			return nil, deberr.NewConfig(fmt.Sprintf("unknown variant %q", opts.Variant), nil)
		}
		if variant.Name != "" {
			debName = variant.Name
		} else {
			debName = pkg.Name + "-" + opts.Variant
		}
		debRaw, err = mergeVariant(debRaw, variant)
		if err != nil {
			return nil, err
		}
	}

	assets, err := resolveAssets(debRaw)
	if err != nil {
		return nil, err
	}

	if debRaw.LicenseFile != nil {
		licenseFile, licenseSkipLines, err = parseLicenseFile(debRaw.LicenseFile)
		if err != nil {
			return nil, err
		}
	}

	desc := &PackageDescription{
		Name:                 pkg.Name,
		DebName:              debName,
		Version:              version,
		Revision:             debRaw.Revision,
		Maintainer:           debRaw.Maintainer,
		Copyright:            debRaw.Copyright,
		Homepage:             firstNonEmpty(debRaw.Homepage, homepage),
		Section:              orDefault(debRaw.Section, "utils"),
		Priority:             orDefault(debRaw.Priority, "optional"),
		ShortDescription:     firstLine(pkg.Description),
		Relationships:        resolveRelationships(&debRaw),
		BuiltUsing:           debRaw.BuiltUsing,
		Assets:               assets,
		ConfFiles:            debRaw.ConfFiles,
		Triggers:             readVerbatim(opts.ManifestPath, debRaw.TriggersFile),
		SeparateDebugSymbols: resolveStripDefault(debRaw.SeparateDebugSymbols, opts),
		CompressDebugSymbols: debRaw.CompressDebugSymbols,
		Dbgsym:               boolOr(debRaw.Dbgsym, false),
		PreserveSymlinks:     boolOr(debRaw.PreserveSymlinks, false),
		DefaultFeatures:      !opts.CLI.NoDefaultFeatures,
		Features:             opts.CLI.Features,
		Profile:              orDefault(opts.CLI.Profile, "release"),
		PassThroughArgs:      opts.CLI.PassThroughArgs,
		Offline:              opts.CLI.Offline,
		Locked:               opts.CLI.Locked,
		Frozen:               opts.CLI.Frozen,
		Changelog:            debRaw.Changelog,
		ReadmePath:           readme,
		License:              license,
		LicenseFile:          licenseFile,
		LicenseSkipLines:     licenseSkipLines,
		ExtendedDescription:  debRaw.ExtendedDescription,
		TargetTriple:         opts.TargetTriple,
		TargetDir:            opts.TargetDir,
		CargoBuild:           opts.CLI.CargoBuild,
		SystemdUnitsEnabled:  debRaw.SystemdUnits != nil,
		SystemdUnits:         parseSystemdUnits(debRaw.SystemdUnits),
		MaintainerScriptsDir: debRaw.MaintainerScripts,
	}

	applyCLIOverrides(desc, opts.CLI)

	if err := fillDefaults(desc, authors, license, licenseFile, publishable, readme, debRaw.ExtendedDescriptionFile, opts.ManifestPath, opts.CLI.DebRevision != nil, listener); err != nil {
		return nil, err
	}

	if desc.MaintainerScriptsDir != "" {
		desc.Scripts = ScriptBodies{
			PreInst:   readVerbatim(opts.ManifestPath, filepath.Join(desc.MaintainerScriptsDir, "preinst")),
			PostInst:  readVerbatim(opts.ManifestPath, filepath.Join(desc.MaintainerScriptsDir, "postinst")),
			PreRm:     readVerbatim(opts.ManifestPath, filepath.Join(desc.MaintainerScriptsDir, "prerm")),
			PostRm:    readVerbatim(opts.ManifestPath, filepath.Join(desc.MaintainerScriptsDir, "postrm")),
			Config:    readVerbatim(opts.ManifestPath, filepath.Join(desc.MaintainerScriptsDir, "config")),
			Templates: readVerbatim(opts.ManifestPath, filepath.Join(desc.MaintainerScriptsDir, "templates")),
		}
	}

	if opts.Env.SourceDateEpoch != "" {
		if secs, err := strconv.ParseInt(opts.Env.SourceDateEpoch, 10, 64); err == nil {
			desc.SourceDateEpoch = time.Unix(secs, 0).UTC()
		}
	}
	if desc.SourceDateEpoch.IsZero() {
		if info, err := os.Stat(opts.ManifestPath); err == nil {
			desc.SourceDateEpoch = info.ModTime().UTC()
		}
	}

	if err := validate(desc); err != nil {
		return nil, err
	}

	return desc, nil
}

// mergeVariant overlays variant onto base per §4.1 rule 2: scalar fields
// from variant win when set; assets follow §4.2 (handled by the caller via
// resolveAssets, which is invoked on the already-merged struct).
func mergeVariant(base, variant debMetadataRaw) (debMetadataRaw, error) {
	merged := base

	overlayString := func(b, v string) string {
		if v != "" {
			return v
		}
		return b
	}
	merged.Maintainer = overlayString(base.Maintainer, variant.Maintainer)
	merged.Copyright = overlayString(base.Copyright, variant.Copyright)
	merged.Section = overlayString(base.Section, variant.Section)
	merged.Priority = overlayString(base.Priority, variant.Priority)
	merged.Homepage = overlayString(base.Homepage, variant.Homepage)
	merged.Revision = overlayString(base.Revision, variant.Revision)
	merged.BuiltUsing = overlayString(base.BuiltUsing, variant.BuiltUsing)
	merged.ExtendedDescription = overlayString(base.ExtendedDescription, variant.ExtendedDescription)
	merged.ExtendedDescriptionFile = overlayString(base.ExtendedDescriptionFile, variant.ExtendedDescriptionFile)
	merged.Changelog = overlayString(base.Changelog, variant.Changelog)
	merged.MaintainerScripts = overlayString(base.MaintainerScripts, variant.MaintainerScripts)
	merged.TriggersFile = overlayString(base.TriggersFile, variant.TriggersFile)
	merged.CompressDebugSymbols = overlayString(base.CompressDebugSymbols, variant.CompressDebugSymbols)

	if variant.Depends != nil {
		merged.Depends = variant.Depends
	}
	if variant.PreDepends != nil {
		merged.PreDepends = variant.PreDepends
	}
	if variant.Recommends != nil {
		merged.Recommends = variant.Recommends
	}
	if variant.Suggests != nil {
		merged.Suggests = variant.Suggests
	}
	if variant.Enhances != nil {
		merged.Enhances = variant.Enhances
	}
	if variant.Conflicts != nil {
		merged.Conflicts = variant.Conflicts
	}
	if variant.Breaks != nil {
		merged.Breaks = variant.Breaks
	}
	if variant.Replaces != nil {
		merged.Replaces = variant.Replaces
	}
	if variant.Provides != nil {
		merged.Provides = variant.Provides
	}
	if variant.ConfFiles != nil {
		merged.ConfFiles = variant.ConfFiles
	}
	if variant.SeparateDebugSymbols != nil {
		merged.SeparateDebugSymbols = variant.SeparateDebugSymbols
	}
	if variant.Dbgsym != nil {
		merged.Dbgsym = variant.Dbgsym
	}
	if variant.PreserveSymlinks != nil {
		merged.PreserveSymlinks = variant.PreserveSymlinks
	}
	if variant.SystemdUnits != nil {
		merged.SystemdUnits = variant.SystemdUnits
	}
	if variant.LicenseFile != nil {
		merged.LicenseFile = variant.LicenseFile
	}

	// assets: variant literal `assets` replaces outright; `merge-assets`
	// combines with the base per §4.2. A variant never sets both.
	if variant.Assets != nil {
		merged.Assets = variant.Assets
		merged.MergeAssets = nil
	} else if variant.MergeAssets != nil {
		merged.MergeAssets = variant.MergeAssets
	}

	return merged, nil
}

func resolveAssets(d debMetadataRaw) ([]AssetSpec, error) {
	base, err := parseAssetEntries(d.Assets)
	if err != nil {
		return nil, err
	}
	if d.MergeAssets != nil {
		return applyMergeAssets(base, d.MergeAssets)
	}
	return base, nil
}

func resolveRelationships(d *debMetadataRaw) map[string][]string {
	rels := make(map[string][]string)
	for _, k := range relationshipKinds {
		if list := toStringList(k.value(d)); len(list) > 0 {
			rels[k.key] = list
		}
	}
	// An absent `depends` defaults to "$auto", resolved against the built
	// binaries' shared-library dependencies during control synthesis.
	if d.Depends == nil {
		rels["depends"] = []string{"$auto"}
	}
	return rels
}

// resolveStripDefault implements the Open Question decision recorded in
// DESIGN.md: CARGO_PROFILE_RELEASE_STRIP sets the default, an explicit CLI
// flag always wins.
func resolveStripDefault(manifestValue *bool, opts ResolveOptions) bool {
	if opts.CLI.SeparateDebugSymbols != nil {
		return *opts.CLI.SeparateDebugSymbols
	}
	if manifestValue != nil {
		return *manifestValue
	}
	switch opts.Env.CargoProfileReleaseStrip {
	case "true", "symbols", "debuginfo":
		return true
	}
	return false
}

func applyCLIOverrides(desc *PackageDescription, cli CLIOverrides) {
	if cli.Maintainer != nil {
		desc.Maintainer = *cli.Maintainer
	}
	if cli.DebVersion != nil {
		desc.Version = *cli.DebVersion
	}
	if cli.DebRevision != nil {
		desc.Revision = *cli.DebRevision
	}
	if cli.NoStrip {
		desc.SeparateDebugSymbols = false
		desc.NoStrip = true
	}
	if cli.Dbgsym != nil {
		desc.Dbgsym = *cli.Dbgsym
	}
	if cli.CompressDebugSymbols != nil {
		desc.CompressDebugSymbols = *cli.CompressDebugSymbols
	}
}

func fillDefaults(desc *PackageDescription, authors []string, license, licenseFile string, publishable bool, readme, extendedDescriptionFile, manifestPath string, revisionExplicitlySet bool, listener buildlog.Listener) error {
	if desc.Maintainer == "" {
		if len(authors) > 0 {
			desc.Maintainer = authors[0]
		} else {
			listener.Warning("no maintainer found: set [package.authors] or package.metadata.deb.maintainer")
		}
	}
	if desc.Copyright == "" {
		if len(authors) > 0 {
			desc.Copyright = strings.Join(authors, ", ")
		} else {
			listener.Warning("no copyright holder found: set [package.authors] or package.metadata.deb.copyright")
		}
	}

	hasLicense := license != "" || licenseFile != ""
	if !hasLicense {
		if !publishable {
			license = "UNLICENSED"
		} else {
			return deberr.NewConfig("no license or license-file declared for a publishable package", nil)
		}
	}
	desc.License = license

	if desc.Revision == "" && !revisionExplicitlySet {
		desc.Revision = "1"
	}

	if desc.Architecture == "" {
		debianArch, err := arch.FromTriple(desc.TargetTriple)
		if err != nil {
			return err
		}
		desc.Architecture = debianArch
	}

	// extended-description-file wins over a literal extended-description,
	// which wins over a README fallback with Markdown elided.
	if extendedDescriptionFile != "" {
		if desc.ExtendedDescription != "" {
			listener.Warning("extended-description and extended-description-file are both set")
		}
		desc.ExtendedDescription = readVerbatim(manifestPath, extendedDescriptionFile)
	} else if desc.ExtendedDescription == "" && readme != "" {
		full := readme
		if !filepath.IsAbs(full) {
			full = filepath.Join(filepath.Dir(manifestPath), readme)
		}
		if content, err := os.ReadFile(full); err == nil {
			desc.ExtendedDescription = elideMarkdown(string(content))
		}
	}

	return nil
}

// elideMarkdown strips heading lines and fenced code blocks from a README
// before it becomes the extended package description, collapsing the runs
// of blank lines those removals leave behind into one.
func elideMarkdown(s string) string {
	var b strings.Builder
	inFence := false
	lastBlank := false
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if trimmed == "" && lastBlank {
			continue
		}
		lastBlank = trimmed == ""
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func readVerbatim(manifestPath, relPath string) string {
	if relPath == "" {
		return ""
	}
	full := relPath
	if !filepath.IsAbs(full) {
		full = filepath.Join(filepath.Dir(manifestPath), relPath)
	}
	content, err := os.ReadFile(full)
	if err != nil {
		return ""
	}
	return string(content)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

var packageNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9+\-.]*$`)

func validate(desc *PackageDescription) error {
	if !packageNamePattern.MatchString(desc.DebName) {
		return deberr.NewValidation(fmt.Sprintf("invalid Debian package name %q", desc.DebName))
	}
	if desc.Version == "" {
		return deberr.NewValidation("version is required")
	}
	if strings.ContainsAny(desc.Version, " \t\n") {
		return deberr.NewValidation(fmt.Sprintf("invalid version %q", desc.Version))
	}
	for _, a := range desc.Assets {
		if a.Auto || a.Dest == "" {
			continue
		}
		if err := ValidateAssetDest(a.Dest); err != nil {
			return err
		}
	}
	return nil
}

// permittedAssetRoots lists the top-level directories §3's asset invariant
// allows a dest_path to resolve under.
var permittedAssetRoots = []string{"usr/", "etc/", "var/", "lib/", "opt/", "srv/"}

// ValidateAssetDest enforces §3's asset invariant: dest_path is relative,
// contains no ".." component, and resolves under a permitted root. Called
// both here against each manifest-declared AssetSpec.Dest and again by the
// asset planner against every glob- or $auto-expanded concrete dest, since
// neither a literal manifest entry nor an expansion result alone covers the
// full set of paths that end up in the archive.
func ValidateAssetDest(dest string) error {
	clean := strings.TrimPrefix(dest, "/")
	for _, part := range strings.Split(clean, "/") {
		if part == ".." {
			return deberr.NewAsset(fmt.Sprintf("asset destination %q escapes its permitted root", dest), nil)
		}
	}
	for _, root := range permittedAssetRoots {
		if strings.HasPrefix(clean, root) {
			return nil
		}
	}
	return deberr.NewAsset(fmt.Sprintf("asset destination %q is outside the permitted roots (usr/, etc/, var/, lib/, opt/, srv/)", dest), nil)
}

// decodeDebTable re-encodes the generic map produced by decoding
// [package.metadata] and decodes it again into the strongly typed
// debMetadataRaw, since go-toml/v2 has no way to defer struct decoding of
// a subtree discovered through a map[string]any walk.
func decodeDebTable(raw any) (debMetadataRaw, error) {
	var out debMetadataRaw
	if raw == nil {
		return out, nil
	}
	b, err := toml.Marshal(raw)
	if err != nil {
		return out, deberr.NewConfig("re-encoding [package.metadata.deb]", err)
	}
	if err := toml.Unmarshal(b, &out); err != nil {
		return out, deberr.NewConfig("decoding [package.metadata.deb]", err)
	}
	return out, nil
}
