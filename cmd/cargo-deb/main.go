// cargo-deb builds a Debian binary package (and optionally its -dbgsym
// sibling) from a Cargo manifest, following the cargo subcommand
// convention: cargo invokes this binary as "cargo-deb deb [flags]".
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/kornelski/cargo-deb/deb"
	"github.com/kornelski/cargo-deb/internal/arch"
	"github.com/kornelski/cargo-deb/internal/assets"
	"github.com/kornelski/cargo-deb/internal/buildcache"
	"github.com/kornelski/cargo-deb/internal/buildlog"
	"github.com/kornelski/cargo-deb/internal/cargobuild"
	"github.com/kornelski/cargo-deb/internal/deberr"
	"github.com/kornelski/cargo-deb/internal/debuginfo"
	"github.com/kornelski/cargo-deb/internal/deps"
	"github.com/kornelski/cargo-deb/internal/systemd"
	"github.com/kornelski/cargo-deb/manifest"
)

// arrayFlags collects a repeated flag into a slice, the teacher's idiom for
// flags like --features that may be given more than once.
type arrayFlags []string

func (f *arrayFlags) String() string { return strings.Join(*f, ", ") }
func (f *arrayFlags) Set(v string) error {
	*f = append(*f, v)
	return nil
}

// optionalString distinguishes "flag not given" from "flag given as the
// empty string", needed for --deb-revision "" (§4.1 rule 3).
type optionalString struct {
	value string
	set   bool
}

func (s *optionalString) String() string { return s.value }
func (s *optionalString) Set(v string) error {
	s.value, s.set = v, true
	return nil
}
func (s *optionalString) Pointer() *string {
	if !s.set {
		return nil
	}
	v := s.value
	return &v
}

func main() {
	args := os.Args[1:]
	if len(args) > 0 && args[0] == "deb" {
		args = args[1:]
	}
	if err := run(args); err != nil {
		log.Print("cargo-deb: ", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor propagates the compiler's own non-zero exit status when cargo
// failed (its captured diagnostics are part of the logged error message);
// every other fatal error exits 1.
func exitCodeFor(err error) int {
	var buildErr *deberr.Build
	var exitErr *exec.ExitError
	if errors.As(err, &buildErr) && errors.As(buildErr.Err, &exitErr) && exitErr.ExitCode() > 0 {
		return exitErr.ExitCode()
	}
	return 1
}

func run(args []string) error {
	fs := flag.NewFlagSet("deb", flag.ExitOnError)

	output := fs.String("output", "", "override destination path")
	manifestPath := fs.String("manifest-path", "Cargo.toml", "manifest location")
	pkgName := fs.String("p", "", "workspace member selection")
	fs.StringVar(pkgName, "package", "", "workspace member selection")
	variant := fs.String("variant", "", "select metadata variant")
	target := fs.String("target", "", "cross-compile target")
	profile := fs.String("profile", "release", "cargo profile")
	var features arrayFlags
	fs.Var(&features, "features", "enable a Cargo feature (repeatable)")
	noDefaultFeatures := fs.Bool("no-default-features", false, "disable default features")
	allFeatures := fs.Bool("all-features", false, "enable all features")
	noBuild := fs.Bool("no-build", false, "skip the compiler invocation")
	noStrip := fs.Bool("no-strip", false, "skip stripping binaries")
	var sepDebugOn, sepDebugOff bool
	fs.BoolVar(&sepDebugOn, "separate-debug-symbols", false, "detach debug info into a .debug file")
	fs.BoolVar(&sepDebugOff, "no-separate-debug-symbols", false, "keep debug info inline (default)")
	var dbgsymOn, dbgsymOff bool
	fs.BoolVar(&dbgsymOn, "dbgsym", false, "emit a -dbgsym.ddeb sibling package")
	fs.BoolVar(&dbgsymOff, "no-dbgsym", false, "don't emit a -dbgsym.ddeb sibling package")
	compressDebugSymbols := fs.String("compress-debug-symbols", "", "compress detached debug sections: zlib or zstd")
	compressType := fs.String("compress-type", "xz", "archive compressor: gzip or xz")
	compressSystem := fs.Bool("compress-system", false, "invoke the system gzip/xz binary instead of the built-in codec")
	fast := fs.Bool("fast", false, "trade compression ratio for speed")
	rsyncable := fs.Bool("rsyncable", false, "use rsync-friendly block boundaries")
	var debVersion, debRevision, maintainer optionalString
	fs.Var(&debVersion, "deb-version", "override the package version")
	fs.Var(&debRevision, "deb-revision", "override the Debian revision")
	fs.Var(&maintainer, "maintainer", "override the maintainer field")
	install := fs.Bool("install", false, "run dpkg -i on the built package")
	cargoBuildCmd := fs.String("cargo-build", "", "subcommand to run in place of \"build\"")
	offline := fs.Bool("offline", false, "pass --offline through to cargo")
	locked := fs.Bool("locked", false, "pass --locked through to cargo")
	frozen := fs.Bool("frozen", false, "pass --frozen through to cargo")
	verbose := fs.Bool("verbose", false, "print progress information")
	fs.BoolVar(verbose, "v", false, "print progress information")
	veryVerbose := fs.Bool("vv", false, "print progress and diagnostic detail")
	quiet := fs.Bool("quiet", false, "print nothing but fatal errors, not even the archive path")

	fs.Parse(args)
	passThrough := fs.Args()

	listener := buildlog.New(*verbose || *veryVerbose || os.Getenv("RUST_LOG") == "debug", *quiet)

	absManifest, err := filepath.Abs(resolveManifestPath(*manifestPath, *pkgName))
	if err != nil {
		return err
	}
	sourceRoot := filepath.Dir(absManifest)

	targetDir := os.Getenv("CARGO_TARGET_DIR")
	if targetDir == "" {
		targetDir = filepath.Join(sourceRoot, "target")
	} else if !filepath.IsAbs(targetDir) {
		targetDir = filepath.Join(sourceRoot, targetDir)
	}

	triple := *target
	if triple == "" {
		triple = os.Getenv("CARGO_BUILD_TARGET")
	}
	if triple == "" {
		triple = arch.HostTriple()
	}

	cli := manifest.CLIOverrides{
		Maintainer:           maintainer.Pointer(),
		DebVersion:           debVersion.Pointer(),
		DebRevision:          debRevision.Pointer(),
		NoStrip:              *noStrip,
		SeparateDebugSymbols: boolPairPointer(sepDebugOn, sepDebugOff),
		Dbgsym:               boolPairPointer(dbgsymOn, dbgsymOff),
		CompressDebugSymbols: optionalNonEmpty(*compressDebugSymbols),
		Features:             features,
		NoDefaultFeatures:    *noDefaultFeatures,
		Profile:              *profile,
		Offline:              *offline,
		Locked:               *locked,
		Frozen:               *frozen,
		PassThroughArgs:      passThrough,
		CargoBuild:           *cargoBuildCmd,
	}

	desc, err := manifest.Resolve(manifest.ResolveOptions{
		ManifestPath:          absManifest,
		WorkspaceManifestPath: findWorkspaceManifest(sourceRoot),
		Variant:               *variant,
		TargetTriple:          triple,
		TargetDir:             targetDir,
		CLI:                   cli,
		Env:                   manifest.LoadEnv(),
		Listener:              listener,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var builtBinaries []assets.BuiltBinary
	if !*noBuild {
		artifacts, err := cargobuild.Build(ctx, cargobuild.Options{
			Dir:               sourceRoot,
			CargoBuildCmd:     desc.CargoBuild,
			Profile:           desc.Profile,
			Target:            onlyIfCrossCompiling(triple),
			Features:          desc.Features,
			NoDefaultFeatures: !desc.DefaultFeatures,
			AllFeatures:       *allFeatures,
			Offline:           desc.Offline,
			Locked:            desc.Locked,
			Frozen:            desc.Frozen,
			PassThroughArgs:   desc.PassThroughArgs,
		}, listener)
		if err != nil {
			return err
		}
		for _, a := range artifacts {
			builtBinaries = append(builtBinaries, assets.BuiltBinary{Name: a.Name, Path: a.Path})
		}
	} else {
		builtBinaries = guessBuiltBinaries(desc)
	}

	resolvedAssets, err := assets.Plan(sourceRoot, desc, builtBinaries, listener)
	if err != nil {
		return err
	}

	tools := debuginfo.Tools{CrossPrefix: crossPrefix(triple)}
	mainAssets, debugAssets, err := splitDebugInfo(ctx, resolvedAssets, desc, tools, listener)
	if err != nil {
		return err
	}
	buildDbgsym := wantDbgsym(desc, dbgsymOn, dbgsymOff)
	if !buildDbgsym {
		mainAssets = append(mainAssets, debugAssets...)
		debugAssets = nil
	}

	binaryPaths := make([]string, 0, len(builtBinaries))
	for _, b := range builtBinaries {
		binaryPaths = append(binaryPaths, b.Path)
	}
	for kind, list := range desc.Relationships {
		resolved, err := deps.ResolveAuto(ctx, list, binaryPaths, desc.Architecture)
		if err != nil {
			return err
		}
		desc.Relationships[kind] = resolved
	}

	if desc.SystemdUnitsEnabled {
		sysAssets, frags, err := systemd.Collaborate(desc, sourceRoot)
		if err != nil {
			return err
		}
		for _, a := range sysAssets {
			mainAssets = append(mainAssets, deb.Asset{DestPath: "/" + a.DestPath, Content: a.Content, Mode: a.Mode})
		}
		desc.Scripts.PostInst += frags.PostInst
		desc.Scripts.PreRm += frags.PreRm
		desc.Scripts.PostRm += frags.PostRm
	}

	pkg := buildMainPackage(desc, mainAssets)

	compressor, err := pickCompressor(*compressType, *compressSystem, *fast, *rsyncable, ctx, listener)
	if err != nil {
		return err
	}

	outDir := filepath.Join(targetDir, "debian")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	digests, err := writePackage(pkg, *output, outDir, compressor, desc.SourceDateEpoch)
	if err != nil {
		return err
	}
	listener.GeneratedArchive(resolvePackagePath(*output, outDir, pkg))

	cache, err := buildcache.Load(targetDir)
	if err == nil {
		if cache.Unchanged(pkg.Metadata.Package, digests) {
			listener.Info("%s %s: asset digests match the previous build", pkg.Metadata.Package, pkg.Metadata.Version)
		}
		_ = cache.Save(targetDir, pkg.Metadata.Package, pkg.Metadata.Version, digests)
	}

	if buildDbgsym && len(debugAssets) > 0 {
		dbgsymPkg := buildDbgsymPackage(desc, pkg, debugAssets)
		if _, err := writePackage(dbgsymPkg, "", outDir, compressor, desc.SourceDateEpoch); err != nil {
			return err
		}
		listener.GeneratedArchive(resolvePackagePath("", outDir, dbgsymPkg))
	}

	if *install {
		debPath := resolvePackagePath(*output, outDir, pkg)
		if err := exec.CommandContext(ctx, "dpkg", "-i", debPath).Run(); err != nil {
			return fmt.Errorf("dpkg -i %s: %w", debPath, err)
		}
	}

	return nil
}

// resolveManifestPath implements -p/--package's workspace-member selection
// as a conventional <workspace-dir>/<name>/Cargo.toml lookup: cargo's own
// workspace-member resolution is richer (path deps, [workspace.members]
// globs), but this tool only needs enough of it to point at the member's
// manifest, and the convention matches how most workspaces lay members out.
func resolveManifestPath(manifestPath, pkgName string) string {
	if pkgName == "" {
		return manifestPath
	}
	dir := filepath.Dir(manifestPath)
	return filepath.Join(dir, pkgName, "Cargo.toml")
}

// findWorkspaceManifest walks up from dir looking for an ancestor
// Cargo.toml with a [workspace] table, mirroring cargo's own workspace-root
// discovery. A crate manifest can itself be the workspace root, so dir's
// own Cargo.toml is checked first.
func findWorkspaceManifest(dir string) string {
	for {
		candidate := filepath.Join(dir, "Cargo.toml")
		if data, err := os.ReadFile(candidate); err == nil {
			if strings.Contains(string(data), "[workspace]") {
				return candidate
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func onlyIfCrossCompiling(triple string) string {
	if triple == arch.HostTriple() {
		return ""
	}
	return triple
}

func crossPrefix(triple string) string {
	if triple == "" || triple == arch.HostTriple() {
		return ""
	}
	return triple + "-"
}

func boolPairPointer(on, off bool) *bool {
	switch {
	case on:
		v := true
		return &v
	case off:
		v := false
		return &v
	default:
		return nil
	}
}

func optionalNonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// guessBuiltBinaries approximates --no-build's artifact discovery: cargo's
// own JSON build plan is unavailable without actually invoking it, so this
// falls back to the crate-name convention (one binary named after the
// package, at the resolved build directory).
func guessBuiltBinaries(desc *manifest.PackageDescription) []assets.BuiltBinary {
	dir := desc.TargetDir
	if dir == "" {
		dir = "target"
	}
	profileDir := desc.Profile
	if profileDir == "" || profileDir == "release" {
		profileDir = "release"
	} else if profileDir == "dev" {
		profileDir = "debug"
	}
	if desc.TargetTriple != "" && desc.TargetTriple != arch.HostTriple() {
		dir = filepath.Join(dir, desc.TargetTriple)
	}
	return []assets.BuiltBinary{{Name: desc.Name, Path: filepath.Join(dir, profileDir, desc.Name)}}
}

// splitDebugInfo runs the debug-info splitter over every ELF-executable
// asset (anything installed under usr/bin, usr/sbin or usr/lib), replacing its
// content with the stripped binary and collecting the detached debug files
// for the -dbgsym sibling.
func splitDebugInfo(ctx context.Context, in []assets.Resolved, desc *manifest.PackageDescription, tools debuginfo.Tools, listener buildlog.Listener) ([]deb.Asset, []deb.Asset, error) {
	var mainAssets []deb.Asset
	var debugAssets []deb.Asset

	for _, a := range in {
		if a.SymlinkTarget != "" {
			mainAssets = append(mainAssets, deb.Asset{DestPath: "/" + a.DestPath, SymlinkTarget: a.SymlinkTarget, Mode: a.Mode})
			continue
		}

		content := a.Data
		if content == nil {
			b, err := os.ReadFile(a.SourcePath)
			if err != nil {
				return nil, nil, err
			}
			content = b
		}

		if !isExecutableAsset(a.DestPath) {
			mainAssets = append(mainAssets, deb.Asset{DestPath: "/" + a.DestPath, Content: content, Mode: a.Mode, IsConf: a.IsConf})
			continue
		}

		if !desc.SeparateDebugSymbols {
			if a.SourcePath != "" && !desc.NoStrip {
				listener.Progress("Stripping", a.SourcePath)
				stripped, err := debuginfo.StripInPlace(ctx, a.SourcePath, tools)
				if err == nil {
					content = stripped
				}
			}
			mainAssets = append(mainAssets, deb.Asset{DestPath: "/" + a.DestPath, Content: content, Mode: a.Mode, IsConf: a.IsConf})
			continue
		}

		compress := desc.CompressDebugSymbols
		if compress == "" {
			compress = debuginfo.DefaultCompressAlgo(desc.Profile == "dev")
		}
		result, err := debuginfo.Split(ctx, a.SourcePath, a.DestPath, debuginfo.Options{
			Tools:    tools,
			Compress: compress,
		})
		if err != nil {
			return nil, nil, err
		}
		mainAssets = append(mainAssets, deb.Asset{DestPath: "/" + a.DestPath, Content: result.StrippedBinary, Mode: a.Mode, IsConf: a.IsConf})
		debugAssets = append(debugAssets, deb.Asset{DestPath: "/" + result.DebugDestPath, Content: result.DebugFileData, Mode: 0o644})
	}

	return mainAssets, debugAssets, nil
}

func isExecutableAsset(destPath string) bool {
	return strings.HasPrefix(destPath, "usr/bin/") || strings.HasPrefix(destPath, "usr/sbin/") || strings.HasPrefix(destPath, "usr/lib/")
}

func wantDbgsym(desc *manifest.PackageDescription, on, off bool) bool {
	if off {
		return false
	}
	return on || desc.Dbgsym
}

func buildMainPackage(desc *manifest.PackageDescription, mainAssets []deb.Asset) *deb.Package {
	description := desc.ShortDescription
	if desc.ExtendedDescription != "" {
		description += "\n" + desc.ExtendedDescription
	}
	return &deb.Package{
		Metadata: deb.Metadata{
			Package:      desc.DebName,
			Version:      packageVersion(desc),
			Architecture: desc.Architecture,
			Maintainer:   desc.Maintainer,
			Description:  description,
			Section:      desc.Section,
			Priority:     desc.Priority,
			Homepage:     desc.Homepage,
			Depends:      desc.Relationships["depends"],
			PreDepends:   desc.Relationships["pre-depends"],
			Recommends:   desc.Relationships["recommends"],
			Suggests:     desc.Relationships["suggests"],
			Enhances:     desc.Relationships["enhances"],
			Conflicts:    desc.Relationships["conflicts"],
			Breaks:       desc.Relationships["breaks"],
			Replaces:     desc.Relationships["replaces"],
			Provides:     desc.Relationships["provides"],
			BuiltUsing:   desc.BuiltUsing,
		},
		Scripts: deb.Scripts{
			PreInst:   desc.Scripts.PreInst,
			PostInst:  desc.Scripts.PostInst,
			PreRm:     desc.Scripts.PreRm,
			PostRm:    desc.Scripts.PostRm,
			Config:    desc.Scripts.Config,
			Templates: desc.Scripts.Templates,
			Triggers:  desc.Triggers,
		},
		Assets: mainAssets,
	}
}

// buildDbgsymPackage implements §4.7: the sibling package shares the main
// package's identity but for name, section, depends and payload.
func buildDbgsymPackage(desc *manifest.PackageDescription, mainPkg *deb.Package, debugAssets []deb.Asset) *deb.Package {
	return &deb.Package{
		Metadata: deb.Metadata{
			Package:      desc.DebName + "-dbgsym",
			Version:      mainPkg.Metadata.Version,
			Architecture: mainPkg.Metadata.Architecture,
			Maintainer:   mainPkg.Metadata.Maintainer,
			Description:  "debug symbols for " + desc.DebName,
			Section:      "debug",
			Priority:     "optional",
			Depends:      []string{desc.DebName + " (= " + mainPkg.Metadata.Version + ")"},
			ExtraFields:  map[string]string{"Auto-Built-Package": "debug-symbols"},
		},
		Assets: debugAssets,
	}
}

func packageVersion(desc *manifest.PackageDescription) string {
	if desc.Revision == "" {
		return desc.Version
	}
	return desc.Version + "-" + desc.Revision
}

func pickCompressor(compressType string, system, fast, rsyncable bool, ctx context.Context, listener buildlog.Listener) (deb.Compressor, error) {
	if system {
		name := compressType
		if name == "" {
			name = "xz"
		}
		args := []string{"-c"}
		if fast {
			args = append(args, "-1")
		}
		if rsyncable {
			args = append(args, "--rsyncable")
		}
		return deb.SystemCompressor{Ctx: ctx, Name: name, Args: args, Ext: extensionFor(name)}, nil
	}
	if rsyncable {
		listener.Warning("--rsyncable has no effect on the in-process gzip/xz codecs; pass --compress-system to get an rsyncable archive")
	}
	switch compressType {
	case "gzip":
		return deb.GzipCompressor{Fast: fast}, nil
	case "xz", "":
		return deb.XzCompressor{Fast: fast}, nil
	default:
		return nil, fmt.Errorf("unknown --compress-type %q", compressType)
	}
}

func extensionFor(name string) string {
	if name == "gzip" {
		return "gz"
	}
	return name
}

func writePackage(pkg *deb.Package, output, outDir string, compressor deb.Compressor, ts time.Time) (map[string]string, error) {
	path := resolvePackagePath(output, outDir, pkg)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", tmp, err)
	}
	_, digests, buildErr := pkg.Build(f, deb.BuildOptions{Timestamp: ts, Compressor: compressor})
	closeErr := f.Close()
	if buildErr != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("building %s: %w", path, buildErr)
	}
	if closeErr != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("closing %s: %w", tmp, closeErr)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return digests, nil
}

func resolvePackagePath(output, outDir string, pkg *deb.Package) string {
	if output != "" {
		if isDbgsym(pkg) {
			return filepath.Join(filepath.Dir(output), strings.TrimSuffix(filepath.Base(output), ".deb")+"-dbgsym.ddeb")
		}
		return output
	}
	name := pkg.StandardFilename()
	if isDbgsym(pkg) {
		name = strings.TrimSuffix(name, ".deb") + ".ddeb"
	}
	return filepath.Join(outDir, name)
}

func isDbgsym(pkg *deb.Package) bool {
	return strings.HasSuffix(pkg.Metadata.Package, "-dbgsym")
}
