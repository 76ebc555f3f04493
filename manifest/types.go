// Package manifest parses a Cargo manifest and resolves it, together with
// workspace inheritance, a Debian-metadata variant overlay, CLI overrides
// and environment defaults, into a single canonical PackageDescription.
package manifest

import "time"

// PackageDescription is the canonical result of config resolution. Every
// later stage (asset planner, builder driver, debug-info splitter, control
// synthesizer, archive writer) consumes it and nothing else from the
// manifest. It is not immutable: cmd/cargo-deb rewrites Relationships
// ($auto expansion) and appends systemd fragments to Scripts in place.
type PackageDescription struct {
	// Identity.
	Name         string // crate name
	DebName      string // Debian package name, may differ from Name
	Version      string
	Revision     string // Debian revision, defaults to "1"; "" is meaningful
	Architecture string // Debian architecture name, not the compiler triple
	Maintainer   string
	Copyright    string
	Homepage     string
	Section      string
	Priority     string

	ShortDescription    string
	ExtendedDescription string

	// Relationships maps a relationship kind ("depends", "pre-depends",
	// "recommends", "suggests", "enhances", "conflicts", "breaks",
	// "replaces", "provides") to its Debian-relationship-expression list.
	Relationships map[string][]string
	BuiltUsing    string

	Assets    []AssetSpec
	ConfFiles []string // explicit entries; /etc/ prefix is unioned in later

	Scripts  ScriptBodies
	Triggers string

	SeparateDebugSymbols bool
	CompressDebugSymbols string // "", "zlib" or "zstd"
	Dbgsym               bool
	NoStrip              bool // --no-strip: emit executable assets unmodified, no in-place strip either
	PreserveSymlinks     bool

	Features        []string
	DefaultFeatures  bool
	Profile          string
	PassThroughArgs  []string
	Offline          bool
	Locked           bool
	Frozen           bool

	Changelog        string
	ReadmePath       string
	License          string // SPDX expression, for the copyright file's License: line
	LicenseFile      string
	LicenseSkipLines int // header lines to skip when the license file already states its own copyright block

	TargetTriple string // compiler triple, resolved but not yet Debian-mapped
	TargetDir    string // resolved "target/" root
	CargoBuild   string // subcommand in place of "build"

	// SourceDateEpoch, when non-zero, pins every archive timestamp for
	// reproducible builds (§5/§4.6). Falls back to the manifest's own
	// mtime, then to time.Now() at archive-write time.
	SourceDateEpoch time.Time

	// SystemdUnitsEnabled mirrors whether [package.metadata.deb.systemd-units]
	// was present, so the caller knows whether to invoke the collaborator.
	SystemdUnitsEnabled  bool
	SystemdUnits         []SystemdUnitConfig
	MaintainerScriptsDir string
}

// SystemdUnitConfig is one [package.metadata.deb.systemd-units] entry (the
// field accepts either a single table or an array of tables).
type SystemdUnitConfig struct {
	UnitName            string // "" searches using the package name
	UnitScripts         string // directory to search for unit files; "" falls back to MaintainerScriptsDir
	Enable              bool
	Start               bool
	RestartAfterUpgrade bool
	StopOnUpgrade       bool
}

// ScriptBodies holds the maintainer-script bodies threaded through from the
// manifest (paths read at this stage are left to the caller; Resolve stores
// literal content once read).
type ScriptBodies struct {
	PreInst   string
	PostInst  string
	PreRm     string
	PostRm    string
	Config    string
	Templates string
}

// AssetSpec is one still-unexpanded asset directive: either a concrete
// source/dest/mode triple, or the $auto sentinel to be expanded by the
// asset planner once it knows the built binaries.
type AssetSpec struct {
	Auto   bool
	Source string
	Dest   string
	Mode   string // octal string, e.g. "755"; "" defers to the planner's default
}
