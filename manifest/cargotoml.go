package manifest

// cargoManifest mirrors the subset of Cargo.toml this tool reads. Fields
// that may carry the workspace-inheritance sentinel (`field.workspace =
// true`) are typed `any` and resolved by inheritScalar/inheritList instead
// of a fixed Go type.
type cargoManifest struct {
	Package   *cargoPackage   `toml:"package"`
	Workspace *cargoWorkspace `toml:"workspace"`
	Bin       []cargoTarget   `toml:"bin"`
}

type cargoWorkspace struct {
	Package *cargoWorkspacePackage `toml:"package"`
}

// cargoWorkspacePackage holds the values workspace members may inherit.
type cargoWorkspacePackage struct {
	Version     string   `toml:"version"`
	Authors     []string `toml:"authors"`
	License     string   `toml:"license"`
	LicenseFile string   `toml:"license-file"`
	Repository  string   `toml:"repository"`
	Homepage    string   `toml:"homepage"`
	Readme      string   `toml:"readme"`
}

type cargoPackage struct {
	Name        string         `toml:"name"`
	Version     any            `toml:"version"`
	Authors     any            `toml:"authors"`
	License     any            `toml:"license"`
	LicenseFile any            `toml:"license-file"`
	Description string         `toml:"description"`
	Repository  any            `toml:"repository"`
	Homepage    any            `toml:"homepage"`
	Readme      any            `toml:"readme"`
	Publish     any            `toml:"publish"`
	Metadata    map[string]any `toml:"metadata"`
}

type cargoTarget struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

// debMetadataRaw is [package.metadata.deb] (and, recursively, one entry of
// [package.metadata.deb.variants]). Relationship fields and a few others
// accept either a bare string or a list in real Cargo.toml files, hence
// `any`; toStringList normalizes both.
type debMetadataRaw struct {
	Name       string `toml:"name"`
	Maintainer string `toml:"maintainer"`
	Copyright  string `toml:"copyright"`
	Section    string `toml:"section"`
	Priority   string `toml:"priority"`
	Homepage   string `toml:"homepage"`
	Revision   string `toml:"revision"`

	Depends    any `toml:"depends"`
	PreDepends any `toml:"pre-depends"`
	Recommends any `toml:"recommends"`
	Suggests   any `toml:"suggests"`
	Enhances   any `toml:"enhances"`
	Conflicts  any `toml:"conflicts"`
	Breaks     any `toml:"breaks"`
	Replaces   any `toml:"replaces"`
	Provides   any `toml:"provides"`
	BuiltUsing string `toml:"built-using"`

	ExtendedDescription     string `toml:"extended-description"`
	ExtendedDescriptionFile string `toml:"extended-description-file"`
	Changelog               string `toml:"changelog"`
	LicenseFile             any    `toml:"license-file"`

	Assets       []any          `toml:"assets"`
	MergeAssets  map[string]any `toml:"merge-assets"`
	ConfFiles    []string       `toml:"conf-files"`

	MaintainerScripts string `toml:"maintainer-scripts"`
	TriggersFile      string `toml:"triggers-file"`
	SystemdUnits      any    `toml:"systemd-units"`

	SeparateDebugSymbols *bool  `toml:"separate-debug-symbols"`
	CompressDebugSymbols string `toml:"compress-debug-symbols"`
	Dbgsym               *bool  `toml:"dbgsym"`
	PreserveSymlinks     *bool  `toml:"preserve-symlinks"`

	Variants map[string]debMetadataRaw `toml:"variants"`
}

// relationshipKinds lists the relationship fields in control-file emission
// order, matching deb.controlFieldOrder's relationship block.
var relationshipKinds = []struct {
	key   string
	value func(*debMetadataRaw) any
}{
	{"depends", func(d *debMetadataRaw) any { return d.Depends }},
	{"pre-depends", func(d *debMetadataRaw) any { return d.PreDepends }},
	{"recommends", func(d *debMetadataRaw) any { return d.Recommends }},
	{"suggests", func(d *debMetadataRaw) any { return d.Suggests }},
	{"enhances", func(d *debMetadataRaw) any { return d.Enhances }},
	{"conflicts", func(d *debMetadataRaw) any { return d.Conflicts }},
	{"breaks", func(d *debMetadataRaw) any { return d.Breaks }},
	{"replaces", func(d *debMetadataRaw) any { return d.Replaces }},
	{"provides", func(d *debMetadataRaw) any { return d.Provides }},
}
