package deb

// ControlField represents a standard field in a Debian control file.
type ControlField string

const (
	FieldPackage       ControlField = "Package"
	FieldVersion       ControlField = "Version"
	FieldArchitecture  ControlField = "Architecture"
	FieldMaintainer    ControlField = "Maintainer"
	FieldDescription   ControlField = "Description"
	FieldSection       ControlField = "Section"
	FieldPriority      ControlField = "Priority"
	FieldHomepage      ControlField = "Homepage"
	FieldEssential     ControlField = "Essential"
	FieldDepends       ControlField = "Depends"
	FieldPreDepends    ControlField = "Pre-Depends"
	FieldRecommends    ControlField = "Recommends"
	FieldSuggests      ControlField = "Suggests"
	FieldEnhances      ControlField = "Enhances"
	FieldConflicts     ControlField = "Conflicts"
	FieldBreaks        ControlField = "Breaks"
	FieldReplaces      ControlField = "Replaces"
	FieldProvides      ControlField = "Provides"
	FieldBuiltUsing    ControlField = "Built-Using"
	FieldSource        ControlField = "Source"
	FieldInstalledSize ControlField = "Installed-Size"
)

// controlFieldOrder is the canonical field emission order for a control
// file: Package, Version, Architecture, Maintainer, Installed-Size, the
// relationship fields, Section, Priority, Homepage, Description, with
// Source/Essential/Built-Using (absent from that canonical list) slotted
// next to the fields they're conventionally adjacent to.
var controlFieldOrder = []ControlField{
	FieldPackage, FieldVersion, FieldSource, FieldArchitecture, FieldEssential,
	FieldMaintainer, FieldInstalledSize, FieldDepends, FieldPreDepends,
	FieldRecommends, FieldSuggests, FieldEnhances, FieldConflicts,
	FieldBreaks, FieldReplaces, FieldProvides, FieldBuiltUsing,
	FieldSection, FieldPriority, FieldHomepage, FieldDescription,
}

// ControlFile represents a standard file found in the control.tar archive.
type ControlFile string

const (
	FileControl   ControlFile = "control"
	FileMd5sums   ControlFile = "md5sums"
	FileConffiles ControlFile = "conffiles"
	FilePreinst   ControlFile = "preinst"
	FilePostinst  ControlFile = "postinst"
	FilePrerm     ControlFile = "prerm"
	FilePostrm    ControlFile = "postrm"
	FileConfig    ControlFile = "config"
	FileTriggers  ControlFile = "triggers"
	FileTemplates ControlFile = "templates"
)

// PackageFile represents a standard member of the outer ar(5) archive.
type PackageFile string

const (
	PkgDebianBinary PackageFile = "debian-binary"
	PkgControlTar   PackageFile = "control.tar"
	PkgDataTar      PackageFile = "data.tar"
)

// DebianBinaryVersion is the format version written to the debian-binary
// member, fixed by the .deb format since dpkg 0.93.76.
const DebianBinaryVersion = "2.0\n"
