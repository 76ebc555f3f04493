package deb

import (
	"fmt"
)

// Package is the comprehensive definition of a Debian binary package. It
// separates metadata (Metadata), maintainer hooks (Scripts), and payload
// (Assets); Build in archive.go turns it into bytes.
type Package struct {
	Metadata Metadata
	Scripts  Scripts
	Assets   []Asset

	// ExtraControlFiles carries arbitrary control-archive members beyond the
	// ones Scripts and Metadata already cover. Reserved names (control,
	// md5sums, conffiles, the maintainer scripts, config, templates and
	// triggers, which comes from Scripts) are ignored.
	ExtraControlFiles map[string]string
}

// Metadata maps directly to the fields of the Debian 'control' file.
//
// Reference: https://www.debian.org/doc/debian-policy/ch-controlfields.html#binary-package-control-files-debian-control
type Metadata struct {
	// Package is the binary package name: lower-case letters, digits,
	// plus, minus and periods, at least two characters, starting
	// alphanumeric.
	Package string

	// Version is [epoch:]upstream_version[-debian_revision].
	Version string

	// Architecture is a Debian architecture name (e.g. "amd64") or "all".
	Architecture string

	// Maintainer is "Name <email@address>".
	Maintainer string

	// Description holds the synopsis as its first line and the extended
	// description as the remaining lines.
	Description string

	Section  string
	Priority string
	Homepage string

	// Essential marks the package as one dpkg warns heavily before removing.
	Essential bool

	Depends    []string
	PreDepends []string
	Recommends []string
	Suggests   []string
	Enhances   []string
	Conflicts  []string
	Breaks     []string
	Replaces   []string
	Provides   []string

	// BuiltUsing records source packages this binary was built against.
	BuiltUsing string

	// Source names the source package, when it differs from Package.
	Source string

	// ExtraFields carries arbitrary additional control fields, such as the
	// "Auto-Built-Package: debug-symbols" marker on a dbgsym package.
	ExtraFields map[string]string
}

// Scripts holds the executable maintainer scripts and debconf adjuncts dpkg
// runs at various points in the package lifecycle.
//
// Reference: https://www.debian.org/doc/debian-policy/ch-maintainerscripts.html
type Scripts struct {
	PreInst  string
	PostInst string
	PreRm    string
	PostRm   string
	Config   string

	// Templates is the debconf template file, written verbatim if non-empty.
	Templates string
	// Triggers is the dpkg trigger-control file, written verbatim if non-empty.
	Triggers string
}

// Asset is a single payload entry: a regular file or a symlink. Directory
// entries are synthesized automatically from the set of DestPaths.
type Asset struct {
	// DestPath is the absolute install path, e.g. "/usr/bin/app".
	DestPath string
	// Mode is the permission bits (e.g. 0o755 for executables).
	Mode int64
	// Content is the file body. Ignored when SymlinkTarget is set.
	Content []byte
	// SymlinkTarget, if non-empty, makes this entry a symlink instead of a
	// regular file; Content is ignored.
	SymlinkTarget string
	// IsConf marks the file in the 'conffiles' control member.
	IsConf bool
}

// StandardFilename returns "{Package}_{Version}_{Architecture}.deb", the
// canonical on-disk name dpkg tools expect.
//
// Reference: https://www.debian.org/doc/manuals/debian-faq/ch-pkg_basics.en.html#s-pkgname
func (p *Package) StandardFilename() string {
	return fmt.Sprintf("%s_%s_%s.deb", p.Metadata.Package, p.Metadata.Version, p.Metadata.Architecture)
}
