// Package deb assembles a Debian binary package (.deb, and its optional
// -dbgsym.ddeb sibling) from an in-memory package description.
//
// # Design Philosophy
//
// The package operates entirely in memory: assets are supplied as byte
// slices or symlink targets, and the two inner tar streams plus the outer
// ar(5) archive are assembled and written directly to an io.Writer. There is
// no dependency on dpkg for archive assembly; strip/objcopy/dpkg-shlibdeps
// remain external collaborators invoked by other packages, not by this one.
//
// # Determinism
//
// Every tar and ar header in a single archive shares one caller-supplied
// timestamp, uid/gid are always 0 with owner "root", and the compressor
// runs single-threaded, so two builds from identical inputs produce
// byte-identical output.
package deb
