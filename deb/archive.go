package deb

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/blakesmith/ar"
)

// BuildOptions controls how Build renders a Package to bytes.
type BuildOptions struct {
	// Timestamp is stamped on every ar and tar header in the archive. It
	// should come from SOURCE_DATE_EPOCH or the manifest's mtime so that
	// rebuilding from identical inputs is byte-for-byte identical. A zero
	// Timestamp means the current time.
	Timestamp time.Time
	// Compressor wraps both control.tar and data.tar. A nil Compressor
	// defaults to XzCompressor{}.
	Compressor Compressor
}

// Build renders the package as a .deb (or .ddeb) archive: the outer ar(5)
// container holding, in order, debian-binary, control.tar.<ext> and
// data.tar.<ext>. It returns the byte count written plus the per-asset
// SHA-256 digest map computed along the way, so the caller can persist it
// into the build-cache sidecar for reproducibility verification — the
// control archive itself carries no md5sums/sha256sums member (§4.5).
func (p *Package) Build(w io.Writer, opts BuildOptions) (int64, map[string]string, error) {
	compressor := opts.Compressor
	if compressor == nil {
		compressor = XzCompressor{}
	}
	ts := opts.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	cw := &countingWriter{w: w}

	dataBuf := new(bytes.Buffer)
	digests, installedSize, err := p.buildDataArchive(dataBuf, compressor, ts)
	if err != nil {
		return cw.n, nil, fmt.Errorf("building data archive: %w", err)
	}

	controlBuf := new(bytes.Buffer)
	if err := p.buildControlArchive(controlBuf, compressor, ts, installedSize); err != nil {
		return cw.n, nil, fmt.Errorf("building control archive: %w", err)
	}

	arW := ar.NewWriter(cw)
	if err := arW.WriteGlobalHeader(); err != nil {
		return cw.n, nil, fmt.Errorf("writing ar global header: %w", err)
	}
	if err := addBufferToAr(arW, string(PkgDebianBinary), []byte(DebianBinaryVersion), ts); err != nil {
		return cw.n, nil, fmt.Errorf("writing %s: %w", PkgDebianBinary, err)
	}
	controlName := string(PkgControlTar) + "." + compressor.Extension()
	if err := addBufferToAr(arW, controlName, controlBuf.Bytes(), ts); err != nil {
		return cw.n, nil, fmt.Errorf("writing %s: %w", controlName, err)
	}
	dataName := string(PkgDataTar) + "." + compressor.Extension()
	if err := addBufferToAr(arW, dataName, dataBuf.Bytes(), ts); err != nil {
		return cw.n, nil, fmt.Errorf("writing %s: %w", dataName, err)
	}

	return cw.n, digests, nil
}

// buildDataArchive writes the compressed data.tar payload and returns a
// SHA-256 digest per installed regular-file path plus the total installed
// size in bytes (regular files only, matching dpkg's own accounting).
func (p *Package) buildDataArchive(w io.Writer, c Compressor, ts time.Time) (map[string]string, int64, error) {
	cw, err := c.Wrap(w)
	if err != nil {
		return nil, 0, err
	}
	defer cw.Close()
	tw := tar.NewWriter(cw)
	defer tw.Close()

	digests := make(map[string]string, len(p.Assets))
	var installedSize int64

	for _, dir := range directoryEntries(p.Assets) {
		if err := writeTarHeader(tw, &tar.Header{
			Typeflag: tar.TypeDir,
			Name:     tarPath(dir) + "/",
			Mode:     0o755,
			Uname:    "root",
			Gname:    "root",
			ModTime:  ts,
			Format:   tar.FormatGNU,
		}); err != nil {
			return nil, 0, err
		}
	}

	assets := make([]Asset, len(p.Assets))
	copy(assets, p.Assets)
	sort.Slice(assets, func(i, j int) bool { return assets[i].DestPath < assets[j].DestPath })

	for _, a := range assets {
		name := tarPath(a.DestPath)
		if a.SymlinkTarget != "" {
			if err := writeTarHeader(tw, &tar.Header{
				Typeflag: tar.TypeSymlink,
				Name:     name,
				Linkname: a.SymlinkTarget,
				Mode:     0o777,
				Uname:    "root",
				Gname:    "root",
				ModTime:  ts,
				Format:   tar.FormatGNU,
			}); err != nil {
				return nil, 0, err
			}
			continue
		}

		sum := sha256.Sum256(a.Content)
		digests[a.DestPath] = hex.EncodeToString(sum[:])
		installedSize += int64(len(a.Content))

		if err := writeTarHeader(tw, &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     name,
			Size:     int64(len(a.Content)),
			Mode:     a.Mode,
			Uname:    "root",
			Gname:    "root",
			ModTime:  ts,
			Format:   tar.FormatGNU,
		}); err != nil {
			return nil, 0, err
		}
		if _, err := tw.Write(a.Content); err != nil {
			return nil, 0, err
		}
	}

	return digests, installedSize, nil
}

// buildControlArchive writes the compressed control.tar member: control,
// conffiles, the maintainer scripts, templates/triggers and any extra
// control files. There is deliberately no md5sums/sha256sums member; the
// per-asset digests Build returns are for the caller's own verification.
func (p *Package) buildControlArchive(w io.Writer, c Compressor, ts time.Time, installedSize int64) error {
	cw, err := c.Wrap(w)
	if err != nil {
		return err
	}
	defer cw.Close()
	tw := tar.NewWriter(cw)
	defer tw.Close()

	writeEntry := func(name ControlFile, content []byte, mode int64) error {
		if err := writeTarHeader(tw, &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     "./" + string(name),
			Size:     int64(len(content)),
			Mode:     mode,
			Uname:    "root",
			Gname:    "root",
			ModTime:  ts,
			Format:   tar.FormatGNU,
		}); err != nil {
			return err
		}
		_, err := tw.Write(content)
		return err
	}

	if err := writeEntry(FileControl, []byte(p.generateControlFile(installedSize)), 0o644); err != nil {
		return fmt.Errorf("writing control: %w", err)
	}

	if conf := p.generateConffiles(); conf != "" {
		if err := writeEntry(FileConffiles, []byte(conf), 0o644); err != nil {
			return fmt.Errorf("writing conffiles: %w", err)
		}
	}

	scripts := []struct {
		name ControlFile
		body string
		mode int64
	}{
		{FilePreinst, p.Scripts.PreInst, 0o755},
		{FilePostinst, p.Scripts.PostInst, 0o755},
		{FilePrerm, p.Scripts.PreRm, 0o755},
		{FilePostrm, p.Scripts.PostRm, 0o755},
		{FileConfig, p.Scripts.Config, 0o755},
		{FileTemplates, p.Scripts.Templates, 0o644},
		{FileTriggers, p.Scripts.Triggers, 0o644},
	}
	for _, s := range scripts {
		if s.body == "" {
			continue
		}
		if err := writeEntry(s.name, []byte(s.body), s.mode); err != nil {
			return fmt.Errorf("writing %s: %w", s.name, err)
		}
	}

	var extraNames []string
	for name := range p.ExtraControlFiles {
		extraNames = append(extraNames, name)
	}
	sort.Strings(extraNames)
	for _, name := range extraNames {
		switch ControlFile(name) {
		case FileControl, FileMd5sums, FileConffiles, FilePreinst, FilePostinst,
			FilePrerm, FilePostrm, FileConfig, FileTemplates, FileTriggers:
			continue
		}
		content := p.ExtraControlFiles[name]
		if content == "" {
			continue
		}
		if err := writeEntry(ControlFile(name), []byte(content), 0o644); err != nil {
			return fmt.Errorf("writing extra control file %s: %w", name, err)
		}
	}

	return nil
}

func (p *Package) generateControlFile(installedBytes int64) string {
	var b strings.Builder

	fields := map[ControlField]string{
		FieldPackage:      p.Metadata.Package,
		FieldVersion:      p.Metadata.Version,
		FieldArchitecture: p.Metadata.Architecture,
		FieldMaintainer:   p.Metadata.Maintainer,
		FieldSection:      p.Metadata.Section,
		FieldPriority:     p.Metadata.Priority,
		FieldHomepage:     p.Metadata.Homepage,
		FieldBuiltUsing:   p.Metadata.BuiltUsing,
		FieldSource:       p.Metadata.Source,
	}
	kbytes := (installedBytes + 1023) / 1024
	fields[FieldInstalledSize] = fmt.Sprintf("%d", kbytes)

	rel := map[ControlField][]string{
		FieldDepends:    p.Metadata.Depends,
		FieldPreDepends: p.Metadata.PreDepends,
		FieldRecommends: p.Metadata.Recommends,
		FieldSuggests:   p.Metadata.Suggests,
		FieldEnhances:   p.Metadata.Enhances,
		FieldConflicts:  p.Metadata.Conflicts,
		FieldBreaks:     p.Metadata.Breaks,
		FieldReplaces:   p.Metadata.Replaces,
		FieldProvides:   p.Metadata.Provides,
	}
	for field, items := range rel {
		if len(items) > 0 {
			fields[field] = strings.Join(items, ", ")
		}
	}
	if p.Metadata.Essential {
		fields[FieldEssential] = "yes"
	}

	for _, field := range controlFieldOrder {
		if field == FieldDescription {
			continue
		}
		if v, ok := fields[field]; ok && v != "" {
			fmt.Fprintf(&b, "%s: %s\n", field, v)
		}
	}

	var extraKeys []string
	for k := range p.Metadata.ExtraFields {
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)
	for _, k := range extraKeys {
		fmt.Fprintf(&b, "%s: %s\n", k, p.Metadata.ExtraFields[k])
	}

	if p.Metadata.Description != "" {
		lines := strings.Split(p.Metadata.Description, "\n")
		fmt.Fprintf(&b, "%s: %s\n", FieldDescription, lines[0])
		for _, line := range lines[1:] {
			if strings.TrimSpace(line) == "" {
				b.WriteString(" .\n")
			} else if strings.HasPrefix(line, " ") {
				fmt.Fprintf(&b, "%s\n", line)
			} else {
				fmt.Fprintf(&b, " %s\n", line)
			}
		}
	}

	return b.String()
}

func (p *Package) generateConffiles() string {
	seen := make(map[string]bool)
	var paths []string
	for _, a := range p.Assets {
		if a.SymlinkTarget != "" {
			continue
		}
		if a.IsConf || strings.HasPrefix(a.DestPath, "/etc/") {
			if !seen[a.DestPath] {
				seen[a.DestPath] = true
				paths = append(paths, a.DestPath)
			}
		}
	}
	if len(paths) == 0 {
		return ""
	}
	sort.Strings(paths)
	return strings.Join(paths, "\n") + "\n"
}
