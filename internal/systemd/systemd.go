// Package systemd is the collaborator invoked when
// [package.metadata.deb.systemd-units] is present: it contributes unit-file
// and tmpfiles assets plus maintainer-script fragments, following
// debhelper's dh_installsystemd conventions.
package systemd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kornelski/cargo-deb/manifest"
)

// Asset is one file the collaborator wants installed alongside the
// package's own assets.
type Asset struct {
	DestPath string
	Content  []byte
	Mode     int64
}

// ScriptFragments are appended to the corresponding maintainer script
// bodies the control synthesizer is about to write out.
type ScriptFragments struct {
	PreInst  string
	PostInst string
	PreRm    string
	PostRm   string
}

var unitSuffixes = []string{"service", "socket", "timer", "path", "target", "mount"}

// Collaborate implements §6's systemd collaborator interface: given the
// resolved package description and the source tree root, it returns the
// unit/tmpfiles assets to add and the script fragments to append.
func Collaborate(desc *manifest.PackageDescription, sourceRoot string) ([]Asset, ScriptFragments, error) {
	var assets []Asset
	var frags ScriptFragments

	for _, unit := range desc.SystemdUnits {
		searchDir := unit.UnitScripts
		if searchDir == "" {
			searchDir = desc.MaintainerScriptsDir
		}
		if searchDir == "" {
			searchDir = "systemd"
		}
		full := filepath.Join(sourceRoot, searchDir)

		unitName := unit.UnitName
		if unitName == "" {
			unitName = desc.DebName
		}

		found, err := findUnits(full, unitName)
		if err != nil {
			return nil, ScriptFragments{}, err
		}
		assets = append(assets, found...)

		if len(found) == 0 {
			continue
		}
		appendFragments(&frags, unitName, unit)
	}

	return assets, frags, nil
}

// findUnits looks for <unitName>.<suffix> and <unitName>.conf (tmpfiles)
// files in dir, returning the ones that exist as install-ready assets.
func findUnits(dir, unitName string) ([]Asset, error) {
	var out []Asset
	for _, suffix := range unitSuffixes {
		filename := unitName + "." + suffix
		content, ok, err := readIfExists(filepath.Join(dir, filename))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, Asset{
				DestPath: "usr/lib/systemd/system/" + filename,
				Content:  content,
				Mode:     0o644,
			})
		}
	}

	tmpfilesName := unitName + ".conf"
	content, ok, err := readIfExists(filepath.Join(dir, tmpfilesName))
	if err != nil {
		return nil, err
	}
	if ok {
		out = append(out, Asset{
			DestPath: "usr/lib/tmpfiles.d/" + tmpfilesName,
			Content:  content,
			Mode:     0o644,
		})
	}
	return out, nil
}

func readIfExists(path string) ([]byte, bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading %s: %w", path, err)
	}
	return content, true, nil
}

const postinstEnableFragment = `if [ -d /run/systemd/system ]; then
	systemctl --system daemon-reload >/dev/null || true
	if [ -z "$2" ]; then
		deb-systemd-helper enable {{.UnitName}}.service >/dev/null || true
	fi
fi
`

const postinstStartFragment = `if [ -d /run/systemd/system ]; then
	deb-systemd-invoke start {{.UnitName}}.service >/dev/null || true
fi
`

const prermFragment = `if [ -d /run/systemd/system ] && [ "$1" = remove ]; then
	deb-systemd-invoke stop {{.UnitName}}.service >/dev/null || true
fi
`

const postrmFragment = `if [ -d /run/systemd/system ]; then
	systemctl --system daemon-reload >/dev/null || true
	if [ "$1" = purge ]; then
		deb-systemd-helper purge {{.UnitName}}.service >/dev/null || true
	fi
fi
`

func appendFragments(frags *ScriptFragments, unitName string, unit manifest.SystemdUnitConfig) {
	vars := map[string]string{"UnitName": unitName}
	tmpl := newFragmentTemplate(vars)

	if unit.Enable {
		if rendered, err := tmpl.render("postinst-enable", postinstEnableFragment); err == nil {
			frags.PostInst += rendered
		}
	}
	if unit.Start {
		if rendered, err := tmpl.render("postinst-start", postinstStartFragment); err == nil {
			frags.PostInst += rendered
		}
	}
	if unit.StopOnUpgrade {
		if rendered, err := tmpl.render("prerm", prermFragment); err == nil {
			frags.PreRm += rendered
		}
	}
	if rendered, err := tmpl.render("postrm", postrmFragment); err == nil {
		frags.PostRm += rendered
	}
}
