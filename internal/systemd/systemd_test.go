package systemd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kornelski/cargo-deb/manifest"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCollaborateFindsServiceUnitInDefaultDir(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "systemd/mydaemon.service", "[Unit]\nDescription=x\n")

	desc := &manifest.PackageDescription{
		DebName: "mydaemon",
		SystemdUnits: []manifest.SystemdUnitConfig{
			{Enable: true, Start: true, RestartAfterUpgrade: true, StopOnUpgrade: true},
		},
	}

	assets, frags, err := Collaborate(desc, root)
	if err != nil {
		t.Fatal(err)
	}
	if len(assets) != 1 {
		t.Fatalf("expected 1 asset, got %d", len(assets))
	}
	if assets[0].DestPath != "usr/lib/systemd/system/mydaemon.service" {
		t.Errorf("dest path = %q", assets[0].DestPath)
	}
	if assets[0].Mode != 0o644 {
		t.Errorf("mode = %o", assets[0].Mode)
	}
	if frags.PostInst == "" {
		t.Error("expected a postinst fragment")
	}
	if frags.PreRm == "" {
		t.Error("expected a prerm fragment since StopOnUpgrade is set")
	}
	if frags.PostRm == "" {
		t.Error("expected a postrm fragment")
	}
}

func TestCollaborateUsesUnitScriptsOverride(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "custom-units/worker.socket", "[Socket]\n")

	desc := &manifest.PackageDescription{
		DebName: "mydaemon",
		SystemdUnits: []manifest.SystemdUnitConfig{
			{UnitName: "worker", UnitScripts: "custom-units"},
		},
	}

	assets, _, err := Collaborate(desc, root)
	if err != nil {
		t.Fatal(err)
	}
	if len(assets) != 1 || assets[0].DestPath != "usr/lib/systemd/system/worker.socket" {
		t.Fatalf("unexpected assets: %+v", assets)
	}
}

func TestCollaborateFallsBackToMaintainerScriptsDir(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "debian/mydaemon.timer", "[Timer]\n")

	desc := &manifest.PackageDescription{
		DebName:              "mydaemon",
		MaintainerScriptsDir: "debian",
		SystemdUnits:         []manifest.SystemdUnitConfig{{}},
	}

	assets, _, err := Collaborate(desc, root)
	if err != nil {
		t.Fatal(err)
	}
	if len(assets) != 1 || assets[0].DestPath != "usr/lib/systemd/system/mydaemon.timer" {
		t.Fatalf("unexpected assets: %+v", assets)
	}
}

func TestCollaborateIncludesTmpfilesConf(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "systemd/mydaemon.service", "[Unit]\n")
	writeFile(t, root, "systemd/mydaemon.conf", "d /run/mydaemon 0755 root root -\n")

	desc := &manifest.PackageDescription{
		DebName:      "mydaemon",
		SystemdUnits: []manifest.SystemdUnitConfig{{}},
	}

	assets, _, err := Collaborate(desc, root)
	if err != nil {
		t.Fatal(err)
	}
	var gotTmpfiles bool
	for _, a := range assets {
		if a.DestPath == "usr/lib/tmpfiles.d/mydaemon.conf" {
			gotTmpfiles = true
		}
	}
	if !gotTmpfiles {
		t.Errorf("expected a tmpfiles.d asset, got %+v", assets)
	}
}

func TestCollaborateNoUnitsFoundEmitsNoFragments(t *testing.T) {
	root := t.TempDir()
	desc := &manifest.PackageDescription{
		DebName:      "mydaemon",
		SystemdUnits: []manifest.SystemdUnitConfig{{}},
	}

	assets, frags, err := Collaborate(desc, root)
	if err != nil {
		t.Fatal(err)
	}
	if len(assets) != 0 {
		t.Errorf("expected no assets, got %+v", assets)
	}
	if frags != (ScriptFragments{}) {
		t.Errorf("expected no fragments, got %+v", frags)
	}
}

func TestCollaborateNoUnitsConfiguredIsNoOp(t *testing.T) {
	root := t.TempDir()
	desc := &manifest.PackageDescription{DebName: "mydaemon"}

	assets, frags, err := Collaborate(desc, root)
	if err != nil {
		t.Fatal(err)
	}
	if assets != nil || frags != (ScriptFragments{}) {
		t.Errorf("expected no-op, got assets=%+v frags=%+v", assets, frags)
	}
}

func TestFragmentTemplateRendersUnitNameAndLeavesPlainTextAlone(t *testing.T) {
	tmpl := newFragmentTemplate(map[string]string{"UnitName": "foo"})

	rendered, err := tmpl.render("t", "deb-systemd-invoke start {{.UnitName}}.service")
	if err != nil {
		t.Fatal(err)
	}
	if rendered != "deb-systemd-invoke start foo.service" {
		t.Errorf("rendered = %q", rendered)
	}

	plain, err := tmpl.render("t2", "no placeholders here")
	if err != nil {
		t.Fatal(err)
	}
	if plain != "no placeholders here" {
		t.Errorf("plain = %q", plain)
	}
}
