package manifest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kornelski/cargo-deb/internal/deberr"
)

// toStringList normalizes a relationship-style field that Cargo.toml allows
// to be written as a bare comma-separated string or as an array of strings.
func toStringList(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if t == "" {
			return nil
		}
		parts := strings.Split(t, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	default:
		return nil
	}
}

// parseLicenseFile decodes [package.metadata.deb] license-file, which
// Cargo.toml allows as a bare path string or a [path, skip_lines] pair (the
// pair form skips a header of already-present copyright boilerplate when
// generating the copyright file).
func parseLicenseFile(v any) (path string, skipLines int, err error) {
	switch t := v.(type) {
	case string:
		return t, 0, nil
	case []any:
		if len(t) != 2 {
			return "", 0, deberr.NewConfig("license-file: expected [path, skip_lines]", nil)
		}
		p, _ := t[0].(string)
		n, nErr := strconv.Atoi(fmt.Sprint(t[1]))
		if nErr != nil {
			return "", 0, deberr.NewConfig("license-file: skip_lines must be a number", nErr)
		}
		return p, n, nil
	default:
		return "", 0, deberr.NewConfig("license-file: expected a string or [path, skip_lines]", nil)
	}
}

// inheritScalar resolves a field that may be a literal string or the
// workspace-inheritance sentinel `{ workspace = true }`.
func inheritScalar(field string, v any, workspaceValue string) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case map[string]any:
		if ws, _ := t["workspace"].(bool); ws {
			return workspaceValue, nil
		}
		return "", deberr.NewConfig(fmt.Sprintf("package.%s: unrecognized table value", field), nil)
	default:
		return "", deberr.NewConfig(fmt.Sprintf("package.%s: expected a string or workspace inheritance", field), nil)
	}
}

// inheritList resolves an authors-shaped field with the same inheritance
// sentinel as inheritScalar.
func inheritList(field string, v any, workspaceValue []string) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out, nil
	case map[string]any:
		if ws, _ := t["workspace"].(bool); ws {
			return workspaceValue, nil
		}
		return nil, deberr.NewConfig(fmt.Sprintf("package.%s: unrecognized table value", field), nil)
	default:
		return nil, deberr.NewConfig(fmt.Sprintf("package.%s: expected a list or workspace inheritance", field), nil)
	}
}

// parseAssetEntry turns one element of a `assets` array — the string
// "$auto", a 3-element tuple, or a {source,dest,mode} table — into an
// AssetSpec. Mode is left as the raw octal string; the asset planner parses
// it once the default is known.
func parseAssetEntry(e any) (AssetSpec, error) {
	switch t := e.(type) {
	case string:
		if t == "$auto" {
			return AssetSpec{Auto: true}, nil
		}
		return AssetSpec{}, deberr.NewConfig(fmt.Sprintf("asset entry %q: expected a tuple, table, or \"$auto\"", t), nil)
	case []any:
		if len(t) != 3 {
			return AssetSpec{}, deberr.NewConfig("asset tuple must have exactly 3 elements: [source, dest, mode]", nil)
		}
		src, _ := t[0].(string)
		dst, _ := t[1].(string)
		mode, _ := t[2].(string)
		return AssetSpec{Source: src, Dest: dst, Mode: mode}, nil
	case map[string]any:
		src, _ := t["source"].(string)
		dst, _ := t["dest"].(string)
		mode, _ := t["mode"].(string)
		return AssetSpec{Source: src, Dest: dst, Mode: mode}, nil
	default:
		return AssetSpec{}, deberr.NewConfig("asset entry: unrecognized shape", nil)
	}
}

func parseAssetEntries(raw []any) ([]AssetSpec, error) {
	out := make([]AssetSpec, 0, len(raw))
	for _, e := range raw {
		spec, err := parseAssetEntry(e)
		if err != nil {
			return nil, err
		}
		out = append(out, spec)
	}
	return out, nil
}

// applyMergeAssets implements §4.2's merge semantics: merge-assets.append
// extends the parent list; merge-assets.by.dest/by.src rewrite every
// matching parent entry (the Open Question this ledger resolved as
// "replace all matches", see DESIGN.md).
func applyMergeAssets(parent []AssetSpec, merge map[string]any) ([]AssetSpec, error) {
	result := append([]AssetSpec(nil), parent...)

	if appendRaw, ok := merge["append"].([]any); ok {
		appended, err := parseAssetEntries(appendRaw)
		if err != nil {
			return nil, err
		}
		result = append(result, appended...)
	}

	byTable, _ := merge["by"].(map[string]any)
	if byTable == nil {
		return result, nil
	}

	if byDest, ok := byTable["dest"].([]any); ok {
		directives, err := parseAssetEntries(byDest)
		if err != nil {
			return nil, err
		}
		result = rewriteByKey(result, directives, func(a AssetSpec) string { return a.Dest })
	}
	if bySrc, ok := byTable["src"].([]any); ok {
		directives, err := parseAssetEntries(bySrc)
		if err != nil {
			return nil, err
		}
		result = rewriteByKey(result, directives, func(a AssetSpec) string { return a.Source })
	}

	return result, nil
}

// parseSystemdUnitConfig decodes one [package.metadata.deb.systemd-units]
// table, applying dh_installsystemd's enable/start defaults (both true).
func parseSystemdUnitConfig(m map[string]any) SystemdUnitConfig {
	boolField := func(key string, def bool) bool {
		if v, ok := m[key].(bool); ok {
			return v
		}
		return def
	}
	strField := func(key string) string {
		s, _ := m[key].(string)
		return s
	}
	return SystemdUnitConfig{
		UnitName:            strField("unit-name"),
		UnitScripts:         strField("unit-scripts"),
		Enable:              boolField("enable", true),
		Start:               boolField("start", true),
		RestartAfterUpgrade: boolField("restart-after-upgrade", true),
		StopOnUpgrade:       boolField("stop-on-upgrade", true),
	}
}

// parseSystemdUnits normalizes [package.metadata.deb.systemd-units], which
// Cargo.toml allows as either one table or an array of tables.
func parseSystemdUnits(v any) []SystemdUnitConfig {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return []SystemdUnitConfig{parseSystemdUnitConfig(t)}
	case []any:
		out := make([]SystemdUnitConfig, 0, len(t))
		for _, e := range t {
			if m, ok := e.(map[string]any); ok {
				out = append(out, parseSystemdUnitConfig(m))
			}
		}
		return out
	default:
		return nil
	}
}

// rewriteByKey replaces every entry in list whose key matches a directive's
// own key with that directive, appending directives that matched nothing.
func rewriteByKey(list []AssetSpec, directives []AssetSpec, key func(AssetSpec) string) []AssetSpec {
	out := append([]AssetSpec(nil), list...)
	for _, d := range directives {
		matched := false
		k := key(d)
		for i := range out {
			if key(out[i]) == k {
				out[i] = d
				matched = true
			}
		}
		if !matched {
			out = append(out, d)
		}
	}
	return out
}
