package assets

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// resolvePath joins rel onto cwd unless rel is already absolute, in which
// case it is returned unchanged — asset sources rewritten to a build
// directory are typically absolute already.
func resolvePath(cwd, rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(cwd, rel)
}

// isGlobPattern reports whether path contains any of the glob metacharacters
// this package understands.
func isGlobPattern(path string) bool {
	return strings.ContainsAny(path, "*?")
}

// staticPrefixLen returns the number of leading path components that
// contain no glob metacharacters, so callers can preserve the directory
// structure below that prefix in the destination path.
func staticPrefixLen(pattern string) int {
	parts := strings.Split(filepath.ToSlash(pattern), "/")
	n := 0
	for _, p := range parts {
		if isGlobPattern(p) {
			break
		}
		n++
	}
	if n == len(parts) {
		n-- // the whole pattern is one filename; keep just that component out of the prefix
	}
	return n
}

// expandGlob resolves pattern (which may contain *, ? and **) to a sorted
// list of regular file paths rooted under cwd. Directories are never
// returned directly; walking into them is how ** traverses.
func expandGlob(cwd, pattern string) ([]string, error) {
	if !isGlobPattern(pattern) {
		if _, err := os.Lstat(resolvePath(cwd, pattern)); err != nil {
			return nil, nil
		}
		return []string{pattern}, nil
	}

	re, anchorDir := globToRegexp(pattern)
	var matches []string
	root := resolvePath(cwd, anchorDir)
	if _, err := os.Stat(root); err != nil {
		return nil, nil
	}

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(cwd, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if re.MatchString(rel) {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// globToRegexp translates a shell-style glob supporting *, ? and ** into an
// anchored regular expression, plus the longest directory prefix that
// contains no metacharacters (so the walk can start there instead of at the
// filesystem root).
func globToRegexp(pattern string) (*regexp.Regexp, string) {
	parts := strings.Split(filepath.ToSlash(pattern), "/")

	var anchor []string
	i := 0
	for ; i < len(parts) && !isGlobPattern(parts[i]) && parts[i] != "**"; i++ {
		anchor = append(anchor, parts[i])
	}

	var b strings.Builder
	b.WriteByte('^')
	for j, p := range parts {
		if j > 0 {
			b.WriteByte('/')
		}
		if p == "**" {
			b.WriteString(`(?:.*)`)
			continue
		}
		for _, r := range p {
			switch r {
			case '*':
				b.WriteString(`[^/]*`)
			case '?':
				b.WriteString(`[^/]`)
			default:
				b.WriteString(regexp.QuoteMeta(string(r)))
			}
		}
	}
	b.WriteByte('$')
	// ** may absorb the separator on either side; collapse doubled slashes
	// its expansion can introduce.
	re := regexp.MustCompile(strings.ReplaceAll(b.String(), `/(?:.*)/`, `(?:/.*)?/`))
	return re, filepath.Join(anchor...)
}
