// Package validate implements the repository's pre-commit checks.
package validate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

// Violation is a single failed check on a file.
type Violation struct {
	Path    string
	Message string
}

func (v Violation) String() string {
	return v.Path + ": " + v.Message
}

// HeaderChecker requires scripts to carry the metadata header.
type HeaderChecker struct {
	re   *regexp.Regexp
	exts []string
}

// NewHeaderChecker builds a checker for "# <marker>" followed by a
// "# Repo: <name>" line naming one of repos. Only files whose extension
// is in exts are checked.
func NewHeaderChecker(marker string, repos, exts []string) (*HeaderChecker, error) {
	if strings.TrimSpace(marker) == "" {
		return nil, fmt.Errorf("header marker must not be empty")
	}
	if len(repos) == 0 {
		return nil, fmt.Errorf("at least one repo name is required")
	}

	quoted := make([]string, len(repos))
	for i, r := range repos {
		quoted[i] = regexp.QuoteMeta(r)
	}
	pattern := `(?m)^# ` + regexp.QuoteMeta(marker) + `\n# Repo:[ \t]*(` + strings.Join(quoted, "|") + `)[ \t]*$`

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile header pattern: %w", err)
	}
	return &HeaderChecker{re: re, exts: exts}, nil
}

// Applies reports whether path has a checked extension.
func (c *HeaderChecker) Applies(path string) bool {
	return slices.Contains(c.exts, filepath.Ext(path))
}

// Check returns one violation per script missing the header. Paths that
// are not regular files or cannot be read are skipped.
func (c *HeaderChecker) Check(paths []string) []Violation {
	var out []Violation
	for _, p := range paths {
		if !c.Applies(p) || !isFile(p) {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if !c.re.Match(normalizeNewlines(data)) {
			out = append(out, Violation{Path: p, Message: "missing or malformed script metadata header"})
		}
	}
	return out
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

func normalizeNewlines(b []byte) []byte {
	return []byte(strings.ReplaceAll(string(b), "\r\n", "\n"))
}
