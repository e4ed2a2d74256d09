package validate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestHeaderChecker(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.py", "#!/usr/bin/env python3\n# --- Script Metadata ---\n# Repo: ctxpipe\n# Role: test\n")
	crlf := writeFile(t, dir, "crlf.sh", "# --- Script Metadata ---\r\n# Repo:  tools\r\n")
	wrongRepo := writeFile(t, dir, "wrong.js", "# --- Script Metadata ---\n# Repo: ctxpipe-extra\n")
	missing := writeFile(t, dir, "missing.sh", "echo hi\n")
	skipped := writeFile(t, dir, "notes.md", "no header here\n")

	c, err := NewHeaderChecker("--- Script Metadata ---", []string{"ctxpipe", "tools"}, []string{".py", ".sh", ".js"})
	require.NoError(t, err)

	violations := c.Check([]string{good, crlf, wrongRepo, missing, skipped, filepath.Join(dir, "gone.py"), dir})
	require.Len(t, violations, 2)
	assert.Equal(t, wrongRepo, violations[0].Path)
	assert.Equal(t, missing, violations[1].Path)
	assert.Equal(t, missing+": missing or malformed script metadata header", violations[1].String())
}

func TestHeaderCheckerConfig(t *testing.T) {
	_, err := NewHeaderChecker("", []string{"a"}, nil)
	assert.Error(t, err)
	_, err = NewHeaderChecker("marker", nil, nil)
	assert.Error(t, err)
}

func TestForbidChecker(t *testing.T) {
	dir := t.TempDir()
	clean := writeFile(t, dir, "clean.txt", "nothing to see\n")
	dirty := writeFile(t, dir, "dirty.env", "FOO=1\nAPI_KEY=sk-live-123\n")
	empty := writeFile(t, dir, "empty.txt", "")

	c, err := NewForbidChecker(`^API_KEY=sk-`, "live key committed")
	require.NoError(t, err)

	violations := c.Check([]string{clean, dirty, empty, filepath.Join(dir, "absent")})
	require.Len(t, violations, 1)
	assert.Equal(t, dirty+": live key committed", violations[0].String())
}

func TestForbidCheckerBadPattern(t *testing.T) {
	_, err := NewForbidChecker(`([`, "m")
	assert.Error(t, err)
	_, err = NewForbidChecker(`x`, "")
	assert.Error(t, err)
}

const validDelta = `
entries:
  - context_delta:
      status:
        summary: sync pipeline working
        last_updated: 2025-01-15
      decisions:
        - date: "2025-01-14"
          what: adopt prune instead of wipe
          why: ""
      next_actions:
        - who: me
          what: wire upsert
          due: 2025-02-01
      risks:
        - embedding cost
`

func TestValidateDeltaAcceptsDatesAndStrings(t *testing.T) {
	assert.Empty(t, ValidateDelta([]byte(validDelta)))
}

func TestValidateDeltaReportsEachProblem(t *testing.T) {
	doc := `
entries:
  - context_delta:
      status:
        summary: ""
        last_updated: 15/01/2025
      decisions:
        - what: missing date
          why: 3
      next_actions:
        - who: someone
          what: x
          due: 2025-02-01
      risks: ["", ok]
  - not_a_delta: true
`
	errs := ValidateDelta([]byte(doc))

	var lines []string
	for _, e := range errs {
		lines = append(lines, e.String())
	}
	out := strings.Join(lines, "\n")

	assert.Contains(t, out, "[SCHEMA] entries[0].context_delta.status: status.summary must be non-empty string")
	assert.Contains(t, out, "[SCHEMA] entries[0].context_delta.status: status.last_updated must be YYYY-MM-DD or YAML date")
	assert.Contains(t, out, "[SCHEMA] entries[0].context_delta.decisions[0]: decision.date must be YYYY-MM-DD or YAML date, got missing")
	assert.Contains(t, out, "[SCHEMA] entries[0].context_delta.decisions[0]: decision.why must be string (can be empty)")
	assert.Contains(t, out, "[SCHEMA] entries[0].context_delta.next_actions[0]: next_action.who must be 'me' or 'assistant'")
	assert.Contains(t, out, "[SCHEMA] entries[0].context_delta.risks[0]: each risk must be a non-empty string")
	assert.Contains(t, out, "[SCHEMA] entries[1]: each item must be a mapping with key 'context_delta'")
	assert.Len(t, errs, 7)
}

func TestValidateDeltaMissingSections(t *testing.T) {
	errs := ValidateDelta([]byte("entries:\n  - context_delta: {status: {summary: s, last_updated: 2025-01-01}}\n"))
	require.Len(t, errs, 3)
	assert.Equal(t, "missing 'decisions'", errs[0].Message)
	assert.Equal(t, "missing 'next_actions'", errs[1].Message)
	assert.Equal(t, "missing 'risks'", errs[2].Message)
}

func TestValidateDeltaTopLevel(t *testing.T) {
	tests := map[string]string{
		"empty":       "",
		"list":        "- a\n",
		"no entries":  "other: 1\n",
		"empty list":  "entries: []\n",
		"bad yaml":    "entries: [\n",
		"entries map": "entries: {a: 1}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Len(t, ValidateDelta([]byte(doc)), 1)
		})
	}
}

func TestValidateDeltaFileMissing(t *testing.T) {
	errs := ValidateDeltaFile(filepath.Join(t.TempDir(), "log.yaml"))
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "not found")
}
