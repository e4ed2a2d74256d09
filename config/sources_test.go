package config

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctxpipe/internal/domain"
)

func TestParseSourcesList(t *testing.T) {
	data := []byte(`
sources:
  - name: docs
    type: local
    path: ../docs
    include: ["**/*.md"]
    exclude: ["drafts/**"]
  - name: upstream
    type: git
    url: https://example.com/org/repo.git
    dest: up
`)
	sources, err := ParseSources(data)
	require.NoError(t, err)
	require.Len(t, sources, 2)

	assert.Equal(t, domain.Source{
		Name:    "docs",
		Kind:    domain.SourceLocal,
		Path:    "../docs",
		Include: []string{"**/*.md"},
		Exclude: []string{"drafts/**"},
		Dest:    "docs",
	}, sources[0])

	assert.Equal(t, domain.SourceRemote, sources[1].Kind)
	assert.Equal(t, "main", sources[1].Ref)
	assert.Equal(t, "up", sources[1].Dest)
}

func TestParseSourcesMappingMatchesList(t *testing.T) {
	asMap := []byte(`
sources:
  zeta:
    type: local
    path: ./z
  alpha:
    kind: remote-repo
    url: https://example.com/a.git
    ref: v1
`)
	asList := []byte(`
- {name: zeta, type: local, path: ./z}
- {name: alpha, kind: remote-repo, url: "https://example.com/a.git", ref: v1}
`)

	fromMap, err := ParseSources(asMap)
	require.NoError(t, err)
	fromList, err := ParseSources(asList)
	require.NoError(t, err)

	assert.Equal(t, fromList, fromMap)
	assert.Equal(t, "zeta", fromMap[0].Name, "document order is kept")
}

func TestParseSourcesInfersKind(t *testing.T) {
	sources, err := ParseSources([]byte(`
sources:
  a: {path: ./a}
  b: {url: "https://example.com/b.git"}
`))
	require.NoError(t, err)
	assert.Equal(t, domain.SourceLocal, sources[0].Kind)
	assert.Equal(t, domain.SourceRemote, sources[1].Kind)
}

func TestParseSourcesEmptyList(t *testing.T) {
	sources, err := ParseSources([]byte("sources:\n"))
	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestParseSourcesErrors(t *testing.T) {
	tests := map[string]string{
		"empty":          ``,
		"no sources key": `other: 1`,
		"scalar":         `sources: nope`,
		"missing name":   "sources:\n  - {type: local, path: x}",
		"unknown type":   "sources:\n  - {name: a, type: svn, url: x}",
		"local no path":  "sources:\n  - {name: a, type: local}",
		"duplicate":      "sources:\n  - {name: a, path: x}\n  - {name: a, path: y}",
		"shared dest":    "sources:\n  - {name: a, path: x, dest: d}\n  - {name: b, path: y, dest: d}",
		"escaping dest":  "sources:\n  - {name: a, path: x, dest: ../out}",
		"dot dest":       "sources:\n  - {name: a, path: x, dest: .}",
		"nested dest":    "sources:\n  - {name: one, path: x, dest: docs/one}\n  - {name: two, path: y, dest: docs}",
		"nesting dest":   "sources:\n  - {name: two, path: y, dest: docs}\n  - {name: one, path: x, dest: ./docs/one/}",
		"bad glob":       "sources:\n  - {name: a, path: x, include: ['[abc']}",
		"name mismatch":  "sources:\n  a: {name: b, path: x}",
		"malformed yaml": "sources: [",
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSources([]byte(data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrConfiguration), "got %v", err)
		})
	}
}

func TestParseSourcesCleansDest(t *testing.T) {
	sources, err := ParseSources([]byte("sources:\n  - {name: a, path: x, dest: ./docs/a/}\n  - {name: b, path: y, dest: docs/ab}\n"))
	require.NoError(t, err)
	assert.Equal(t, "docs/a", sources[0].Dest)
	assert.Equal(t, "docs/ab", sources[1].Dest, "a shared name prefix is not nesting")
}

func TestLoadSourcesMissingFile(t *testing.T) {
	_, err := LoadSources(filepath.Join(t.TempDir(), "sources.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}
