package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctxpipe/config"
)

func writeSources(t *testing.T, dir, content string) {
	t.Helper()
	path := filepath.Join(dir, "docs", "sources.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func findingsText(findings []Finding) string {
	lines := make([]string, len(findings))
	for i, f := range findings {
		lines[i] = f.String()
	}
	return strings.Join(lines, "\n")
}

func noGit(string) (string, error) { return "", errors.New("not found") }

func TestDoctorReportsMissingGit(t *testing.T) {
	dir := t.TempDir()
	writeSources(t, dir, "sources:\n  up: {url: 'https://example.com/up.git'}\n")

	cfg := config.DefaultConfig()
	findings := NewDoctorUseCase(cfg, dir, noGit, DoctorCheckers{}).Run(context.Background())
	out := findingsText(findings)

	assert.Contains(t, out, "[OK] sources file")
	assert.Contains(t, out, "[ERR] git not found on PATH; 1 remote sources cannot be cloned")
	assert.Contains(t, out, "[WARN] SYNC_GIT_TOKEN not set")
	assert.Contains(t, out, "[WARN] sync dry-run is on")
	assert.Contains(t, out, "[WARN] embed mode dry")
	assert.Contains(t, out, "[OK] vector upsert disabled")
	assert.True(t, HasErrors(findings))
}

func TestDoctorRemoteModeNeedsKey(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sync.DryRun = false
	cfg.Embed.Mode = config.ModeRemote

	findings := NewDoctorUseCase(cfg, t.TempDir(), noGit, DoctorCheckers{}).Run(context.Background())
	out := findingsText(findings)

	assert.Contains(t, out, "[WARN] sources file:")
	assert.Contains(t, out, "[ERR] embed mode remote-api needs OPENAI_API_KEY")
	assert.NotContains(t, out, "git not found")
	assert.True(t, HasErrors(findings))
}

func TestDoctorLocalModelAndQdrant(t *testing.T) {
	dir := t.TempDir()
	writeSources(t, dir, "sources:\n  docs: {path: ./docs}\n")

	cfg := config.DefaultConfig()
	cfg.Sync.DryRun = false
	cfg.Embed.Mode = config.ModeLocal
	cfg.Vector.Upsert = true

	var pinged bool
	checkers := DoctorCheckers{
		LocalModel:  func(context.Context) error { return nil },
		VectorStore: func(context.Context) error { pinged = true; return nil },
	}
	findings := NewDoctorUseCase(cfg, dir, noGit, checkers).Run(context.Background())
	out := findingsText(findings)

	assert.Contains(t, out, "[OK] embed mode local-model (model all-minilm)")
	assert.Contains(t, out, "[OK] qdrant reachable at http://qdrant:6333 (collection context_docs)")
	assert.True(t, pinged)
	assert.False(t, HasErrors(findings), out)

	checkers.LocalModel = func(context.Context) error { return errors.New("model missing") }
	checkers.VectorStore = func(context.Context) error { return errors.New("connection refused") }
	findings = NewDoctorUseCase(cfg, dir, noGit, checkers).Run(context.Background())
	out = findingsText(findings)

	assert.Contains(t, out, "[ERR] embed mode local-model: model missing")
	assert.Contains(t, out, "[ERR] qdrant at http://qdrant:6333: connection refused")
}

func TestDoctorBoltBackend(t *testing.T) {
	dir := t.TempDir()
	writeSources(t, dir, "sources:\n  docs: {path: ./docs}\n")

	cfg := config.DefaultConfig()
	cfg.Sync.DryRun = false
	cfg.Embed.APIKey = "sk-test"
	cfg.Vector.Upsert = true
	cfg.Vector.Backend = "bolt"

	findings := NewDoctorUseCase(cfg, dir, noGit, DoctorCheckers{}).Run(context.Background())
	out := findingsText(findings)

	assert.Contains(t, out, "[OK] embed mode remote-api (model text-embedding-3-small)")
	assert.Contains(t, out, "[OK] bolt vector store at vectors.db")
	assert.False(t, HasErrors(findings), out)
	assert.DirExists(t, filepath.Join(dir, "artifacts"))
}
