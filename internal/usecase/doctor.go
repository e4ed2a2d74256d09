package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"ctxpipe/config"
	"ctxpipe/internal/domain"
)

// Severity of a doctor finding.
type Severity string

const (
	SeverityOK   Severity = "OK"
	SeverityWarn Severity = "WARN"
	SeverityErr  Severity = "ERR"
)

// Finding is one line of the doctor report.
type Finding struct {
	Severity Severity
	Message  string
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s] %s", f.Severity, f.Message)
}

// DoctorUseCase checks credentials and backend prerequisites for the
// configured pipeline.
type DoctorUseCase struct {
	cfg      *config.Config
	baseDir  string
	lookPath func(string) (string, error)
	checkers DoctorCheckers
}

// DoctorCheckers probes external prerequisites. Nil probes are skipped.
type DoctorCheckers struct {
	// LocalModel verifies the local embedding model is installed.
	LocalModel func(ctx context.Context) error
	// VectorStore verifies the vector backend answers.
	VectorStore func(ctx context.Context) error
}

func NewDoctorUseCase(cfg *config.Config, baseDir string, lookPath func(string) (string, error), checkers DoctorCheckers) *DoctorUseCase {
	return &DoctorUseCase{cfg: cfg, baseDir: baseDir, lookPath: lookPath, checkers: checkers}
}

// Run returns the findings in a stable order.
func (u *DoctorUseCase) Run(ctx context.Context) []Finding {
	var out []Finding
	add := func(s Severity, format string, args ...any) {
		out = append(out, Finding{Severity: s, Message: fmt.Sprintf(format, args...)})
	}

	sourcesPath := config.Resolve(u.baseDir, u.cfg.Sync.SourcesFile)
	sources, err := config.LoadSources(sourcesPath)
	switch {
	case err != nil:
		add(SeverityWarn, "sources file: %v", err)
	default:
		add(SeverityOK, "sources file %s (%d sources)", u.cfg.Sync.SourcesFile, len(sources))
	}

	remote := 0
	for _, s := range sources {
		if s.Kind == domain.SourceRemote {
			remote++
		}
	}
	if remote > 0 {
		if _, err := u.lookPath("git"); err != nil {
			add(SeverityErr, "git not found on PATH; %d remote sources cannot be cloned", remote)
		} else {
			add(SeverityOK, "git available for %d remote sources", remote)
		}
		if u.cfg.Sync.Token == "" {
			add(SeverityWarn, "%s not set; private https remotes will fail", u.cfg.Sync.TokenEnv)
		}
	}

	if u.cfg.Sync.DryRun {
		add(SeverityWarn, "sync dry-run is on; set SYNC_DRY_RUN=0 or pass --apply to write")
	}

	mode, err := u.cfg.Embed.ResolveMode()
	if err != nil {
		add(SeverityErr, "embed mode: %v", err)
		return out
	}

	switch mode {
	case config.ModeRemote:
		if u.cfg.Embed.APIKey == "" {
			add(SeverityErr, "embed mode %s needs %s", mode, u.cfg.Embed.APIKeyEnv)
		} else {
			add(SeverityOK, "embed mode %s (model %s)", mode, u.cfg.Embed.Model)
		}
	case config.ModeLocal:
		if u.checkers.LocalModel == nil {
			add(SeverityWarn, "embed mode %s: model check skipped", mode)
		} else if err := u.checkers.LocalModel(ctx); err != nil {
			add(SeverityErr, "embed mode %s: %v", mode, err)
		} else {
			add(SeverityOK, "embed mode %s (model %s)", mode, u.cfg.Embed.LocalModel)
		}
	case config.ModeDry:
		add(SeverityWarn, "embed mode dry: only the chunk manifest will be written")
	}

	if !u.cfg.Vector.Upsert {
		add(SeverityOK, "vector upsert disabled")
		return out
	}
	if mode == config.ModeDry {
		add(SeverityWarn, "vector upsert enabled but embed mode is dry; nothing will be upserted")
	}

	switch u.cfg.Vector.Backend {
	case "bolt":
		dir := filepath.Dir(u.cfg.ArtifactPath(u.baseDir, u.cfg.Vector.BoltPath))
		if err := writableDir(dir); err != nil {
			add(SeverityErr, "bolt vector store: %v", err)
		} else {
			add(SeverityOK, "bolt vector store at %s", u.cfg.Vector.BoltPath)
		}
	default:
		if u.checkers.VectorStore == nil {
			add(SeverityWarn, "qdrant at %s: check skipped", u.cfg.Vector.Endpoint())
		} else if err := u.checkers.VectorStore(ctx); err != nil {
			add(SeverityErr, "qdrant at %s: %v", u.cfg.Vector.Endpoint(), err)
		} else {
			add(SeverityOK, "qdrant reachable at %s (collection %s)", u.cfg.Vector.Endpoint(), u.cfg.Vector.Collection)
		}
	}

	return out
}

// HasErrors reports whether any finding blocks the pipeline.
func HasErrors(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityErr {
			return true
		}
	}
	return false
}

// writableDir reports an error unless dir exists (or can be created) and
// accepts new files.
func writableDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".ctxpipe-doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
