package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"ctxpipe/internal/adapter/fs"
	"ctxpipe/internal/domain"
	"ctxpipe/internal/port"
)

// SyncUseCase stages source trees into the destination root.
//
// For every source it:
//  1. Materializes the tree (local path or shallow clone)
//  2. Enumerates files and applies include/exclude globs
//  3. Copies new or changed files, skipping identical ones
//  4. Prunes files no longer produced by the source (non-dry only)
type SyncUseCase struct {
	checkout    port.Checkout
	destination string
	dryRun      bool
	logger      *slog.Logger
	onPlan      func(source string, total int)
	onFile      func(source string, f domain.StagedFile)
}

// SyncConfig holds dependencies for SyncUseCase.
type SyncConfig struct {
	Checkout    port.Checkout
	Destination string
	DryRun      bool
	Logger      *slog.Logger

	// OnPlan is called once per source with the number of files to stage.
	OnPlan func(source string, total int)
	// OnFile is called after each file decision.
	OnFile func(source string, f domain.StagedFile)
}

func NewSyncUseCase(cfg SyncConfig) *SyncUseCase {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncUseCase{
		checkout:    cfg.Checkout,
		destination: cfg.Destination,
		dryRun:      cfg.DryRun,
		logger:      logger,
		onPlan:      cfg.OnPlan,
		onFile:      cfg.OnFile,
	}
}

// Run stages every source in order. A failing source is recorded in its
// result and does not stop the others.
func (u *SyncUseCase) Run(ctx context.Context, sources []domain.Source) *domain.SyncReport {
	report := &domain.SyncReport{
		GeneratedAt: time.Now().UTC(),
		DryRun:      u.dryRun,
		Destination: u.destination,
		Sources:     make([]domain.SourceResult, 0, len(sources)),
	}

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			report.Sources = append(report.Sources, failed(src, err))
			report.Errors++
			continue
		}

		result := u.stage(ctx, src)
		if result.Error != "" {
			report.Errors++
			u.logger.Error("source failed", "source", src.Name, "error", result.Error)
		} else {
			u.logger.Info("source staged",
				"source", src.Name,
				"included", result.Included,
				"copied", result.Copied,
				"skipped", result.Skipped,
				"denied", result.Denied,
				"pruned", len(result.Pruned),
				"dry_run", u.dryRun,
			)
		}
		report.Sources = append(report.Sources, result)
	}

	return report
}

func (u *SyncUseCase) stage(ctx context.Context, src domain.Source) domain.SourceResult {
	result := domain.SourceResult{
		Name:     src.Name,
		Kind:     src.Kind,
		Location: src.Location(),
		Dest:     src.Dest,
		Files:    []domain.StagedFile{},
	}

	root, cleanup, err := u.checkout.Materialize(ctx, src)
	defer cleanup()
	if err != nil {
		result.Error = err.Error()
		return result
	}
	u.logger.Debug("source materialized", "source", src.Name, "root", root)

	files, err := fs.NewWalker(src.Include, src.Exclude).Walk(root)
	if err != nil {
		result.Error = fmt.Errorf("%w: walk %s: %v", domain.ErrSourceUnavailable, src.Location(), err).Error()
		return result
	}
	if u.onPlan != nil {
		u.onPlan(src.Name, len(files))
	}

	destDir := filepath.Join(u.destination, filepath.FromSlash(src.Dest))
	keep := make(map[string]bool, len(files))

	for _, file := range files {
		staged := domain.StagedFile{
			Source: file.RelPath,
			Dest:   path.Join(src.Dest, file.RelPath),
		}

		if file.Denied {
			staged.Outcome = domain.OutcomeDenied
			staged.Note = "matched exclude pattern"
			if file.Reason != "" {
				staged.Note = file.Reason
			}
		} else {
			keep[file.RelPath] = true
			staged, err = u.place(file, destDir, staged)
			if err != nil {
				result.Error = err.Error()
				return result
			}
		}

		result.Add(staged)
		if u.onFile != nil {
			u.onFile(src.Name, staged)
		}
	}

	if !u.dryRun {
		pruned, err := fs.Prune(destDir, keep)
		result.Pruned = pruned
		if err != nil {
			result.Error = fmt.Sprintf("prune %s: %v", src.Dest, err)
		}
	}

	return result
}

func (u *SyncUseCase) place(file port.FileInfo, destDir string, staged domain.StagedFile) (domain.StagedFile, error) {
	target := filepath.Join(destDir, filepath.FromSlash(file.RelPath))

	same, err := fs.SameContent(file.Path, target)
	if err != nil {
		return staged, fmt.Errorf("compare %s: %w", file.RelPath, err)
	}
	if same {
		staged.Outcome = domain.OutcomeSkipped
		return staged, nil
	}

	staged.Outcome = domain.OutcomeCopied
	if u.dryRun {
		staged.Note = "dry-run"
		return staged, nil
	}
	if err := fs.CopyFile(file.Path, target); err != nil {
		return staged, fmt.Errorf("copy %s: %w", file.RelPath, err)
	}
	return staged, nil
}

func failed(src domain.Source, err error) domain.SourceResult {
	return domain.SourceResult{
		Name:     src.Name,
		Kind:     src.Kind,
		Location: src.Location(),
		Dest:     src.Dest,
		Files:    []domain.StagedFile{},
		Error:    err.Error(),
	}
}

// WriteReport writes the sync report as indented JSON, creating parent
// directories.
func WriteReport(path string, report *domain.SyncReport) error {
	return writeJSON(path, report)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
