package cli

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"ctxpipe/config"
	"ctxpipe/internal/adapter/checkout"
	"ctxpipe/internal/domain"
	"ctxpipe/internal/usecase"
)

var syncApply bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Stage declared sources into the context tree",
	Long: `Read the sources file, materialize every source (local directory or
shallow git clone), apply include/exclude globs and copy the matching files
into <destination>/<dest>. Identical files are skipped.

Runs as a dry-run unless --apply is given or SYNC_DRY_RUN=0. The report is
always written to artifacts/sync.report.json.

Examples:
  ctxpipe sync                       # Show the plan
  ctxpipe sync --apply               # Copy files and prune stale ones`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncApply, "apply", false, "perform writes (disables dry-run)")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	dir := GetRootDir()

	dryRun := cfg.Sync.DryRun && !syncApply

	sources, err := config.LoadSources(config.Resolve(dir, cfg.Sync.SourcesFile))
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	var start time.Time
	var done, total int

	uc := usecase.NewSyncUseCase(usecase.SyncConfig{
		Checkout:    checkout.NewResolver(dir, cfg.Sync.Token),
		Destination: config.Resolve(dir, cfg.Sync.Destination),
		DryRun:      dryRun,
		Logger:      logger,
		OnPlan: func(source string, n int) {
			start, done, total = time.Now(), 0, n
			bar = newProgressBar(n, source)
		},
		OnFile: func(source string, _ domain.StagedFile) {
			done++
			_ = bar.Set(done)
			bar.Describe(etaDescription(source, start, done, total))
		},
	})

	if dryRun {
		fmt.Println("Dry-run: no files will be written (use --apply or SYNC_DRY_RUN=0)")
	}

	report := uc.Run(cmd.Context(), sources)

	reportPath := cfg.ArtifactPath(dir, cfg.Sync.Report)
	if err := usecase.WriteReport(reportPath, report); err != nil {
		return err
	}

	fmt.Printf("\nSync complete:\n")
	for _, r := range report.Sources {
		if r.Error != "" {
			fmt.Printf("  [ERR] %-20s %s\n", r.Name, r.Error)
			continue
		}
		fmt.Printf("  [OK]  %-20s included=%d copied=%d skipped=%d denied=%d pruned=%d\n",
			r.Name, r.Included, r.Copied, r.Skipped, r.Denied, len(r.Pruned))
	}
	fmt.Printf("\n[OK] wrote %s\n", reportPath)

	if report.Errors > 0 {
		return fmt.Errorf("%d of %d sources failed", report.Errors, len(report.Sources))
	}
	return nil
}
