package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ctxpipe/config"
	"ctxpipe/internal/adapter/validate"
)

var (
	forbidPattern string
	forbidMessage string
	deltaPath     string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Pre-commit validators",
	Long: `Repository checks meant to run from pre-commit hooks. Each subcommand
exits non-zero when a check fails.`,
}

var checkHeadersCmd = &cobra.Command{
	Use:   "headers [files...]",
	Short: "Require the script metadata header on .py/.sh/.js files",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		checker, err := validate.NewHeaderChecker(cfg.Validators.HeaderMarker, cfg.Validators.Repos, cfg.Validators.HeaderExts)
		if err != nil {
			return err
		}
		return reportViolations(checker.Check(args))
	},
}

var checkForbidCmd = &cobra.Command{
	Use:   "forbid --pattern RE --message MSG [files...]",
	Short: "Fail when any file matches a forbidden pattern",
	RunE: func(cmd *cobra.Command, args []string) error {
		checker, err := validate.NewForbidChecker(forbidPattern, forbidMessage)
		if err != nil {
			return err
		}
		return reportViolations(checker.Check(args))
	},
}

var checkDeltaCmd = &cobra.Command{
	Use:   "delta",
	Short: "Validate the context delta log schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		path := cfg.Validators.DeltaLog
		if deltaPath != "" {
			path = deltaPath
		}
		errs := validate.ValidateDeltaFile(config.Resolve(GetRootDir(), path))
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, e.String())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s: %d schema errors", path, len(errs))
		}
		fmt.Printf("[OK] %s\n", path)
		return nil
	},
}

func init() {
	checkForbidCmd.Flags().StringVar(&forbidPattern, "pattern", "", "regex to search for")
	checkForbidCmd.Flags().StringVar(&forbidMessage, "message", "", "message to print on match")
	_ = checkForbidCmd.MarkFlagRequired("pattern")
	_ = checkForbidCmd.MarkFlagRequired("message")

	checkDeltaCmd.Flags().StringVar(&deltaPath, "path", "", "delta log path (default from config)")

	checkCmd.AddCommand(checkHeadersCmd, checkForbidCmd, checkDeltaCmd)
	rootCmd.AddCommand(checkCmd)
}

func reportViolations(violations []validate.Violation) error {
	for _, v := range violations {
		fmt.Println(v)
	}
	if len(violations) > 0 {
		return fmt.Errorf("%d files failed the check", len(violations))
	}
	return nil
}
