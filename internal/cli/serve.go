package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ctxpipe/internal/adapter/github"
	"ctxpipe/internal/adapter/httpapi"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve GitHub repository tools over HTTP",
	Long: `Start a small HTTP adapter exposing repository tools for one GitHub
repository. GITHUB_OWNER, GITHUB_REPO and GITHUB_TOKEN are required.

Endpoints:
  GET  /health
  POST /tools/listContents   {path, ref}
  POST /tools/listIssues     {state, labels, per_page}
  POST /tools/createIssue    {title, body, labels}
  POST /tools/commentIssue   {issue_number, body}
  POST /tools/listPulls      {state, per_page}`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8085)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := github.NewClient(ctx, github.Config{
		Owner:   cfg.GitHub.Owner,
		Repo:    cfg.GitHub.Repo,
		Token:   cfg.GitHub.Token,
		BaseURL: cfg.GitHub.APIURL,
		Timeout: time.Duration(cfg.GitHub.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	addr := cfg.GitHub.Listen
	if serveAddr != "" {
		addr = serveAddr
	}

	return httpapi.NewServer(client, addr, logger).Start(ctx)
}
