package cli

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"ctxpipe/internal/adapter/embedding"
	"ctxpipe/internal/adapter/qdrant"
	"ctxpipe/internal/usecase"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check credentials and backend prerequisites",
	Long: `Report [OK]/[WARN]/[ERR] lines for the sources file, git, embedding
credentials and the vector backend. Exits non-zero when a hard blocker is
found.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	dir := GetRootDir()

	var checkers usecase.DoctorCheckers

	local, err := embedding.NewLocalEmbedder(cfg.Embed.LocalModel, cfg.Embed.OllamaURL, 5*time.Second)
	if err == nil {
		checkers.LocalModel = local.CheckModel
	}
	if cfg.Vector.Backend != "bolt" {
		client, err := qdrant.NewClient(cfg.Vector.Endpoint(), cfg.Vector.APIKey, 5*time.Second)
		if err == nil {
			checkers.VectorStore = client.Ping
		} else {
			checkers.VectorStore = func(context.Context) error { return err }
		}
	}

	findings := usecase.NewDoctorUseCase(cfg, dir, exec.LookPath, checkers).Run(cmd.Context())
	for _, f := range findings {
		fmt.Println(f)
	}

	if usecase.HasErrors(findings) {
		return fmt.Errorf("doctor found blocking problems")
	}
	return nil
}
