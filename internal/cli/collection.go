package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var collectionDim int

var collectionCmd = &cobra.Command{
	Use:   "collection",
	Short: "Manage the vector collection",
}

var collectionInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the collection if it does not exist",
	Long: `Create the configured collection with EMBEDDING_DIM dimensions, the
configured distance, HNSW m=16 / ef_construct=128 and on-disk vectors.
Running it again is a no-op. Existing collections are listed afterwards.

Examples:
  ctxpipe collection init
  ctxpipe collection init --dim 384`,
	Args: cobra.NoArgs,
	RunE: runCollectionInit,
}

var collectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections",
	Args:  cobra.NoArgs,
	RunE:  runCollectionList,
}

func init() {
	collectionInitCmd.Flags().IntVar(&collectionDim, "dim", 0, "vector dimension (default EMBEDDING_DIM)")
	collectionCmd.AddCommand(collectionInitCmd, collectionListCmd)
	rootCmd.AddCommand(collectionCmd)
}

func runCollectionInit(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	dim := cfg.Vector.Dimension
	if collectionDim > 0 {
		dim = collectionDim
	}

	index, closeIndex, err := openVectorIndex(cfg, GetRootDir())
	if err != nil {
		return err
	}
	defer closeIndex()

	res, err := newUpserter(cfg, index).EnsureCollection(cmd.Context(), dim)
	if err != nil {
		return err
	}

	switch {
	case res.Created:
		fmt.Printf("[OK] created collection %s (dim=%d distance=%s)\n", cfg.Vector.Collection, dim, res.Info.Distance)
	case res.Recreated:
		fmt.Printf("[OK] recreated collection %s (dim=%d distance=%s)\n", cfg.Vector.Collection, dim, res.Info.Distance)
	default:
		fmt.Printf("[OK] collection %s already exists\n", cfg.Vector.Collection)
	}

	names, err := index.ListCollections(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Collections: %v\n", names)
	return nil
}

func runCollectionList(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	index, closeIndex, err := openVectorIndex(cfg, GetRootDir())
	if err != nil {
		return err
	}
	defer closeIndex()

	names, err := index.ListCollections(cmd.Context())
	if err != nil {
		return err
	}
	for _, name := range names {
		info, _, err := index.GetCollection(cmd.Context(), name)
		if err != nil {
			return err
		}
		dim := "unknown"
		if info.Dimension > 0 {
			dim = fmt.Sprint(info.Dimension)
		}
		fmt.Printf("%-30s dim=%-6s distance=%s\n", name, dim, info.Distance)
	}
	if len(names) == 0 {
		fmt.Println("No collections.")
	}
	return nil
}
