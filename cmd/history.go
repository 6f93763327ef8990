package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/macropulse/macropulse/internal/pipeline"
	"github.com/macropulse/macropulse/internal/render"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs",
	Long: `List recent runs newest first, with their outcome and published digest.
A published artifact that was never delivered is reported as pending; the
next run delivers it.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show (0 for all)")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	store, err := openStore(ctx, cfg, layout)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.Runs().List(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}
	digest, pending, err := pipeline.Pending(ctx, store.Runs())
	if err != nil {
		return fmt.Errorf("checking pending delivery: %w", err)
	}
	if !pending || !cfg.Distribution.Enabled {
		digest = ""
	}
	fmt.Fprint(cmd.OutOrStdout(), render.History(runs, digest))
	return nil
}
