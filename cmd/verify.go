package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/macropulse/macropulse/internal/artifact"
	"github.com/macropulse/macropulse/internal/render"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Run the artifact self-checks",
	Long: `Run the self-checks a run applies before publishing. Without a path the
published artifact is checked. Exits non-zero when a critical check fails.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	path := layout.Artifact
	if len(args) == 1 {
		path = args[0]
	}
	content, err := os.ReadFile(path) //nolint:gosec // G304: user-selected artifact
	if err != nil {
		return fmt.Errorf("reading artifact: %w", err)
	}
	report, verr := artifact.Verify(content)
	fmt.Fprint(cmd.OutOrStdout(), render.VerifyReport(path, report))
	if verr != nil {
		return verr
	}
	if report.HasCritical() {
		return artifact.ErrVerification
	}
	return nil
}
