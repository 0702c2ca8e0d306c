package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/prepdocs/internal/core/cleanup"
)

var purgeCmd = &cobra.Command{
	Use:   "purge <filename>",
	Short: "Delete every index document and page blob of a file",
	Long: `Deletes the index documents whose source file is filename, waiting
until the index reports none left, then deletes its "<stem>-<N>.pdf"
page blobs. Names that fail validation only have their index
documents removed.`,
	Args: cobra.ExactArgs(1),
	RunE: runPurge,
}

func init() {
	rootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Search.CreateIndex(cmd.Context()); err != nil {
		return err
	}
	res := a.Reconciler().RemoveIndexBlob(cmd.Context(), args[0])
	if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	switch res.Status {
	case cleanup.Converged, cleanup.Skipped:
		return nil
	case cleanup.Failed:
		return fmt.Errorf("purge %s: %w", res.Filename, res.Err)
	}
	return fmt.Errorf("purge %s: %s after %d iterations", res.Filename, res.Status, res.Iterations)
}
