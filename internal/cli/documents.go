package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/prepdocs/internal/app"
	"github.com/markdave123-py/prepdocs/internal/config"
	"github.com/markdave123-py/prepdocs/internal/core"
	"github.com/markdave123-py/prepdocs/internal/core/ingestion_engine"
	"github.com/markdave123-py/prepdocs/internal/models"
)

var (
	addURL           string
	addMaxDepth      int
	addCategory      string
	addDataLake      bool
	addNoChangeCheck bool
	addOIDs          string
	addGroups        string
	skipBlobs        bool
	useACLs          bool
	removeDataLake   bool
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the search index",
	Long: `Creates the search index and, when content understanding is enabled,
the image analyzer. Running it again is a no-op.`,
	Args: cobra.NoArgs,
	RunE: runSetup,
}

var addCmd = &cobra.Command{
	Use:   "add [pattern]",
	Short: "Ingest files and web pages",
	Long: `Ingests the files matching pattern (or the data lake objects with
--datalake) and the pages reachable from --url. Each file is reported
separately; a failing file does not stop the run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAdd,
}

var removeCmd = &cobra.Command{
	Use:   "remove <pattern>",
	Short: "Remove files from storage and the index",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

var removeAllCmd = &cobra.Command{
	Use:   "removeall",
	Short: "Remove every blob and every index document",
	Args:  cobra.NoArgs,
	RunE:  runRemoveAll,
}

func init() {
	for _, c := range []*cobra.Command{addCmd, removeCmd, removeAllCmd} {
		c.Flags().BoolVar(&skipBlobs, "skip-blobs", false, "do not touch object storage")
	}
	addCmd.Flags().StringVar(&addURL, "url", "", "crawl and index this URL before the files")
	addCmd.Flags().IntVar(&addMaxDepth, "max-depth", 2, "pages deep to crawl from --url, 1 is the root only")
	addCmd.Flags().StringVar(&addCategory, "category", "", "category stored on every section")
	addCmd.Flags().BoolVar(&addDataLake, "datalake", false, "list objects of DATALAKE_BUCKET instead of local files")
	addCmd.Flags().BoolVar(&addNoChangeCheck, "no-change-detection", false, "re-ingest files whose md5 did not change")
	addCmd.Flags().StringVar(&addOIDs, "oids", "", "comma separated owner ids stored on every section")
	addCmd.Flags().StringVar(&addGroups, "groups", "", "comma separated group ids stored on every section")
	addCmd.Flags().BoolVar(&useACLs, "use-acls", false, "index access control fields")
	removeCmd.Flags().BoolVar(&removeDataLake, "datalake", false, "pattern is a data lake prefix")

	rootCmd.AddCommand(setupCmd, addCmd, removeCmd, removeAllCmd)
}

func applyFlags(cfg *config.Config) {
	if skipBlobs {
		cfg.SkipBlobs = true
	}
	if useACLs {
		cfg.UseACLs = true
	}
}

func runSetup(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.FileStrategy(nil, ingestion_engine.Options{Action: models.Add}, 0)
	if err != nil {
		return err
	}
	if err := s.Setup(cmd.Context()); err != nil {
		return fmt.Errorf("setup failed: %w", err)
	}
	cmd.Printf("Index %s is ready.\n", a.Config.IndexName)
	return nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && addURL == "" && !addDataLake {
		return errors.New("nothing to add: pass a pattern, --url or --datalake")
	}
	a, err := openApp(cmd, applyFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	acls := aclsFrom(addOIDs, addGroups)
	var list core.ListStrategy
	switch {
	case addDataLake:
		if list, err = a.DataLakeFiles(cmd.Context(), acls); err != nil {
			return err
		}
	case len(args) == 1:
		list = a.LocalFiles(args[0], !addNoChangeCheck, acls)
	}

	return runStrategy(cmd, a, list, ingestion_engine.Options{
		Action:   models.Add,
		Category: addCategory,
		URL:      addURL,
	})
}

func runRemove(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, applyFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	var list core.ListStrategy
	if removeDataLake {
		a.Config.DataLakePath = args[0]
		if list, err = a.DataLakeFiles(cmd.Context(), nil); err != nil {
			return err
		}
	} else {
		list = a.LocalFiles(args[0], false, nil)
	}
	return runStrategy(cmd, a, list, ingestion_engine.Options{Action: models.Remove})
}

func runRemoveAll(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd, applyFlags)
	if err != nil {
		return err
	}
	defer a.Close()
	return runStrategy(cmd, a, nil, ingestion_engine.Options{Action: models.RemoveAll})
}

// runStrategy runs setup and the action, prints the run result as JSON and
// fails when any unit failed.
func runStrategy(cmd *cobra.Command, a *app.App, list core.ListStrategy, opts ingestion_engine.Options) error {
	s, err := a.FileStrategy(list, opts, addMaxDepth)
	if err != nil {
		return err
	}
	if err := s.Setup(cmd.Context()); err != nil {
		return fmt.Errorf("setup failed: %w", err)
	}

	res, runErr := s.Run(cmd.Context())
	if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("%s failed: %w", opts.Action, runErr)
	}
	if failed := res.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d units failed", len(failed), len(res.Outcomes))
	}
	return nil
}
