package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/prepdocs/internal/config"
	"github.com/markdave123-py/prepdocs/internal/models"
)

var (
	userOID      string
	userGroups   string
	userCategory string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Index or remove files uploaded by a user",
	Long: `Indexes a single file on behalf of a user. The sections are scoped to
the user's id, and removal only deletes documents owned by that user
alone.`,
}

var userAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Index a user's file",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserAdd,
}

var userRemoveCmd = &cobra.Command{
	Use:   "remove <filename>",
	Short: "Remove a user's file from the index",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserRemove,
}

func init() {
	userCmd.PersistentFlags().StringVar(&userOID, "oid", "", "id of the uploading user")
	userAddCmd.Flags().StringVar(&userGroups, "groups", "", "comma separated group ids")
	userAddCmd.Flags().StringVar(&userCategory, "category", "", "category stored on every section")
	_ = userCmd.MarkPersistentFlagRequired("oid")

	userCmd.AddCommand(userAddCmd, userRemoveCmd)
	rootCmd.AddCommand(userCmd)
}

func userConfig(cfg *config.Config) {
	cfg.UseACLs = true
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, userConfig)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Search.CreateIndex(cmd.Context()); err != nil {
		return err
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	file := models.NewFile(args[0], f)
	file.ACLs = aclsFrom(userOID, userGroups)

	n, err := a.UserFiles(userCategory).AddFile(cmd.Context(), file)
	if err != nil {
		return fmt.Errorf("add %s: %w", file.Filename(), err)
	}
	cmd.Printf("Indexed %d sections of %s.\n", n, file.Filename())
	return nil
}

func runUserRemove(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, userConfig)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Search.CreateIndex(cmd.Context()); err != nil {
		return err
	}
	if err := a.UserFiles("").RemoveFile(cmd.Context(), args[0], userOID); err != nil {
		return fmt.Errorf("remove %s: %w", args[0], err)
	}
	cmd.Printf("Removed %s for %s.\n", args[0], userOID)
	return nil
}
