package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/toolshed/pkg/backend"
	"github.com/harun/toolshed/pkg/catalog"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a tool",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	id := catalog.ID(args[0])

	client := backend.NewClient(cfg.Backend.URL, cfg.BackendTimeout())
	if err := client.DeleteTool(cmd.Context(), id); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted tool %s\n", id)
	return nil
}
