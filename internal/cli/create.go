package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harun/toolshed/pkg/backend"
)

var createCmd = &cobra.Command{
	Use:     "create <query>",
	Short:   "Generate a new tool from a description",
	Example: `  toolshed create "convert celsius to fahrenheit"`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runCreate,
}

func init() {
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return fmt.Errorf("query is required")
	}

	client := backend.NewClient(cfg.Backend.URL, cfg.BackendTimeout())
	tool, err := client.CreateTool(cmd.Context(), query)
	if err != nil {
		return fmt.Errorf("failed to create tool: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created tool %s: %s\n", tool.ID, tool.Title())
	return nil
}
