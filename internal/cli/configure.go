package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/toolshed/internal/config"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Run interactive configuration wizard",
	Long: `Run an interactive configuration wizard to set up toolshed.
The wizard asks for the backend URL, the AI provider and its API key, and the
log level, starting from the current configuration.`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	wizard := config.NewWizardIO(cmd.InOrStdin(), cmd.OutOrStdout())

	next, err := wizard.Run(cfg)
	if err != nil {
		return fmt.Errorf("configuration failed: %w", err)
	}

	if err := next.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := loader.Save(next); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nConfiguration saved to: %s\n", loader.GetConfigPath())
	fmt.Fprintln(out, "\nStart the backend with: toolshed backend")
	fmt.Fprintln(out, "Start the gateway with: toolshed serve")
	return nil
}
