package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/toolshed/internal/daemon"
)

var (
	backendHost string
	backendPort int
)

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Start the tool backend",
	Long: `Start the tool backend in the foreground.
The backend stores tools in SQLite and generates new ones with the configured
AI providers. Stop it with Ctrl+C or "toolshed stop backend".`,
	Annotations: map[string]string{annotationDaemon: "true"},
	RunE:        runBackend,
}

func init() {
	backendCmd.Flags().StringVar(&backendHost, "host", "", "listen host (overrides server.host)")
	backendCmd.Flags().IntVar(&backendPort, "port", 0, "listen port (overrides server.port)")
	rootCmd.AddCommand(backendCmd)
}

func runBackend(cmd *cobra.Command, args []string) error {
	if backendHost != "" {
		cfg.Server.Host = backendHost
	}
	if backendPort != 0 {
		cfg.Server.Port = backendPort
	}

	b, err := daemon.NewBackend(cfg, appLog)
	if err != nil {
		return err
	}
	if err := b.Start(cmd.Context()); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Tool backend listening on http://%s (database %s)\n", b.Server.Addr(), cfg.Server.DBPath)
	return b.Wait(cmd.Context())
}
