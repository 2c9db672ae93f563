package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/toolshed/internal/daemon"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the browser gateway",
	Long: `Start the browser gateway in the foreground.
The gateway lists the tools of the backend, opens a live detail view per tool
and runs tool code locally. Stop it with Ctrl+C or "toolshed stop serve".`,
	Annotations: map[string]string{annotationDaemon: "true"},
	RunE:        runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (overrides gateway.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides gateway.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveHost != "" {
		cfg.Gateway.Host = serveHost
	}
	if servePort != 0 {
		cfg.Gateway.Port = servePort
	}

	g, err := daemon.NewGateway(cfg, loader, appLog)
	if err != nil {
		return err
	}
	if err := g.Start(cmd.Context()); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Gateway listening on http://%s (backend %s)\n", g.Server.Addr(), cfg.Backend.URL)
	return g.Wait(cmd.Context())
}
