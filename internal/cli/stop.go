package cli

import (
	"fmt"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/toolshed/internal/daemon"
)

var (
	stopTimeout int
)

var services = []string{daemon.GatewayName, daemon.BackendName}

var stopCmd = &cobra.Command{
	Use:   "stop [serve|backend]",
	Short: "Stop running toolshed services",
	Long: `Stop the gateway, the backend, or both when no service is named.
Sends SIGTERM and waits for the process to exit, then falls back to SIGKILL.`,
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: services,
	RunE:      runStop,
}

func init() {
	stopCmd.Flags().IntVar(&stopTimeout, "timeout", 30, "timeout in seconds to wait for a service to stop")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	names := services
	if len(args) == 1 {
		names = args
	}

	out := cmd.OutOrStdout()
	for _, name := range names {
		pidFile := daemon.NewPIDFile(cfg.DataDir, name)
		if !pidFile.IsRunning() {
			fmt.Fprintf(out, "%s: not running\n", name)
			_ = pidFile.Remove()
			continue
		}

		if err := stopService(pidFile, time.Duration(stopTimeout)*time.Second); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		fmt.Fprintf(out, "%s: stopped\n", name)
	}
	return nil
}

// stopService sends SIGTERM and waits, then SIGKILL once timeout passes
func stopService(pidFile *daemon.PIDFile, timeout time.Duration) error {
	if err := pidFile.Signal(syscall.SIGTERM); err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !pidFile.IsRunning() {
			return pidFile.Remove()
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := pidFile.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to send SIGKILL: %w", err)
	}
	return pidFile.Remove()
}
