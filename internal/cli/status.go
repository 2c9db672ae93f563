package cli

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harun/toolshed/internal/daemon"
	"github.com/harun/toolshed/pkg/backend"
)

const probeTimeout = 3 * time.Second

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show service status",
	Long: `Show whether the gateway and the backend are running on this machine
and whether the configured backend URL answers.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ok := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()

	for _, name := range services {
		printServiceStatus(out, daemon.NewPIDFile(cfg.DataDir, name), name, ok, bad)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
	defer cancel()

	client := backend.NewClient(cfg.Backend.URL, probeTimeout)
	if err := client.Ping(ctx); err != nil {
		fmt.Fprintf(out, "Backend %s: %s (%v)\n", cfg.Backend.URL, bad("unreachable"), err)
	} else {
		fmt.Fprintf(out, "Backend %s: %s\n", cfg.Backend.URL, ok("reachable"))
	}

	gatewayURL := "http://" + net.JoinHostPort(cfg.Gateway.Host, strconv.Itoa(cfg.Gateway.Port))
	if err := probeHealth(ctx, gatewayURL+"/healthz"); err != nil {
		fmt.Fprintf(out, "Gateway %s: %s\n", gatewayURL, bad("unreachable"))
	} else {
		fmt.Fprintf(out, "Gateway %s: %s\n", gatewayURL, ok("healthy"))
	}

	return nil
}

func printServiceStatus(out io.Writer, pidFile *daemon.PIDFile, name string, ok, bad func(...any) string) {
	if !pidFile.IsRunning() {
		fmt.Fprintf(out, "%s: %s\n", name, bad("stopped"))
		return
	}

	pid, _ := pidFile.PID()
	if uptime, err := pidFile.Uptime(); err == nil {
		fmt.Fprintf(out, "%s: %s (PID %d, uptime %s)\n", name, ok("running"), pid, formatDuration(uptime))
		return
	}
	fmt.Fprintf(out, "%s: %s (PID %d)\n", name, ok("running"), pid)
}

func probeHealth(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
