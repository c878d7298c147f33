package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/clicktrail/clicktrail/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "clicktrail",
	Short: "Desktop activity recorder with browser click correlation",
	Long:  "Records user clicks and periodic screenshots, and merges OS-level pointer events with page-context events reported by a browser agent. One binary runs the daemon, the native messaging host, and the control commands.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ctlAddr is shared by every command that talks to a running daemon.
var ctlAddr string

func addAddrFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&ctlAddr, "addr", config.Default().Server.Addr, "Daemon control address (host:port)")
}
