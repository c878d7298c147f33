package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clicktrail/clicktrail/internal/client"
)

func init() {
	rootCmd.AddCommand(stopCmd)
	addAddrFlag(stopCmd)
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Halt recording on the running daemon",
	RunE:  runStop,
}

func runStop(cmd *cobra.Command, args []string) error {
	if err := client.New(ctlAddr).Stop(); err != nil {
		return err
	}
	fmt.Println("Recording stopped.")
	return nil
}
