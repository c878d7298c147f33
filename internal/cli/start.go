package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clicktrail/clicktrail/internal/client"
)

func init() {
	rootCmd.AddCommand(startCmd)
	addAddrFlag(startCmd)
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Begin recording on the running daemon",
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	if err := client.New(ctlAddr).Start(); err != nil {
		return err
	}
	fmt.Println("Recording started.")
	return nil
}
