package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clicktrail/clicktrail/internal/client"
)

var (
	configureHz     float64
	configureOutput string
)

func init() {
	rootCmd.AddCommand(configureCmd)
	addAddrFlag(configureCmd)
	configureCmd.Flags().Float64Var(&configureHz, "hz", 0, "New capture frequency in Hz")
	configureCmd.Flags().StringVar(&configureOutput, "output", "", "New output root directory")
}

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Change capture settings on the running daemon",
	Long: "Applies capture frequency and output root changes without restarting\n" +
		"the daemon. Omitted flags leave the current value untouched.",
	RunE: runConfigure,
}

func runConfigure(cmd *cobra.Command, args []string) error {
	var hz *float64
	var output *string
	if cmd.Flags().Changed("hz") {
		hz = &configureHz
	}
	if cmd.Flags().Changed("output") {
		output = &configureOutput
	}
	if hz == nil && output == nil {
		return fmt.Errorf("nothing to change: pass --hz and/or --output")
	}

	applied, err := client.New(ctlAddr).Configure(hz, output)
	if err != nil {
		return err
	}
	fmt.Printf("Capture: %.2f Hz -> %s\n", applied.Hz, applied.OutputRoot)
	return nil
}
