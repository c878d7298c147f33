package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clicktrail/clicktrail/internal/client"
	"github.com/clicktrail/clicktrail/internal/event"
)

var (
	simX   int
	simY   int
	simURL string
)

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.AddCommand(simulateExtCmd)
	simulateCmd.AddCommand(simulatePDFCmd)
	for _, c := range []*cobra.Command{simulateExtCmd, simulatePDFCmd} {
		addAddrFlag(c)
		c.Flags().IntVar(&simX, "x", 100, "Global X coordinate")
		c.Flags().IntVar(&simY, "y", 200, "Global Y coordinate")
	}
	simulateExtCmd.Flags().StringVar(&simURL, "url", "https://example.com/article", "Page URL for the synthetic event")
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Inject synthetic browser events into a running daemon",
	Long: "Posts a fabricated external click through the same ingest path the\n" +
		"browser agent uses. Useful for checking merge behavior and journal\n" +
		"output without a browser attached.",
}

var simulateExtCmd = &cobra.Command{
	Use:   "ext",
	Short: "Send a synthetic page click",
	RunE:  runSimulateExt,
}

var simulatePDFCmd = &cobra.Command{
	Use:   "pdf",
	Short: "Send a synthetic click on a local PDF, exercising doc_path",
	RunE:  runSimulatePDF,
}

func runSimulateExt(cmd *cobra.Command, args []string) error {
	ev := event.ExternalEvent{
		X:          simX,
		Y:          simY,
		GlobalX:    &simX,
		GlobalY:    &simY,
		BrowserURL: simURL,
		Title:      simURL + " - Chrome",
		Text:       "Simulated ext click",
	}
	return sendSimulated(ev)
}

func runSimulatePDF(cmd *cobra.Command, args []string) error {
	ev := event.ExternalEvent{
		X:          simX,
		Y:          simY,
		GlobalX:    &simX,
		GlobalY:    &simY,
		BrowserURL: "file:///C:/Users/Admin/Downloads/example.pdf",
		Title:      "C:/Users/Admin/Downloads/example.pdf - Chrome",
		Text:       "Clicked inside PDF",
	}
	return sendSimulated(ev)
}

func sendSimulated(ev event.ExternalEvent) error {
	res, err := client.New(ctlAddr).SendExternal(ev)
	if err != nil {
		return err
	}

	fmt.Printf("Sent external event at (%d,%d)\n", simX, simY)
	fmt.Printf("Merged: %v\n", res.Merged)
	if res.ScreenshotPath != nil {
		fmt.Printf("Screenshot: %s\n", *res.ScreenshotPath)
	} else {
		fmt.Println("Screenshot: <none>")
	}
	return nil
}
