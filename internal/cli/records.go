package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clicktrail/clicktrail/internal/client"
)

var (
	recordsLimit  int
	recordsSource string
	recordsSince  string
	recordsJSON   bool
)

func init() {
	rootCmd.AddCommand(recordsCmd)
	addAddrFlag(recordsCmd)
	recordsCmd.Flags().IntVar(&recordsLimit, "limit", 20, "Maximum records to fetch")
	recordsCmd.Flags().StringVar(&recordsSource, "source", "", "Filter by source (os|external|merged)")
	recordsCmd.Flags().StringVar(&recordsSince, "since", "", "Only records at or after this UTC stamp")
	recordsCmd.Flags().BoolVar(&recordsJSON, "json", false, "Print raw JSON instead of a table")
}

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List recent activity records from the daemon index",
	RunE:  runRecords,
}

func runRecords(cmd *cobra.Command, args []string) error {
	recs, err := client.New(ctlAddr).Records(recordsLimit, recordsSource, recordsSince)
	if err != nil {
		return err
	}

	if recordsJSON {
		out, _ := json.MarshalIndent(recs, "", "  ")
		fmt.Println(string(out))
		return nil
	}

	if len(recs) == 0 {
		fmt.Println("No records.")
		return nil
	}

	fmt.Printf("%-26s %-9s %-12s %-18s %s\n", "TIMESTAMP", "SOURCE", "POS", "APP", "TARGET")
	for _, r := range recs {
		target := r.URLOrPath
		if target == "" {
			target = r.WindowTitle
		}
		fmt.Printf("%-26s %-9s %-12s %-18s %s\n",
			r.TimestampUTC,
			r.Source,
			fmt.Sprintf("(%d,%d)", r.X, r.Y),
			truncate(r.AppName, 18),
			truncate(target, 48),
		)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
