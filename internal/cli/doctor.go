package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/spf13/cobra"

	"github.com/clicktrail/clicktrail/internal/client"
	"github.com/clicktrail/clicktrail/internal/config"
	"github.com/clicktrail/clicktrail/internal/display"
)

var doctorConfig string

func init() {
	rootCmd.AddCommand(doctorCmd)
	addAddrFlag(doctorCmd)
	doctorCmd.Flags().StringVar(&doctorConfig, "config", "", "Path to config YAML (default ~/.clicktrail/config.yaml)")
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check system readiness and diagnose configuration issues",
	RunE:  runDoctor,
}

type checkResult struct {
	label  string
	ok     bool
	detail string
	fix    string
}

// lowDiskBytes is the free-space level below which recording a stream
// of screenshots becomes a bad idea.
const lowDiskBytes = 1 << 30

func runDoctor(cmd *cobra.Command, args []string) error {
	var checks []checkResult

	// 1. Binary location and version.
	execPath, _ := os.Executable()
	if execPath != "" {
		checks = append(checks, checkResult{
			label:  "clicktrail binary",
			ok:     true,
			detail: fmt.Sprintf("%s (v%s)", execPath, version),
		})
	} else {
		checks = append(checks, checkResult{
			label:  "clicktrail binary",
			ok:     false,
			detail: "cannot determine executable path",
		})
	}

	// 2. Config file.
	cfgPath := doctorConfig
	if cfgPath == "" {
		cfgPath = config.DefaultPath()
	}
	cfg, cfgErr := config.Load(doctorConfig)
	if cfgErr != nil {
		checks = append(checks, checkResult{
			label:  "config",
			ok:     false,
			detail: cfgErr.Error(),
			fix:    "fix " + cfgPath,
		})
		cfg = config.Default()
	} else {
		detail := cfgPath
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			detail = "built-in defaults (no config file)"
		}
		checks = append(checks, checkResult{
			label:  "config",
			ok:     true,
			detail: detail,
		})
	}

	// 3. Output root writable.
	root := cfg.Capture.OutputRoot
	if err := os.MkdirAll(root, 0o755); err != nil {
		checks = append(checks, checkResult{
			label:  "output root",
			ok:     false,
			detail: err.Error(),
		})
	} else {
		probe := filepath.Join(root, ".doctor-probe")
		if err := os.WriteFile(probe, nil, 0o644); err != nil {
			checks = append(checks, checkResult{
				label:  "output root",
				ok:     false,
				detail: fmt.Sprintf("not writable: %v", err),
			})
		} else {
			os.Remove(probe)
			checks = append(checks, checkResult{
				label:  "output root",
				ok:     true,
				detail: root,
			})
		}
	}

	// 4. Free disk space under the output root.
	if du, err := disk.Usage(root); err != nil {
		checks = append(checks, checkResult{
			label:  "disk space",
			ok:     false,
			detail: err.Error(),
		})
	} else {
		detail := fmt.Sprintf("%s free of %s", humanize.IBytes(du.Free), humanize.IBytes(du.Total))
		checks = append(checks, checkResult{
			label:  "disk space",
			ok:     du.Free >= lowDiskBytes,
			detail: detail,
			fix:    "free up disk space or point --output elsewhere",
		})
	}

	// 5. Displays.
	if n := len(display.System{}.Displays()); n > 0 {
		checks = append(checks, checkResult{
			label:  "displays",
			ok:     true,
			detail: fmt.Sprintf("%d detected", n),
		})
	} else {
		checks = append(checks, checkResult{
			label:  "displays",
			ok:     false,
			detail: "none detected",
			fix:    "run inside a desktop session",
		})
	}

	// 6. Daemon reachability.
	if err := client.New(ctlAddr).Health(); err != nil {
		checks = append(checks, checkResult{
			label:  "daemon",
			ok:     false,
			detail: fmt.Sprintf("not reachable at %s", ctlAddr),
			fix:    "clicktrail serve",
		})
	} else {
		checks = append(checks, checkResult{
			label:  "daemon",
			ok:     true,
			detail: "reachable at " + ctlAddr,
		})
	}

	// Print results.
	hasFailures := false
	for _, c := range checks {
		mark := "\u2713" // ✓
		if !c.ok {
			mark = "\u2717" // ✗
			hasFailures = true
		}
		line := fmt.Sprintf("%s %-15s %s", mark, c.label+":", c.detail)
		if !c.ok && c.fix != "" {
			line += fmt.Sprintf("  ->  %s", c.fix)
		}
		fmt.Println(line)
	}

	if hasFailures {
		fmt.Println()
		fmt.Println("Some checks failed. Run the suggested commands to fix.")
		return fmt.Errorf("doctor found issues")
	}

	fmt.Println()
	fmt.Println("All checks passed.")
	return nil
}
