package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clicktrail/clicktrail/internal/config"
	"github.com/clicktrail/clicktrail/internal/logging"
	"github.com/clicktrail/clicktrail/internal/nativehost"
	"github.com/clicktrail/clicktrail/internal/store"
	"github.com/clicktrail/clicktrail/internal/tracker"
)

var hostConfig string

func init() {
	rootCmd.AddCommand(hostCmd)
	hostCmd.Flags().StringVar(&hostConfig, "config", "", "Path to config YAML (default ~/.clicktrail/config.yaml)")
}

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Run as a Chrome native messaging host",
	Long: "Speaks the Chrome native messaging protocol on stdin/stdout: the browser\n" +
		"extension sends length-prefixed JSON frames, each ingested as an external\n" +
		"click event. Stdout carries protocol frames only, so all diagnostics go\n" +
		"to the log file. Exits when the browser closes the pipe.",
	RunE: runHost,
}

func runHost(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(hostConfig)
	if err != nil {
		return err
	}

	logger, err := logging.NewQuiet(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	st, err := store.Open(cfg.StorePath())
	if err != nil {
		logger.Warn("activity index disabled", zap.Error(err))
	} else {
		defer st.Close()
	}

	// The host never starts the OS listener or the capture loop; it only
	// journals ingested events, capturing a frame per event on demand.
	tr, err := tracker.New(tracker.Options{Config: cfg, Store: st, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to create tracker: %w", err)
	}
	defer tr.Close()

	return nativehost.New(os.Stdin, os.Stdout, tr, logger).Run()
}
