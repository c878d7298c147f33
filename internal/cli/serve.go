package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clicktrail/clicktrail/internal/config"
	"github.com/clicktrail/clicktrail/internal/logging"
	"github.com/clicktrail/clicktrail/internal/server"
	"github.com/clicktrail/clicktrail/internal/store"
	"github.com/clicktrail/clicktrail/internal/tracker"
)

var (
	serveConfig    string
	serveAddr      string
	serveHz        float64
	serveOutput    string
	serveAutostart bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveConfig, "config", "", "Path to config YAML (default ~/.clicktrail/config.yaml)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address override")
	serveCmd.Flags().Float64Var(&serveHz, "hz", 0, "Capture frequency override in Hz")
	serveCmd.Flags().StringVar(&serveOutput, "output", "", "Output root override")
	serveCmd.Flags().BoolVar(&serveAutostart, "autostart", false, "Begin recording immediately instead of waiting for /start")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the recorder daemon",
	Long: "Runs the clicktrail daemon: the OS click listener, the periodic screen\n" +
		"capture loop and the HTTP control surface the browser agent posts to.\n" +
		"Recording stays idle until /start unless --autostart is given.\n" +
		"Supports hot-reload of the config file.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfig)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr = serveAddr
	}
	if cmd.Flags().Changed("hz") {
		cfg.Capture.Hz = serveHz
	}
	if cmd.Flags().Changed("output") {
		cfg.Capture.OutputRoot = serveOutput
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	st, err := store.Open(cfg.StorePath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: activity index disabled: %v\n", err)
		logger.Warn("activity index disabled", zap.Error(err))
	} else {
		defer st.Close()
	}

	tr, err := tracker.New(tracker.Options{Config: cfg, Store: st, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to create tracker: %w", err)
	}
	defer tr.Close()

	srv := server.New(server.Config{Addr: cfg.Server.Addr}, tr, st, logger)

	watchPath := serveConfig
	if watchPath == "" {
		watchPath = config.DefaultPath()
	}
	reloader, err := server.NewReloader(tr, watchPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
	}

	if serveAutostart {
		tr.Start()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	if reloader != nil {
		g.Go(func() error { return reloader.Run(gctx) })
	}
	g.Go(func() error {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nShutting down...")
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	fmt.Fprintf(os.Stderr, "clicktrail daemon listening on %s\n", cfg.Server.Addr)
	fmt.Fprintf(os.Stderr, "Output root: %s\n", cfg.Capture.OutputRoot)
	if serveAutostart {
		fmt.Fprintln(os.Stderr, "Recording started.")
	}
	fmt.Fprintln(os.Stderr)

	return g.Wait()
}
