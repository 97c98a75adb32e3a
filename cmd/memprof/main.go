package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/evanschultz/memprof-client/pkg/config"
	"github.com/evanschultz/memprof-client/pkg/logging"
	"github.com/evanschultz/memprof-client/pkg/protocol"
	"github.com/evanschultz/memprof-client/pkg/session"
)

var (
	configPath string

	v      = config.New()
	cfg    config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "memprof",
	Short: "Live call-stack memory profile viewer",
	Long: `memprof connects to an instrumented program over TCP and keeps a call tree
in step with the memory reports it sends once per cycle.

Without a subcommand it starts the interactive viewer.`,
	SilenceUsage: true,
	RunE:         runUI,
}

// setup resolves configuration once flags are parsed.
func setup(cmd *cobra.Command, args []string) error {
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return err
	}
	if err := config.ReadFile(v, configPath); err != nil {
		return err
	}
	c, err := config.Load(v)
	if err != nil {
		return err
	}
	cfg = c

	interactive := cmd == rootCmd || cmd == uiCmd
	l, err := logging.New(cfg.Log, interactive)
	if err != nil {
		return err
	}
	logger = l
	return nil
}

func init() {
	// Assigned here rather than in the literal to avoid an initialization
	// cycle: setup refers back to rootCmd.
	rootCmd.PersistentPreRunE = setup

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default ./memprof.yaml or ~/.config/memprof/memprof.yaml)")
	pf.String(config.FlagName(config.KeyAddr), protocol.DefaultAddr, "profiler address (host:port)")
	pf.Duration(config.FlagName(config.KeyInterval), session.DefaultInterval, "polling interval")
	pf.String(config.FlagName(config.KeySortKey), "total-bytes", "sort column (total-bytes, self-bytes, total-count, self-count, name)")
	pf.String(config.FlagName(config.KeySortOrder), "descending", "sort order (ascending, descending)")
	pf.String(config.FlagName(config.KeyLogLevel), "info", "log level (debug, info, warn, error)")
	pf.String(config.FlagName(config.KeyLogFormat), "console", "log format (console, json)")
	pf.String(config.FlagName(config.KeyLogFile), "", "log file; the viewer only logs when this is set")
	pf.String(config.FlagName(config.KeyMetricsAddr), "", "serve Prometheus metrics on this address")

	rootCmd.AddCommand(uiCmd, dumpCmd, replayCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
