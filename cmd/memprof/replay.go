package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/evanschultz/memprof-client/pkg/protocol"
)

var (
	replayCapture string
	replayListen  string
	replayEvery   time.Duration
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Serve a capture file to clients, one report per period",
	Long: `replay stands in for an instrumented program. Every connected client gets
the reports from the capture file in order, one per period, looping.`,
	Args: cobra.NoArgs,
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayCapture, "capture", "", "capture file, one report per blank-line separated block")
	replayCmd.Flags().StringVar(&replayListen, "listen", protocol.DefaultAddr, "listen address")
	replayCmd.Flags().DurationVar(&replayEvery, "period", time.Second, "time between reports")
	_ = replayCmd.MarkFlagRequired("capture")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(replayCapture)
	if err != nil {
		return err
	}
	snapshots, err := protocol.LoadCapture(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("load %s: %w", replayCapture, err)
	}

	srv := &protocol.Server{
		Snapshots: snapshots,
		Interval:  replayEvery,
		Logger:    logger,
	}
	logger.Info("replaying capture",
		zap.String("file", replayCapture),
		zap.Int("reports", len(snapshots)),
		zap.String("listen", replayListen))
	return srv.ListenAndServe(cmd.Context(), replayListen)
}
