package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/evanschultz/memprof-client/pkg/session"
	"github.com/evanschultz/memprof-client/pkg/tui"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Interactive call tree (default)",
	Args:  cobra.NoArgs,
	RunE:  runUI,
}

func runUI(cmd *cobra.Command, args []string) error {
	g, ctx := errgroup.WithContext(cmd.Context())
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var p *tea.Program
	loop := session.NewLoop(session.Options{
		Interval: cfg.Interval,
		Logger:   logger,
		Metrics:  newMetrics(),
		Hooks:    tui.Hooks(func(msg tea.Msg) { p.Send(msg) }),
	})
	p = tea.NewProgram(
		tui.NewModel(loop, cfg.Addr, cfg.Sort),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	g.Go(func() error {
		return loop.Run(ctx)
	})
	g.Go(func() error {
		defer cancel()
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("error running viewer: %w", err)
		}
		return nil
	})
	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			return serveMetrics(ctx, cfg.Metrics.Addr)
		})
	}
	return g.Wait()
}

func newMetrics() *session.Metrics {
	if cfg.Metrics.Addr == "" {
		return nil
	}
	return session.NewMetrics(prometheus.DefaultRegisterer)
}

// serveMetrics exposes /metrics until ctx is done.
func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
