package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	qhttp "github.com/fyrsmithlabs/quorum/internal/http"
	"github.com/fyrsmithlabs/quorum/internal/monitor"
)

var (
	serveHost string
	servePort int

	watchServer   string
	watchInterval time.Duration
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (default server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default server.port)")

	watchCmd.Flags().StringVar(&watchServer, "server", "http://127.0.0.1:9191", "status server URL")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 2*time.Second, "refresh interval")

	rootCmd.AddCommand(serveCmd, watchCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only pipeline status API",
	Long: `Serve pipeline state, artifacts and Prometheus metrics over HTTP.

Endpoints:
  GET /health
  GET /metrics
  GET /api/v1/status
  GET /api/v1/state
  GET /api/v1/artifacts[?type=]
  GET /api/v1/artifacts/:type/:id
  GET /api/v1/verify`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live terminal dashboard for a running pipeline",
	Long: `Poll a 'quorum serve' instance and render the pipeline phase, gate
retries and artifacts as they change.

Keyboard shortcuts:
  q, Ctrl+C  Quit
  r          Refresh now`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchInterval <= 0 {
			return fmt.Errorf("interval must be positive, got %s", watchInterval)
		}
		p := tea.NewProgram(monitor.NewModel(watchServer, watchInterval), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		return nil
	},
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	serverCfg := a.cfg.Server
	if serveHost != "" {
		serverCfg.Host = serveHost
	}
	if servePort != 0 {
		serverCfg.Port = servePort
	}

	srv, err := qhttp.NewServer(a.states, a.store, a.logger.Underlying(), &serverCfg)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	a.logger.Info(ctx, "status server listening", zap.String("addr", srv.Addr()))
	fmt.Fprintf(cmd.OutOrStdout(), "%s serving pipeline status on http://%s\n", okStyle.Render("✓"), srv.Addr())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info(context.Background(), "shutting down status server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
