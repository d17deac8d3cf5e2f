package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	qhttp "laborcond/http"
)

var (
	servePort    int
	serveMetrics bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the prediction forms, the JSON API and the form websocket",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (overrides http.port)")
	serveCmd.Flags().BoolVar(&serveMetrics, "metrics", true, "expose Prometheus metrics on /metrics")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	serverConfig := qhttp.ServerConfig{
		Port:           a.cfg.HTTP.Port,
		Timeout:        a.cfg.HTTP.Timeout,
		MaxConnections: a.cfg.HTTP.MaxConnections,
		AllowedOrigins: a.cfg.HTTP.AllowedOrigins,
	}
	if servePort != 0 {
		serverConfig.Port = servePort
	}

	deps := qhttp.Dependencies{
		Registry: a.registry,
		Benefits: a.benefits,
		Wages:    a.wages,
		Logger:   a.logger,
		Assets: qhttp.Assets{
			Dir:             a.cfg.Assets.Dir,
			SupportDocument: a.cfg.Assets.SupportDocument,
		},
	}
	if serveMetrics {
		deps.Metrics = a.metrics
	}

	server, err := qhttp.NewServer(serverConfig, deps)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	a.logger.Info("shutting down", zap.String("reason", "signal received"))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		a.logger.Error("server forced to shutdown", zap.Error(err))
		return err
	}
	return <-errCh
}
