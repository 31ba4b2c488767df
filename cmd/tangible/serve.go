package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/tangible/internal/api"
	"github.com/srg/tangible/internal/connection"
	"github.com/srg/tangible/internal/device"
	"github.com/srg/tangible/internal/gesture"
	"github.com/srg/tangible/internal/groutine"
	"github.com/srg/tangible/internal/metrics"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Hold the connection and expose it over HTTP",
		Long: `Keep the paired peripheral connected and serve a small HTTP API:

  GET  /health            liveness
  GET  /v1/availability   availability check
  GET  /v1/state          connection state
  GET  /v1/journal        recent send outcomes
  GET  /v1/events         state and interaction stream (SSE)
  POST /v1/interactions   send an interaction code
  POST /v1/gestures       classify a gesture, send it with "send": true
  GET  /metrics           Prometheus metrics

The connection is retried until the peripheral shows up.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			cmd.SilenceUsage = true

			if addr == "" {
				addr = e.cfg.Serve.Address
			}

			ctx, cancel := signalContext(cmd)
			defer cancel()
			if err := e.requirePermission(ctx); err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := e.manager(connection.WithMetrics(metrics.New(reg)))

			dispatcher := gesture.NewDispatcher(e.logger)
			defer dispatcher.Close()

			connected := groutine.Go(ctx, "ble-connect", func(ctx context.Context) {
				connectLoop(ctx, m, e.logger)
			})

			handler := newServeHandler(m, dispatcher, reg, e.logger)
			serveErr := api.Serve(ctx, addr, handler, e.logger)

			cancel()
			<-connected
			if err := m.Disconnect(); err != nil {
				e.logger.WithError(err).Warn("Disconnect failed")
			}
			return serveErr
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, 127.0.0.1:8080)")
	return cmd
}

// newServeHandler wires the HTTP API. Gestures reach the peripheral only
// through the explicit send path of the API; the dispatcher feeds /v1/events.
func newServeHandler(m api.Manager, d *gesture.Dispatcher, reg *prometheus.Registry, logger *logrus.Logger) http.Handler {
	return api.NewHandler(m,
		api.WithLogger(logger),
		api.WithDispatcher(d),
		api.WithGatherer(reg),
	)
}

// connectLoop keeps trying to connect until a session is established or ctx
// ends. Once connected, the manager's own supervisor handles drops.
func connectLoop(ctx context.Context, m *connection.Manager, logger *logrus.Logger) {
	backoff := m.Options().ReconnectBackoff
	for {
		err := m.Connect(ctx)
		if err == nil || errors.Is(err, device.ErrAlreadyConnected) {
			return
		}
		if ctx.Err() != nil {
			return
		}
		logger.WithError(err).WithField("retry_in", backoff).Warn("Peripheral not reachable yet")
		if !sleepCtx(ctx, backoff) {
			return
		}
		backoff = min(backoff*2, m.Options().MaxReconnectBackoff)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
