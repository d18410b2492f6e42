package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	connect "github.com/hugolhafner/go-connect"
	"github.com/hugolhafner/go-connect/config"
	"github.com/hugolhafner/go-connect/kafka"
	"github.com/hugolhafner/go-connect/logger"
	"github.com/hugolhafner/go-connect/otel"
	globalotel "go.opentelemetry.io/otel"
)

const shutdownTimeout = 10 * time.Second

// Run starts the connector described by cfg and its HTTP server, and blocks
// until ctx is cancelled or the server fails.
func Run(ctx context.Context, cfg config.Connector, l logger.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	kopts, err := cfg.KgoOptions(l)
	if err != nil {
		return err
	}

	client, err := kafka.NewKgoClient(kopts...)
	if err != nil {
		return err
	}

	tel, err := otel.NewTelemetry(
		globalotel.GetTracerProvider(), globalotel.GetMeterProvider(), globalotel.GetTextMapPropagator(),
	)
	if err != nil {
		client.Close()
		return fmt.Errorf("telemetry: %w", err)
	}

	rt, err := Build(cfg, client, l, tel)
	if err != nil {
		client.Close()
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			l.Error("Failed to close store", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           rt.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		l.Info("HTTP server listening", "address", cfg.Server.Address, "local_path", cfg.LocalDispatchPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	if err := rt.Connector.Start(ctx); err != nil {
		shutdown(srv, l)
		return fmt.Errorf("start connector: %w", err)
	}

	select {
	case <-ctx.Done():
		l.Info("Shutting down")
	case err, ok := <-srvErr:
		if ok {
			rt.Connector.Stop()
			return fmt.Errorf("http server: %w", err)
		}
	}

	rt.Connector.Stop()
	shutdown(srv, l)
	return nil
}

func shutdown(srv *http.Server, l logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		l.Warn("HTTP server shutdown", "error", err)
	}
}

type health struct {
	Status    string `json:"status"`
	Topic     string `json:"topic"`
	Partition int32  `json:"partition"`
	Policy    string `json:"policy"`
}

func healthHandler(c *connect.Connector) http.Handler {
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			tp := c.TopicPartition()
			h := health{
				Status:    "ok",
				Topic:     tp.Topic,
				Partition: tp.Partition,
				Policy:    c.Decision().Policy.String(),
			}

			status := http.StatusOK
			if !c.Running() {
				h.Status = "stopped"
				status = http.StatusServiceUnavailable
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(h)
		},
	)
}
