package app

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/hugolhafner/dskit/backoff"
	connect "github.com/hugolhafner/go-connect"
	"github.com/hugolhafner/go-connect/checkpoint"
	"github.com/hugolhafner/go-connect/config"
	"github.com/hugolhafner/go-connect/dispatch"
	"github.com/hugolhafner/go-connect/errorhandler"
	pebblestore "github.com/hugolhafner/go-connect/internal/storage/pebble"
	"github.com/hugolhafner/go-connect/kafka"
	"github.com/hugolhafner/go-connect/logger"
	"github.com/hugolhafner/go-connect/otel"
	"github.com/hugolhafner/go-connect/processor"
	"github.com/hugolhafner/go-connect/processor/builtins"
	"github.com/hugolhafner/go-connect/sink"
)

// Runtime is a wired connector and the resources it owns.
type Runtime struct {
	Connector *connect.Connector
	// Handler serves the local ingest path, when configured, and /healthz.
	Handler http.Handler
	// Sink is nil unless records are dispatched locally.
	Sink  *sink.PebbleSink
	State *checkpoint.DataState

	db     *pebblestore.DB
	logger logger.Logger
}

// StoreDir is where the pebble database lives under the data directory.
func StoreDir(cfg config.Connector) string {
	return filepath.Join(cfg.DataDir, "store")
}

// Build wires the connector described by cfg around consumer. cfg must be
// normalized and valid.
func Build(cfg config.Connector, consumer kafka.Consumer, l logger.Logger, tel *otel.Telemetry) (*Runtime, error) {
	if l == nil {
		l = logger.NewNoopLogger()
	}
	if tel == nil {
		tel = otel.Noop()
	}

	rt := &Runtime{logger: l.With("connector", cfg.Name)}

	if cfg.LocalDispatchPath != "" || cfg.StateStore == config.StorePebble {
		db, err := pebblestore.Open(pebblestore.Options{DataDir: StoreDir(cfg)})
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		rt.db = db
	}

	store, err := openStore(cfg, rt.db)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	rt.State, err = checkpoint.OpenDataState(cfg.Topic, store)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	mux := http.NewServeMux()
	opts := []connect.ConfigOption{
		connect.WithLogger(rt.logger),
		connect.WithTelemetry(tel),
		connect.WithReplayTopic(cfg.ReplayTopic),
		connect.WithSyncTopic(cfg.SyncTopic),
		connect.WithTarget(cfg.Target()),
		connect.WithPollWait(cfg.PollWait),
		connect.WithPollWaitMore(cfg.PollWaitMore),
		connect.WithMaxRoundsPerCycle(cfg.MaxRoundsPerCycle),
		connect.WithErrorHandler(errorHandler(cfg.Errors, rt.logger)),
	}

	if cfg.LocalDispatchPath != "" {
		rt.Sink = sink.NewPebbleSink(rt.db)
		mux.Handle(cfg.LocalDispatchPath, sink.NewIngestHandler(rt.Sink, rt.logger))
		opts = append(opts, connect.WithTransaction(rt.Sink))
	}

	d, err := dispatch.Select(cfg.LocalDispatchPath, cfg.RemoteEndpoint, mux, nil)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	var proc processor.Processor = dispatch.NewProcessor(
		d, dispatch.WithPropagator(tel.Propagator), dispatch.WithLogger(rt.logger),
	)
	if len(cfg.ContentTypes) > 0 {
		proc = builtins.NewFilterProcessor(builtins.ContentTypeIs(cfg.ContentTypes...), proc)
	}

	rt.Connector, err = connect.NewConnector(consumer, cfg.TopicPartition(), rt.State, proc, opts...)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	mux.Handle("/healthz", healthHandler(rt.Connector))
	rt.Handler = mux

	return rt, nil
}

// Close stops the connector and releases the store. It is safe to call more
// than once.
func (rt *Runtime) Close() error {
	if rt.Connector != nil {
		rt.Connector.Close()
	}
	if rt.db == nil {
		return nil
	}
	db := rt.db
	rt.db = nil
	return db.Close()
}

// OpenState opens the checkpoint cfg points at, for inspection outside a
// running connector. The returned func releases it.
func OpenState(cfg config.Connector) (*checkpoint.DataState, func() error, error) {
	var db *pebblestore.DB
	closeFn := func() error { return nil }

	if cfg.StateStore == config.StorePebble {
		var err error
		db, err = pebblestore.Open(pebblestore.Options{DataDir: StoreDir(cfg)})
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		closeFn = db.Close
	}

	store, err := openStore(cfg, db)
	if err != nil {
		return nil, nil, errors.Join(err, closeFn())
	}

	ds, err := checkpoint.OpenDataState(cfg.Topic, store)
	if err != nil {
		return nil, nil, errors.Join(fmt.Errorf("load checkpoint: %w", err), closeFn())
	}
	return ds, closeFn, nil
}

func openStore(cfg config.Connector, db *pebblestore.DB) (checkpoint.Store, error) {
	switch cfg.StateStore {
	case config.StoreFile:
		s, err := checkpoint.NewFileStore(cfg.StateFile)
		if err != nil {
			return nil, fmt.Errorf("checkpoint file: %w", err)
		}
		return s, nil
	case config.StorePebble:
		return checkpoint.NewPebbleStore(db, cfg.Topic), nil
	case config.StoreMemory:
		return checkpoint.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w %q", config.ErrUnknownStore, cfg.StateStore)
	}
}

func errorHandler(cfg config.Errors, l logger.Logger) errorhandler.Handler {
	var h errorhandler.Handler
	switch cfg.Policy {
	case config.ErrorFail:
		h = errorhandler.LogAndFail(l)
	default:
		h = errorhandler.LogAndContinue(l)
	}

	if cfg.MaxAttempts > 1 {
		h = errorhandler.WithMaxAttempts(cfg.MaxAttempts, backoff.NewFixed(cfg.RetryBackoff), h)
	}
	return h
}
