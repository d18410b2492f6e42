package connect

import (
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-connect/errorhandler"
	"github.com/hugolhafner/go-connect/logger"
	"github.com/hugolhafner/go-connect/otel"
	"github.com/hugolhafner/go-connect/reconcile"
	"github.com/hugolhafner/go-connect/runner"
	"github.com/hugolhafner/go-connect/sink"
)

// CatchUpWait is the poll wait of the single cycle run before the driver
// starts.
const CatchUpWait = 500 * time.Millisecond

type Config struct {
	Logger    logger.Logger
	Telemetry *otel.Telemetry

	// ReplayTopic wins over SyncTopic.
	ReplayTopic bool
	SyncTopic   bool

	ErrorHandler errorhandler.Handler
	Transaction  sink.Transactional

	// Target names the sink for log lines only.
	Target string

	ConnectionTimeout time.Duration
	CatchUpWait       time.Duration
	PollWait          time.Duration
	PollWaitMore      time.Duration
	MaxRoundsPerCycle int
	CycleErrorBackoff backoff.Backoff
	OnCycle           func(runner.CycleResult)
}

type ConfigOption func(*Config)

func WithLogger(logger logger.Logger) ConfigOption {
	return func(c *Config) {
		c.Logger = logger
	}
}

func WithTelemetry(t *otel.Telemetry) ConfigOption {
	return func(c *Config) {
		if t != nil {
			c.Telemetry = t
		}
	}
}

func WithReplayTopic(replay bool) ConfigOption {
	return func(c *Config) {
		c.ReplayTopic = replay
	}
}

func WithSyncTopic(sync bool) ConfigOption {
	return func(c *Config) {
		c.SyncTopic = sync
	}
}

func WithErrorHandler(h errorhandler.Handler) ConfigOption {
	return func(c *Config) {
		c.ErrorHandler = h
	}
}

func WithTransaction(tx sink.Transactional) ConfigOption {
	return func(c *Config) {
		c.Transaction = tx
	}
}

func WithTarget(target string) ConfigOption {
	return func(c *Config) {
		c.Target = target
	}
}

func WithConnectionTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		if d > 0 {
			c.ConnectionTimeout = d
		}
	}
}

func WithCatchUpWait(d time.Duration) ConfigOption {
	return func(c *Config) {
		if d > 0 {
			c.CatchUpWait = d
		}
	}
}

func WithPollWait(d time.Duration) ConfigOption {
	return func(c *Config) {
		if d > 0 {
			c.PollWait = d
		}
	}
}

func WithPollWaitMore(d time.Duration) ConfigOption {
	return func(c *Config) {
		if d > 0 {
			c.PollWaitMore = d
		}
	}
}

func WithMaxRoundsPerCycle(n int) ConfigOption {
	return func(c *Config) {
		if n > 0 {
			c.MaxRoundsPerCycle = n
		}
	}
}

func WithCycleErrorBackoff(b backoff.Backoff) ConfigOption {
	return func(c *Config) {
		if b != nil {
			c.CycleErrorBackoff = b
		}
	}
}

// WithCycleObserver is called after every background cycle.
func WithCycleObserver(fn func(runner.CycleResult)) ConfigOption {
	return func(c *Config) {
		c.OnCycle = fn
	}
}

func defaultConfig() Config {
	return Config{
		Logger:            logger.NewNoopLogger(),
		Telemetry:         otel.Noop(),
		ConnectionTimeout: reconcile.DefaultConnectionTimeout,
		CatchUpWait:       CatchUpWait,
		PollWait:          runner.DefaultPollWait,
		PollWaitMore:      runner.DefaultPollWaitMore,
		MaxRoundsPerCycle: runner.DefaultMaxRoundsPerCycle,
		CycleErrorBackoff: backoff.NewFixed(time.Second),
	}
}
