package runner

import (
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-connect/errorhandler"
	"github.com/hugolhafner/go-connect/logger"
	"github.com/hugolhafner/go-connect/otel"
	"github.com/hugolhafner/go-connect/sink"
)

const (
	DefaultPollWait          = 5 * time.Second
	DefaultPollWaitMore      = 500 * time.Millisecond
	DefaultMaxRoundsPerCycle = 20
)

// BaseConfig is shared by the batch processor, receiver and driver
type BaseConfig struct {
	Logger    logger.Logger
	Telemetry *otel.Telemetry
}

func defaultBaseConfig() BaseConfig {
	return BaseConfig{
		Logger:    logger.NewNoopLogger(),
		Telemetry: otel.Noop(),
	}
}

type BatchConfig struct {
	BaseConfig
	// ErrorHandler decides what happens to a record that failed. Defaults to
	// errorhandler.Default with the configured logger.
	ErrorHandler errorhandler.Handler
	// Transaction wraps every batch when set. Nil means the processor manages
	// its own atomicity.
	Transaction sink.Transactional
}

func defaultBatchConfig() BatchConfig {
	return BatchConfig{BaseConfig: defaultBaseConfig()}
}

type ReceiverConfig struct {
	BaseConfig
	// PollWaitMore replaces the wait for the rounds after one that returned
	// records.
	PollWaitMore      time.Duration
	MaxRoundsPerCycle int
}

func defaultReceiverConfig() ReceiverConfig {
	return ReceiverConfig{
		BaseConfig:        defaultBaseConfig(),
		PollWaitMore:      DefaultPollWaitMore,
		MaxRoundsPerCycle: DefaultMaxRoundsPerCycle,
	}
}

type DriverConfig struct {
	BaseConfig
	// PollWait is the wait handed to every cycle.
	PollWait          time.Duration
	CycleErrorBackoff backoff.Backoff
	// OnCycle, when set, is called after every cycle on the driver goroutine.
	OnCycle func(CycleResult)
}

func defaultDriverConfig() DriverConfig {
	return DriverConfig{
		BaseConfig:        defaultBaseConfig(),
		PollWait:          DefaultPollWait,
		CycleErrorBackoff: backoff.NewFixed(time.Second),
	}
}
