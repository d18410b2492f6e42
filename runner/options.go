package runner

import (
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-connect/errorhandler"
	"github.com/hugolhafner/go-connect/logger"
	"github.com/hugolhafner/go-connect/otel"
	"github.com/hugolhafner/go-connect/sink"
)

type BatchOption interface {
	applyBatch(*BatchConfig)
}

type ReceiverOption interface {
	applyReceiver(*ReceiverConfig)
}

type DriverOption interface {
	applyDriver(*DriverConfig)
}

type loggerOption struct {
	logger logger.Logger
}

func (o loggerOption) applyBatch(c *BatchConfig) {
	c.Logger = o.logger
}

func (o loggerOption) applyReceiver(c *ReceiverConfig) {
	c.Logger = o.logger
}

func (o loggerOption) applyDriver(c *DriverConfig) {
	c.Logger = o.logger
}

func WithLogger(l logger.Logger) loggerOption {
	return loggerOption{logger: l}
}

type telemetryOption struct {
	telemetry *otel.Telemetry
}

func (o telemetryOption) applyBatch(c *BatchConfig) {
	if o.telemetry != nil {
		c.Telemetry = o.telemetry
	}
}

func (o telemetryOption) applyReceiver(c *ReceiverConfig) {
	if o.telemetry != nil {
		c.Telemetry = o.telemetry
	}
}

func (o telemetryOption) applyDriver(c *DriverConfig) {
	if o.telemetry != nil {
		c.Telemetry = o.telemetry
	}
}

func WithTelemetry(t *otel.Telemetry) telemetryOption {
	return telemetryOption{telemetry: t}
}

type errorHandlerOption struct {
	handler errorhandler.Handler
}

func (o errorHandlerOption) applyBatch(c *BatchConfig) {
	c.ErrorHandler = o.handler
}

// WithErrorHandler sets the per-record error handler for a batch processor
func WithErrorHandler(h errorhandler.Handler) errorHandlerOption {
	return errorHandlerOption{handler: h}
}

type transactionOption struct {
	tx sink.Transactional
}

func (o transactionOption) applyBatch(c *BatchConfig) {
	c.Transaction = o.tx
}

// WithTransaction wraps every batch in tx
func WithTransaction(tx sink.Transactional) transactionOption {
	return transactionOption{tx: tx}
}

type pollWaitMoreOption time.Duration

func (o pollWaitMoreOption) applyReceiver(c *ReceiverConfig) {
	if o > 0 {
		c.PollWaitMore = time.Duration(o)
	}
}

// WithPollWaitMore sets the shorter wait used after a round returned records
func WithPollWaitMore(d time.Duration) pollWaitMoreOption {
	return pollWaitMoreOption(d)
}

type maxRoundsOption int

func (o maxRoundsOption) applyReceiver(c *ReceiverConfig) {
	if o > 0 {
		c.MaxRoundsPerCycle = int(o)
	}
}

// WithMaxRoundsPerCycle bounds the polls made by one receiver cycle
func WithMaxRoundsPerCycle(n int) maxRoundsOption {
	return maxRoundsOption(n)
}

type pollWaitOption time.Duration

func (o pollWaitOption) applyDriver(c *DriverConfig) {
	if o > 0 {
		c.PollWait = time.Duration(o)
	}
}

// WithPollWait sets the wait each driver cycle starts with
func WithPollWait(d time.Duration) pollWaitOption {
	return pollWaitOption(d)
}

type cycleErrorBackoffOption struct {
	b backoff.Backoff
}

func (o cycleErrorBackoffOption) applyDriver(c *DriverConfig) {
	if o.b != nil {
		c.CycleErrorBackoff = o.b
	}
}

// WithCycleErrorBackoff sets the pause after a failed cycle
func WithCycleErrorBackoff(b backoff.Backoff) cycleErrorBackoffOption {
	return cycleErrorBackoffOption{b: b}
}

type onCycleOption func(CycleResult)

func (o onCycleOption) applyDriver(c *DriverConfig) {
	c.OnCycle = o
}

// WithCycleObserver registers fn to be called after every driver cycle
func WithCycleObserver(fn func(CycleResult)) onCycleOption {
	return onCycleOption(fn)
}
