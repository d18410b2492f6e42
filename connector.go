// Package connect runs one offset-tracked stream from a Kafka partition into
// a transactional sink.
package connect

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hugolhafner/go-connect/checkpoint"
	"github.com/hugolhafner/go-connect/kafka"
	"github.com/hugolhafner/go-connect/logger"
	"github.com/hugolhafner/go-connect/processor"
	"github.com/hugolhafner/go-connect/reconcile"
	"github.com/hugolhafner/go-connect/runner"
)

const Version = "v0.1.0" // x-release-please-version

var (
	ErrAlreadyRunning = errors.New("connector is already running")
	ErrClosed         = errors.New("connector is closed")
	ErrNotRunning     = errors.New("connector is not running")
	ErrTopicMismatch  = errors.New("checkpoint belongs to another topic")
)

// Connector owns the lifecycle of one stream: it assigns the partition,
// reconciles the checkpoint with the broker, catches up and then hands the
// poll loop to a background driver.
type Connector struct {
	tp       kafka.TopicPartition
	consumer kafka.Consumer
	state    *checkpoint.DataState
	config   Config
	logger   logger.Logger

	receiver *runner.Receiver
	driver   *runner.Driver

	mu        sync.Mutex
	running   bool
	decision  reconcile.Decision
	closeOnce sync.Once
	closedCh  chan struct{}
}

func NewConnector(
	consumer kafka.Consumer,
	tp kafka.TopicPartition,
	state *checkpoint.DataState,
	p processor.Processor,
	opts ...ConfigOption,
) (*Connector, error) {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return NewConnectorWithConfig(consumer, tp, state, p, config)
}

func NewConnectorWithConfig(
	consumer kafka.Consumer,
	tp kafka.TopicPartition,
	state *checkpoint.DataState,
	p processor.Processor,
	config Config,
) (*Connector, error) {
	if tp.Topic == "" {
		return nil, fmt.Errorf("%w: empty topic", kafka.ErrUnknownTopic)
	}
	if state.Topic() != tp.Topic {
		return nil, fmt.Errorf("%w: %q != %q", ErrTopicMismatch, state.Topic(), tp.Topic)
	}
	if config.Logger == nil {
		config.Logger = logger.NewNoopLogger()
	}

	l := config.Logger.With("topic", tp.Topic, "partition", tp.Partition)

	batchOpts := []runner.BatchOption{
		runner.WithLogger(config.Logger),
		runner.WithTelemetry(config.Telemetry),
		runner.WithTransaction(config.Transaction),
	}
	if config.ErrorHandler != nil {
		batchOpts = append(batchOpts, runner.WithErrorHandler(config.ErrorHandler))
	}
	batch := runner.NewBatchProcessor(p, batchOpts...)

	receiver := runner.NewReceiver(
		consumer, tp, state, batch,
		runner.WithLogger(config.Logger),
		runner.WithTelemetry(config.Telemetry),
		runner.WithPollWaitMore(config.PollWaitMore),
		runner.WithMaxRoundsPerCycle(config.MaxRoundsPerCycle),
	)

	driver := runner.NewDriver(
		receiver,
		runner.WithLogger(l),
		runner.WithTelemetry(config.Telemetry),
		runner.WithPollWait(config.PollWait),
		runner.WithCycleErrorBackoff(config.CycleErrorBackoff),
		runner.WithCycleObserver(config.OnCycle),
	)

	return &Connector{
		tp:       tp,
		consumer: consumer,
		state:    state,
		config:   config,
		logger:   l,
		receiver: receiver,
		driver:   driver,
		closedCh: make(chan struct{}),
	}, nil
}

// Start brings the stream up and returns once the background driver is
// running. Only a checkpoint or assignment failure is fatal; an unreachable
// broker or a failed catch-up cycle is logged and left to the driver.
func (c *Connector) Start(ctx context.Context) error {
	if err := c.startRunning(); err != nil {
		return err
	}

	if err := c.start(ctx); err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Connector) start(ctx context.Context) error {
	if err := c.consumer.Assign(c.tp); err != nil {
		return fmt.Errorf("assign %s/%d: %w", c.tp.Topic, c.tp.Partition, err)
	}

	if err := reconcile.CheckConnection(ctx, c.consumer, c.tp.Topic, c.config.ConnectionTimeout, c.logger); err != nil {
		c.logger.Warn("Continuing without broker connectivity, polling will retry")
	}

	policy := reconcile.PolicyFor(c.config.ReplayTopic, c.config.SyncTopic)
	decision, err := reconcile.Reconcile(ctx, c.consumer, c.tp, c.state, policy, c.logger)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	c.mu.Lock()
	c.decision = decision
	c.mu.Unlock()

	res := c.receiver.Cycle(ctx, c.config.CatchUpWait)
	if res.Status == runner.CycleError {
		c.logger.Warn("Catch-up cycle failed, the driver will retry", "error", res.Err)
	} else {
		c.logger.Debug("Catch-up cycle finished", "status", res.Status.String(), "records", res.Records)
	}

	if err := c.driver.Start(ctx); err != nil {
		return fmt.Errorf("start driver: %w", err)
	}

	c.logger.Info(
		"Connector started",
		"version", Version,
		"target", c.config.Target,
		"policy", decision.Policy.String(),
		"checkpoint", res.EndOffset,
		"poll_wait", c.config.PollWait,
	)
	return nil
}

// Stop halts the background driver after any in-flight batch. The connector
// can be started again.
func (c *Connector) Stop() {
	c.driver.Stop()

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// Reset replaces the background driver's loop with a fresh one.
func (c *Connector) Reset(ctx context.Context) error {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()

	if !running {
		return ErrNotRunning
	}
	return c.driver.Reset(ctx)
}

// Close stops the connector for good and closes the consumer.
func (c *Connector) Close() {
	c.closeOnce.Do(
		func() {
			c.Stop()
			c.consumer.Close()
			close(c.closedCh)
			c.logger.Info("Connector closed")
		},
	)
}

func (c *Connector) Running() bool {
	return c.driver.Running()
}

// Decision is the outcome of the last startup reconciliation.
func (c *Connector) Decision() reconcile.Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.decision
}

func (c *Connector) TopicPartition() kafka.TopicPartition {
	return c.tp
}

func (c *Connector) startRunning() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.closedCh:
		return ErrClosed
	default:
	}

	if c.running {
		return ErrAlreadyRunning
	}

	c.running = true
	return nil
}
