package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hugolhafner/go-connect/logger"
)

var ErrAlreadyRunning = errors.New("runner: driver already running")

// Driver runs a Cycler on its own goroutine until stopped. It is the
// supervisor for one stream: one loop at a time, restartable, and owned by
// whoever constructed it.
type Driver struct {
	cycler Cycler
	config DriverConfig
	logger logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewDriver(c Cycler, opts ...DriverOption) *Driver {
	config := defaultDriverConfig()
	for _, opt := range opts {
		opt.applyDriver(&config)
	}

	return &Driver{
		cycler: c,
		config: config,
		logger: config.Logger.With("component", "driver"),
	}
}

// Start launches the loop. The loop ends when ctx is cancelled or Stop is
// called.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.runningLocked() {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	d.cancel = cancel
	d.done = done

	go d.loop(loopCtx, done)

	d.logger.Debug("Driver started", "poll_wait", d.config.PollWait)
	return nil
}

// Stop cancels the loop and waits for it to exit. A batch that is being
// applied runs to completion first. Stop on a stopped driver is a no-op.
func (d *Driver) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
	d.logger.Debug("Driver stopped")
}

// Reset stops the current loop, discarding it, and starts a fresh one.
func (d *Driver) Reset(ctx context.Context) error {
	d.Stop()
	return d.Start(ctx)
}

func (d *Driver) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runningLocked()
}

func (d *Driver) runningLocked() bool {
	if d.done == nil {
		return false
	}
	select {
	case <-d.done:
		return false
	default:
		return true
	}
}

func (d *Driver) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	var attempt uint
	for {
		if ctx.Err() != nil {
			return
		}

		res := d.cycler.Cycle(ctx, d.config.PollWait)
		if d.config.OnCycle != nil {
			d.config.OnCycle(res)
		}

		if res.Status != CycleError {
			attempt = 0
			continue
		}

		attempt++
		wait := d.config.CycleErrorBackoff.Next(attempt)
		d.logger.Warn("Cycle failed, backing off", "attempt", attempt, "wait", wait, "error", res.Err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
