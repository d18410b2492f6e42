package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hugolhafner/go-connect/checkpoint"
	"github.com/hugolhafner/go-connect/kafka"
	"github.com/hugolhafner/go-connect/logger"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// CycleStatus is how a receiver cycle ended.
type CycleStatus int

const (
	// CycleIdle means no poll returned records.
	CycleIdle CycleStatus = iota
	// CycleProcessed means at least one batch was handled and checkpointed.
	CycleProcessed
	// CycleError means the cycle stopped on a failure. Batches checkpointed
	// before the failure stay checkpointed.
	CycleError
)

func (s CycleStatus) String() string {
	switch s {
	case CycleIdle:
		return "idle"
	case CycleProcessed:
		return "processed"
	case CycleError:
		return "error"
	default:
		return "unknown"
	}
}

type CycleResult struct {
	Status  CycleStatus
	Batches int
	// Records counts records applied, not records received.
	Records     int
	StartOffset int64
	EndOffset   int64
	Err         error
}

// Cycler runs one receiver cycle.
type Cycler interface {
	Cycle(ctx context.Context, wait time.Duration) CycleResult
}

var _ Cycler = (*Receiver)(nil)

// Receiver owns the poll loop for one partition and is the only writer of its
// checkpoint while running.
type Receiver struct {
	consumer kafka.Consumer
	tp       kafka.TopicPartition
	state    *checkpoint.DataState
	batch    *BatchProcessor
	config   ReceiverConfig
	logger   logger.Logger
}

func NewReceiver(
	consumer kafka.Consumer,
	tp kafka.TopicPartition,
	state *checkpoint.DataState,
	batch *BatchProcessor,
	opts ...ReceiverOption,
) *Receiver {
	config := defaultReceiverConfig()
	for _, opt := range opts {
		opt.applyReceiver(&config)
	}

	return &Receiver{
		consumer: consumer,
		tp:       tp,
		state:    state,
		batch:    batch,
		config:   config,
		logger:   config.Logger.With("component", "receiver", "topic", tp.Topic, "partition", tp.Partition),
	}
}

// Cycle polls up to MaxRoundsPerCycle times, stopping at the first empty
// poll. Every non-empty poll is applied as a batch and its offset written to
// the checkpoint before the next poll. Failures never escape: they end the
// cycle with CycleError.
func (r *Receiver) Cycle(ctx context.Context, wait time.Duration) (res CycleResult) {
	var inflight []kafka.ConsumerRecord
	defer func() {
		if p := recover(); p != nil {
			if len(inflight) > 0 {
				r.rewind(inflight[0].Offset)
			}
			res = r.fail(ctx, res, &PanicError{Value: p, Stack: debug.Stack()})
		}
	}()

	last, err := r.state.LastOffset()
	if err != nil {
		return r.fail(ctx, CycleResult{StartOffset: checkpoint.NoOffset, EndOffset: checkpoint.NoOffset},
			fmt.Errorf("read checkpoint: %w", err))
	}

	res = CycleResult{Status: CycleIdle, StartOffset: last, EndOffset: last}
	tel := r.config.Telemetry
	round := 0

	for ; round < r.config.MaxRoundsPerCycle; round++ {
		if ctx.Err() != nil {
			break
		}

		r.logger.Debug("Polling", "wait", wait, "round", round)
		pollStart := time.Now()
		records, err := r.consumer.Poll(ctx, wait)
		tel.PollDuration.Record(
			ctx, time.Since(pollStart).Seconds(), metric.WithAttributes(semconv.MessagingDestinationName(r.tp.Topic)),
		)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return r.fail(ctx, res, fmt.Errorf("poll: %w", err))
		}

		if len(records) == 0 {
			break
		}

		inflight = records
		newOffset, outcome, err := r.batch.ProcessBatch(ctx, r.tp.Topic, last, records)
		inflight = nil
		if err != nil {
			r.rewind(records[0].Offset)
			return r.fail(ctx, res, err)
		}

		if newOffset != last {
			if err := r.state.SetLastOffset(newOffset); err != nil {
				r.logger.Error(
					"Failed to persist checkpoint, batch will be reprocessed after a restart",
					"checkpoint", last, "offset", newOffset, "error", err,
				)
				return r.fail(ctx, res, fmt.Errorf("write checkpoint: %w", err))
			}
			tel.CheckpointOffset.Record(
				context.WithoutCancel(ctx), newOffset,
				metric.WithAttributes(semconv.MessagingDestinationName(r.tp.Topic)),
			)
		}

		last = newOffset
		res.Status = CycleProcessed
		res.Batches++
		res.Records += outcome.Processed
		res.EndOffset = last

		wait = r.config.PollWaitMore
	}

	r.logger.Debug("Exit receiver cycle", "rounds", round, "status", res.Status.String(), "offset", res.EndOffset)
	return res
}

// rewind moves the consumer back to the first record of a rolled-back batch
// so the next poll delivers it again.
func (r *Receiver) rewind(offset int64) {
	if err := r.consumer.Seek(r.tp, offset); err != nil {
		r.logger.Error("Failed to rewind consumer after aborted batch", "offset", offset, "error", err)
	}
}

func (r *Receiver) fail(ctx context.Context, res CycleResult, err error) CycleResult {
	res.Status = CycleError
	res.Err = err

	kv := []any{"start_offset", res.StartOffset, "end_offset", res.EndOffset, "error", err}
	var pe *PanicError
	if errors.As(err, &pe) {
		kv = append(kv, "stack", string(pe.Stack))
	}
	r.logger.Error("Receiver cycle failed", kv...)

	r.config.Telemetry.CycleErrors.Add(
		context.WithoutCancel(ctx), 1, metric.WithAttributes(semconv.MessagingDestinationName(r.tp.Topic)),
	)
	return res
}
