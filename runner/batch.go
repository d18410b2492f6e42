package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/hugolhafner/go-connect/errorhandler"
	"github.com/hugolhafner/go-connect/kafka"
	"github.com/hugolhafner/go-connect/logger"
	"github.com/hugolhafner/go-connect/otel"
	"github.com/hugolhafner/go-connect/processor"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// ErrBatchAborted wraps the error that made a batch roll back.
var ErrBatchAborted = errors.New("batch aborted")

// PanicError carries a value recovered from a panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// BatchOutcome describes one applied batch. It is informational only.
type BatchOutcome struct {
	Topic     string
	Received  int
	Processed int
	Failed    int
	// StartOffset is the checkpoint before the batch, EndOffset the offset
	// returned for it.
	StartOffset int64
	EndOffset   int64
	Bytes       int64
	Elapsed     time.Duration
}

// BatchProcessor applies the records of one poll result to a processor,
// inside a sink transaction when one is configured.
type BatchProcessor struct {
	processor processor.Processor
	config    BatchConfig
	logger    logger.Logger
}

func NewBatchProcessor(p processor.Processor, opts ...BatchOption) *BatchProcessor {
	config := defaultBatchConfig()
	for _, opt := range opts {
		opt.applyBatch(&config)
	}
	if config.ErrorHandler == nil {
		config.ErrorHandler = errorhandler.Default(config.Logger)
	}

	return &BatchProcessor{
		processor: p,
		config:    config,
		logger:    config.Logger.With("component", "batch_processor"),
	}
}

// ProcessBatch applies records in order and returns the offset of the last
// record that was applied, or lastOffset when none was. An empty batch is a
// no-op. Cancelling ctx does not interrupt a batch once it has started.
//
// A non-nil error means the batch rolled back and lastOffset is returned.
func (b *BatchProcessor) ProcessBatch(
	ctx context.Context,
	topic string,
	lastOffset int64,
	records []kafka.ConsumerRecord,
) (int64, BatchOutcome, error) {
	outcome := BatchOutcome{Topic: topic, StartOffset: lastOffset, EndOffset: lastOffset}
	if len(records) == 0 {
		return lastOffset, outcome, nil
	}

	ctx = context.WithoutCancel(ctx)
	tel := b.config.Telemetry
	start := time.Now()

	outcome.Received = len(records)
	outcome.Bytes = kafka.Payload(records)

	l := b.logger.With("topic", topic)
	l.Info("Batch start", "start_offset", lastOffset, "count", outcome.Received, "bytes", outcome.Bytes)

	ctx, span := tel.Tracer.Start(
		ctx, topic+" batch",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingDestinationName(topic),
			otel.AttrRecordCount.Int(outcome.Received),
			otel.AttrStartOffset.Int64(lastOffset),
		),
	)
	defer span.End()

	b.processor.StartBatch(outcome.Received, lastOffset)

	newOffset := lastOffset
	apply := func(ctx context.Context) error {
		newOffset = lastOffset
		outcome.Processed, outcome.Failed = 0, 0

		for i, rec := range records {
			applied, err := b.processRecord(ctx, rec, i, lastOffset)
			if err != nil {
				return err
			}
			if applied {
				outcome.Processed++
				newOffset = rec.Offset
			} else {
				outcome.Failed++
			}
		}
		return nil
	}

	var err error
	if b.config.Transaction != nil {
		err = b.config.Transaction.RunInTransaction(ctx, apply)
	} else {
		err = apply(ctx)
	}

	outcome.Elapsed = time.Since(start)
	batchAttrs := metric.WithAttributes(semconv.MessagingDestinationName(topic))

	if err != nil {
		outcome.Processed = 0
		outcome.EndOffset = lastOffset
		b.processor.FinishBatch(0, lastOffset, lastOffset)

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		tel.Batches.Add(
			ctx, 1, metric.WithAttributes(
				semconv.MessagingDestinationName(topic), otel.AttrBatchStatus.String(otel.BatchAborted),
			),
		)

		l.Error(
			"Batch aborted", "start_offset", lastOffset, "first_offset", records[0].Offset,
			"last_offset", records[len(records)-1].Offset, "error", err,
		)
		return lastOffset, outcome, fmt.Errorf("%w: %w", ErrBatchAborted, err)
	}

	outcome.EndOffset = newOffset

	if predicted := lastOffset + int64(outcome.Received); newOffset != predicted {
		// Compaction and transaction markers leave gaps in offsets.
		l.Info("Batch offsets not as predicted", "actual", newOffset, "predicted", predicted)
	}

	b.processor.FinishBatch(outcome.Processed, newOffset, lastOffset)

	span.SetAttributes(otel.AttrEndOffset.Int64(newOffset))
	tel.Batches.Add(
		ctx, 1, metric.WithAttributes(
			semconv.MessagingDestinationName(topic), otel.AttrBatchStatus.String(otel.BatchCommitted),
		),
	)
	tel.BatchDuration.Record(ctx, outcome.Elapsed.Seconds(), batchAttrs)
	tel.BatchBytes.Record(ctx, outcome.Bytes, batchAttrs)

	l.Info(
		"Batch finished",
		"start_offset", lastOffset,
		"end_offset", newOffset,
		"received", outcome.Received,
		"processed", outcome.Processed,
		"failed", outcome.Failed,
		"elapsed", outcome.Elapsed,
	)

	return newOffset, outcome, nil
}

// processRecord runs the retry loop for one record. It reports whether the
// record was applied; a non-nil error means the handler asked to fail the
// batch.
func (b *BatchProcessor) processRecord(
	batchCtx context.Context,
	rec kafka.ConsumerRecord,
	index int,
	batchStart int64,
) (bool, error) {
	tel := b.config.Telemetry

	ctx := tel.ExtractRecord(batchCtx, rec)
	ctx, span := tel.Tracer.Start(
		ctx, rec.Topic+" process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithLinks(trace.LinkFromContext(batchCtx)),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationTypeProcess,
			semconv.MessagingDestinationName(rec.Topic),
			semconv.MessagingDestinationPartitionID(strconv.FormatInt(int64(rec.Partition), 10)),
			semconv.MessagingKafkaOffsetKey.Int64(rec.Offset),
			semconv.MessagingMessageBodySize(rec.Size()),
		),
	)
	defer span.End()

	ec := errorhandler.NewErrorContext(rec, nil).WithBatch(index, batchStart)
	recordStatus := func(status string) {
		span.SetAttributes(attribute.Int(string(otel.AttrRetryCount), ec.Attempt-1))
		tel.Records.Add(
			ctx, 1, metric.WithAttributes(
				semconv.MessagingDestinationName(rec.Topic),
				otel.AttrRecordStatus.String(status),
			),
		)
	}

	for {
		err := b.invoke(ctx, rec)
		if err == nil {
			b.logger.Debug("Record processed", "topic", rec.Topic, "offset", rec.Offset)
			recordStatus(otel.StatusSuccess)
			return true, nil
		}

		ec = ec.WithError(err).WithPhase(errorhandler.PhaseOf(err))
		span.RecordError(err)

		action := b.config.ErrorHandler.Handle(ctx, ec)

		tel.RecordErrors.Add(
			ctx, 1, metric.WithAttributes(
				semconv.MessagingDestinationName(rec.Topic),
				otel.AttrErrorPhase.String(ec.Phase.String()),
				otel.AttrErrorAction.String(action.Type().String()),
			),
		)

		switch action.Type() {
		case errorhandler.ActionTypeContinue:
			b.logger.Debug("Skipping failed record", "topic", rec.Topic, "offset", rec.Offset)
			recordStatus(otel.StatusSkipped)
			return false, nil

		case errorhandler.ActionTypeRetry:
			b.logger.Debug("Retrying record", "attempt", ec.Attempt, "offset", rec.Offset)
			ec = ec.IncrementAttempt()

			if ec.Attempt%10 == 0 {
				b.logger.Warn(
					"Record seen high number of retry attempts, consider allowing the error handler to skip.",
					"attempt", ec.Attempt, "key", string(rec.Key), "topic", rec.Topic, "offset", rec.Offset,
				)
			}
			continue

		case errorhandler.ActionTypeFail:
			recordStatus(otel.StatusFailed)
			span.SetStatus(codes.Error, err.Error())
			return false, fmt.Errorf("record %d: %w", rec.Offset, err)

		default:
			b.logger.Error(
				"Unknown error handler action, failing batch",
				"action", action.Type().String(), "topic", rec.Topic, "offset", rec.Offset, "error", err,
			)
			recordStatus(otel.StatusFailed)
			span.SetStatus(codes.Error, err.Error())
			return false, fmt.Errorf("record %d: %w", rec.Offset, err)
		}
	}
}

// invoke calls the processor, turning a panic into a PhasePanic error.
func (b *BatchProcessor) invoke(ctx context.Context, rec kafka.ConsumerRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errorhandler.WithPhase(&PanicError{Value: r, Stack: debug.Stack()}, errorhandler.PhasePanic)
		}
	}()

	return b.processor.Process(ctx, rec)
}
