//go:build unit

package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-connect/errorhandler"
	"github.com/hugolhafner/go-connect/kafka"
	mockkafka "github.com/hugolhafner/go-connect/kafka/mock"
	"github.com/hugolhafner/go-connect/logger"
	mocklogger "github.com/hugolhafner/go-connect/logger/mock"
	"github.com/hugolhafner/go-connect/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestProcessBatch_AllRecordsApplied(t *testing.T) {
	p := newRecordingProcessor()
	b := NewBatchProcessor(p)

	records := mockkafka.AtOffsets(10, 11, 12)
	got, outcome, err := b.ProcessBatch(context.Background(), "orders", 9, records)
	require.NoError(t, err)

	assert.Equal(t, int64(12), got)
	assert.Equal(t, []int64{10, 11, 12}, p.Offsets())
	assert.Equal(t, []startCall{{Count: 3, StartOffset: 9}}, p.Starts())
	assert.Equal(t, []finishCall{{Processed: 3, EndOffset: 12, StartOffset: 9}}, p.Finishes())

	assert.Equal(t, "orders", outcome.Topic)
	assert.Equal(t, 3, outcome.Received)
	assert.Equal(t, 3, outcome.Processed)
	assert.Equal(t, 0, outcome.Failed)
	assert.Equal(t, int64(9), outcome.StartOffset)
	assert.Equal(t, int64(12), outcome.EndOffset)
	assert.Equal(t, kafka.Payload(records), outcome.Bytes)
}

func TestProcessBatch_SkipsFailedRecordAndContinues(t *testing.T) {
	p := newRecordingProcessor()
	p.failAt[12] = errProcessing

	l := mocklogger.New()
	b := NewBatchProcessor(p, WithLogger(l))

	got, outcome, err := b.ProcessBatch(context.Background(), "orders", 9, mockkafka.AtOffsets(10, 11, 12, 13, 14))
	require.NoError(t, err)

	assert.Equal(t, int64(14), got)
	assert.Equal(t, 5, outcome.Received)
	assert.Equal(t, 4, outcome.Processed)
	assert.Equal(t, 1, outcome.Failed)
	assert.Equal(t, []int64{10, 11, 12, 13, 14}, p.Offsets())
	assert.Equal(t, []finishCall{{Processed: 4, EndOffset: 14, StartOffset: 9}}, p.Finishes())

	l.AssertCalledWithLevelAndMessage(t, logger.ErrorLevel, "error processing record, skipping")
	l.AssertCalledWithMessage(t, "Batch finished")
}

func TestProcessBatch_FailedLastRecordKeepsEarlierOffset(t *testing.T) {
	p := newRecordingProcessor()
	p.failAt[14] = errProcessing
	b := NewBatchProcessor(p)

	got, outcome, err := b.ProcessBatch(context.Background(), "orders", 9, mockkafka.AtOffsets(10, 11, 12, 13, 14))
	require.NoError(t, err)

	assert.Equal(t, int64(13), got)
	assert.Equal(t, 4, outcome.Processed)
}

func TestProcessBatch_NoSuccessReturnsLastOffset(t *testing.T) {
	p := newRecordingProcessor()
	p.failAt[10] = errProcessing
	p.failAt[11] = errProcessing
	b := NewBatchProcessor(p)

	got, outcome, err := b.ProcessBatch(context.Background(), "orders", 9, mockkafka.AtOffsets(10, 11))
	require.NoError(t, err)

	assert.Equal(t, int64(9), got)
	assert.Equal(t, 0, outcome.Processed)
	assert.Equal(t, 2, outcome.Failed)
}

func TestProcessBatch_EmptyIsNoop(t *testing.T) {
	p := processor.NewMockProcessor()
	tx := &fakeTx{}
	l := mocklogger.New()
	b := NewBatchProcessor(p, WithTransaction(tx), WithLogger(l))

	got, outcome, err := b.ProcessBatch(context.Background(), "orders", 41, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(41), got)
	assert.Equal(t, 0, outcome.Received)
	assert.Equal(t, int64(41), outcome.EndOffset)

	begun, _, _ := tx.counts()
	assert.Zero(t, begun)
	assert.Empty(t, l.Entries())
	p.AssertNotCalled(t, "StartBatch", mock.Anything, mock.Anything)
	p.AssertNotCalled(t, "FinishBatch", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessBatch_OffsetGapLogged(t *testing.T) {
	p := newRecordingProcessor()
	l := mocklogger.New()
	b := NewBatchProcessor(p, WithLogger(l))

	got, _, err := b.ProcessBatch(context.Background(), "orders", 9, mockkafka.AtOffsets(10, 13, 20))
	require.NoError(t, err)
	assert.Equal(t, int64(20), got)

	l.AssertCalledWithMessage(t, "Batch offsets not as predicted")
	predicted, ok := l.Value("Batch offsets not as predicted", "predicted")
	require.True(t, ok)
	assert.Equal(t, int64(12), predicted)
}

func TestProcessBatch_ContiguousOffsetsNotLoggedAsGap(t *testing.T) {
	l := mocklogger.New()
	b := NewBatchProcessor(newRecordingProcessor(), WithLogger(l))

	_, _, err := b.ProcessBatch(context.Background(), "orders", 9, mockkafka.AtOffsets(10, 11))
	require.NoError(t, err)

	l.AssertNotCalledWithMessage(t, "Batch offsets not as predicted")
}

func TestProcessBatch_CommitsTransaction(t *testing.T) {
	tx := &fakeTx{}
	b := NewBatchProcessor(newRecordingProcessor(), WithTransaction(tx))

	_, _, err := b.ProcessBatch(context.Background(), "orders", -1, mockkafka.AtOffsets(0, 1))
	require.NoError(t, err)

	begun, committed, aborted := tx.counts()
	assert.Equal(t, 1, begun)
	assert.Equal(t, 1, committed)
	assert.Equal(t, 0, aborted)
}

func TestProcessBatch_FailActionAbortsTransaction(t *testing.T) {
	p := newRecordingProcessor()
	p.failAt[11] = errProcessing
	tx := &fakeTx{}
	l := mocklogger.New()

	b := NewBatchProcessor(
		p,
		WithTransaction(tx),
		WithErrorHandler(errorhandler.SilentFail()),
		WithLogger(l),
	)

	got, outcome, err := b.ProcessBatch(context.Background(), "orders", 9, mockkafka.AtOffsets(10, 11, 12))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBatchAborted)
	assert.ErrorIs(t, err, errProcessing)

	assert.Equal(t, int64(9), got)
	assert.Equal(t, 0, outcome.Processed)
	assert.Equal(t, int64(9), outcome.EndOffset)
	assert.Equal(t, []int64{10, 11}, p.Offsets(), "records after the failure must not be applied")
	assert.Equal(t, []finishCall{{Processed: 0, EndOffset: 9, StartOffset: 9}}, p.Finishes())

	begun, committed, aborted := tx.counts()
	assert.Equal(t, 1, begun)
	assert.Equal(t, 0, committed)
	assert.Equal(t, 1, aborted)

	l.AssertCalledWithLevelAndMessage(t, logger.ErrorLevel, "Batch aborted")
	l.AssertNotCalledWithMessage(t, "Batch finished")
}

func TestProcessBatch_CommitFailureAborts(t *testing.T) {
	commitErr := errors.New("commit failed")
	tx := &fakeTx{err: commitErr}
	b := NewBatchProcessor(newRecordingProcessor(), WithTransaction(tx))

	got, _, err := b.ProcessBatch(context.Background(), "orders", 4, mockkafka.AtOffsets(5, 6))
	require.ErrorIs(t, err, commitErr)
	assert.Equal(t, int64(4), got)
}

func TestProcessBatch_RetriesRecord(t *testing.T) {
	p := newRecordingProcessor()
	attempts := 0
	p.onCall = func(_ context.Context, rec kafka.ConsumerRecord) {
		if rec.Offset != 11 {
			return
		}
		attempts++
		p.mu.Lock()
		if attempts >= 2 {
			delete(p.failAt, 11)
		}
		p.mu.Unlock()
	}
	p.failAt[11] = errProcessing

	h := errorhandler.WithMaxAttempts(5, backoff.NewFixed(time.Millisecond), errorhandler.SilentFail())
	b := NewBatchProcessor(p, WithErrorHandler(h))

	got, outcome, err := b.ProcessBatch(context.Background(), "orders", 9, mockkafka.AtOffsets(10, 11, 12))
	require.NoError(t, err)

	assert.Equal(t, int64(12), got)
	assert.Equal(t, 3, outcome.Processed)
	assert.Equal(t, 3, attempts)
}

func TestProcessBatch_RetriesExhaustedFallsBack(t *testing.T) {
	p := newRecordingProcessor()
	p.failAt[10] = errProcessing

	h := errorhandler.WithMaxAttempts(3, backoff.NewFixed(time.Millisecond), errorhandler.SilentContinue())
	b := NewBatchProcessor(p, WithErrorHandler(h))

	got, outcome, err := b.ProcessBatch(context.Background(), "orders", 9, mockkafka.AtOffsets(10, 11))
	require.NoError(t, err)

	assert.Equal(t, int64(11), got)
	assert.Equal(t, 1, outcome.Failed)
	assert.Equal(t, []int64{10, 10, 10, 11}, p.Offsets())
}

func TestProcessBatch_ErrorContextCarriesBatchPosition(t *testing.T) {
	p := newRecordingProcessor()
	p.failAt[12] = errProcessing

	var seen []errorhandler.ErrorContext
	h := errorhandler.HandlerFunc(
		func(_ context.Context, ec errorhandler.ErrorContext) errorhandler.Action {
			seen = append(seen, ec)
			return errorhandler.ActionContinue{}
		},
	)
	b := NewBatchProcessor(p, WithErrorHandler(h))

	_, _, err := b.ProcessBatch(context.Background(), "orders", 9, mockkafka.AtOffsets(10, 11, 12))
	require.NoError(t, err)

	require.Len(t, seen, 1)
	assert.Equal(t, 2, seen[0].Index)
	assert.Equal(t, int64(9), seen[0].BatchStart)
	assert.Equal(t, int64(12), seen[0].Record.Offset)
	assert.Equal(t, 1, seen[0].Attempt)
	assert.Equal(t, errorhandler.PhaseProcessing, seen[0].Phase)
	assert.ErrorIs(t, seen[0].Error, errProcessing)
}

func TestProcessBatch_RecordPanicRoutedToHandler(t *testing.T) {
	p := newRecordingProcessor()
	p.panicAt[11] = "boom"

	var phase errorhandler.ErrorPhase
	h := errorhandler.HandlerFunc(
		func(_ context.Context, ec errorhandler.ErrorContext) errorhandler.Action {
			phase = ec.Phase
			return errorhandler.ActionContinue{}
		},
	)
	b := NewBatchProcessor(p, WithErrorHandler(h))

	got, outcome, err := b.ProcessBatch(context.Background(), "orders", 9, mockkafka.AtOffsets(10, 11, 12))
	require.NoError(t, err)

	assert.Equal(t, int64(12), got)
	assert.Equal(t, 2, outcome.Processed)
	assert.Equal(t, errorhandler.PhasePanic, phase)
}

func TestProcessBatch_UnknownActionFails(t *testing.T) {
	p := newRecordingProcessor()
	p.failAt[10] = errProcessing

	h := errorhandler.HandlerFunc(
		func(context.Context, errorhandler.ErrorContext) errorhandler.Action {
			return unknownAction{}
		},
	)
	l := mocklogger.New()
	b := NewBatchProcessor(p, WithErrorHandler(h), WithLogger(l))

	_, _, err := b.ProcessBatch(context.Background(), "orders", 9, mockkafka.AtOffsets(10))
	require.ErrorIs(t, err, ErrBatchAborted)
	l.AssertCalledWithMessage(t, "Unknown error handler action, failing batch")
}

type unknownAction struct{}

func (unknownAction) Type() errorhandler.ActionType { return errorhandler.ActionType(99) }

func TestProcessBatch_IgnoresCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := newRecordingProcessor()
	p.onCall = func(ctx context.Context, rec kafka.ConsumerRecord) {
		if rec.Offset == 10 {
			cancel()
		}
		assert.NoError(t, ctx.Err())
	}
	b := NewBatchProcessor(p)

	got, _, err := b.ProcessBatch(ctx, "orders", 9, mockkafka.AtOffsets(10, 11, 12))
	require.NoError(t, err)
	assert.Equal(t, int64(12), got)
	assert.Equal(t, []int64{10, 11, 12}, p.Offsets())
}

func TestProcessBatch_MockProcessorCallOrder(t *testing.T) {
	p := processor.NewMockProcessor()
	records := mockkafka.AtOffsets(3, 4)

	start := p.On("StartBatch", 2, int64(2)).Return()
	first := p.On("Process", mock.Anything, records[0]).Return(nil).NotBefore(start)
	second := p.On("Process", mock.Anything, records[1]).Return(nil).NotBefore(first)
	p.On("FinishBatch", 2, int64(4), int64(2)).Return().NotBefore(second)

	b := NewBatchProcessor(p)
	got, _, err := b.ProcessBatch(context.Background(), "orders", 2, records)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got)

	p.AssertExpectations(t)
}
