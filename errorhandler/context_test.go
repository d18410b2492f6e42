//go:build unit

package errorhandler_test

import (
	"errors"
	"testing"
	"time"

	"github.com/hugolhafner/go-connect/errorhandler"
	"github.com/hugolhafner/go-connect/kafka"
	"github.com/stretchr/testify/require"
)

func sampleRecord() kafka.ConsumerRecord {
	return kafka.ConsumerRecord{
		Key:   []byte("key-123"),
		Value: []byte("value-123"),
		Headers: []kafka.Header{
			{Key: "header-1", Value: []byte("value-1")},
			{Key: "header-2", Value: []byte("value-2")},
		},
		Topic:       "test-topic",
		Partition:   1,
		Offset:      10,
		LeaderEpoch: 2,
		Timestamp:   time.Now(),
	}
}

func TestNewErrorContext(t *testing.T) {
	record := sampleRecord()

	ec := errorhandler.NewErrorContext(record, nil)

	require.Equal(t, record, ec.Record)
	require.Nil(t, ec.Error)
	require.Equal(t, 1, ec.Attempt)
	require.Equal(t, errorhandler.PhaseUnknown, ec.Phase)
}

func TestNewErrorContext_Copy(t *testing.T) {
	record := sampleRecord()

	ec := errorhandler.NewErrorContext(record, nil)

	record.Headers[0].Value[0] = 'X'
	record.Key[0] = 'X'
	record.Value[0] = 'X'

	require.Equal(t, []byte("value-1"), ec.Record.Headers[0].Value)
	require.Equal(t, []byte("key-123"), ec.Record.Key)
	require.Equal(t, []byte("value-123"), ec.Record.Value)
}

func TestNewErrorContext_PhaseFromError(t *testing.T) {
	plain := errorhandler.NewErrorContext(sampleRecord(), errors.New("bad"))
	require.Equal(t, errorhandler.PhaseProcessing, plain.Phase)

	tagged := errorhandler.NewErrorContext(
		sampleRecord(), errorhandler.WithPhase(errors.New("503"), errorhandler.PhaseDispatch),
	)
	require.Equal(t, errorhandler.PhaseDispatch, tagged.Phase)
}

func TestErrorContext_IncrementAttempt(t *testing.T) {
	ec := errorhandler.NewErrorContext(kafka.ConsumerRecord{}, nil)
	require.Equal(t, 1, ec.Attempt)

	ec = ec.IncrementAttempt()
	require.Equal(t, 2, ec.Attempt)

	ec = ec.IncrementAttempt()
	require.Equal(t, 3, ec.Attempt)
}

func TestErrorContext_WithError(t *testing.T) {
	ec := errorhandler.NewErrorContext(kafka.ConsumerRecord{}, nil)
	require.Nil(t, ec.Error)

	sampleErr := errors.New("sample error")
	ec = ec.WithError(sampleErr)
	require.Equal(t, sampleErr, ec.Error)
}

func TestErrorContext_WithAttempt(t *testing.T) {
	ec := errorhandler.NewErrorContext(kafka.ConsumerRecord{}, nil)
	ec = ec.WithAttempt(5)
	require.Equal(t, 5, ec.Attempt)
}

func TestErrorContext_WithBatch(t *testing.T) {
	ec := errorhandler.NewErrorContext(kafka.ConsumerRecord{}, nil).WithBatch(3, 41)
	require.Equal(t, 3, ec.Index)
	require.Equal(t, int64(41), ec.BatchStart)
}
