//go:build unit

package errorhandler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-connect/errorhandler"
	"github.com/hugolhafner/go-connect/kafka"
	"github.com/hugolhafner/go-connect/logger"
	mocklogger "github.com/hugolhafner/go-connect/logger/mock"
	"github.com/stretchr/testify/require"
)

func TestLogAndContinue(t *testing.T) {
	t.Parallel()
	var testErr = errors.New("processing failed")

	tests := []struct {
		name string
		err  error
	}{
		{"simple error", testErr},
		{"nil error", nil},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				t.Parallel()
				ec := errorhandler.NewErrorContext(kafka.ConsumerRecord{}, nil)

				l := mocklogger.New()
				h := errorhandler.LogAndContinue(l)
				action := h.Handle(context.Background(), ec.WithError(tt.err))

				require.Equal(t, errorhandler.ActionContinue{}, action)
				l.AssertCalledWithLevelAndMessage(t, logger.ErrorLevel, "error processing record, skipping")
			},
		)
	}
}

func TestDefaultContinues(t *testing.T) {
	l := mocklogger.New()
	action := errorhandler.Default(l).Handle(
		context.Background(), errorhandler.NewErrorContext(sampleRecord(), errors.New("x")),
	)

	require.Equal(t, errorhandler.ActionContinue{}, action)
	offset, ok := l.Value("error processing record, skipping", "offset")
	require.True(t, ok)
	require.Equal(t, int64(10), offset)
}

func TestLogAndFail(t *testing.T) {
	t.Parallel()
	var testErr = errors.New("processing failed")

	tests := []struct {
		name string
		err  error
	}{
		{"simple error", testErr},
		{"nil error", nil},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				t.Parallel()
				ec := errorhandler.NewErrorContext(kafka.ConsumerRecord{}, nil)

				l := mocklogger.New()
				h := errorhandler.LogAndFail(l)
				action := h.Handle(context.Background(), ec.WithError(tt.err))

				require.Equal(t, errorhandler.ActionFail{}, action)
				l.AssertCalledWithLevelAndMessage(t, logger.ErrorLevel, "error processing record, failing")
			},
		)
	}
}

func TestSilentHandlers(t *testing.T) {
	ec := errorhandler.NewErrorContext(kafka.ConsumerRecord{}, errors.New("x"))

	require.Equal(t, errorhandler.ActionFail{}, errorhandler.SilentFail().Handle(context.Background(), ec))
	require.Equal(t, errorhandler.ActionContinue{}, errorhandler.SilentContinue().Handle(context.Background(), ec))
}

func TestWithMaxAttempts(t *testing.T) {
	t.Parallel()

	newFallback := func(called *bool) errorhandler.Handler {
		return errorhandler.HandlerFunc(
			func(ctx context.Context, ec errorhandler.ErrorContext) errorhandler.Action {
				*called = true
				return errorhandler.ActionFail{}
			},
		)
	}

	t.Run(
		"should call fallback after max attempts", func(t *testing.T) {
			t.Parallel()
			var maxAttempts = 3

			ec := errorhandler.NewErrorContext(kafka.ConsumerRecord{}, errors.New("processing failed"))

			fallbackCalled := false
			h := errorhandler.WithMaxAttempts(maxAttempts, backoff.NewFixed(0), newFallback(&fallbackCalled))

			for i := 1; i < maxAttempts; i++ {
				action := h.Handle(context.Background(), ec.WithAttempt(i))
				require.False(t, fallbackCalled, "fallback should not be called yet on attempt %d", i)
				require.Equal(t, errorhandler.ActionRetry{}, action)
			}

			action := h.Handle(context.Background(), ec.WithAttempt(maxAttempts))
			require.True(t, fallbackCalled, "fallback should have been called")
			require.Equal(t, errorhandler.ActionFail{}, action)
		},
	)

	t.Run(
		"should wait on attempts", func(t *testing.T) {
			t.Parallel()
			ec := errorhandler.NewErrorContext(kafka.ConsumerRecord{}, errors.New("processing failed"))

			fallbackCalled := false
			h := errorhandler.WithMaxAttempts(
				3, backoff.NewFixed(100*time.Millisecond), newFallback(&fallbackCalled),
			)

			start := time.Now()
			action := h.Handle(context.Background(), ec.WithAttempt(2))
			elapsed := time.Since(start)

			require.False(t, fallbackCalled, "fallback should not be called yet")
			require.Equal(t, errorhandler.ActionRetry{}, action)
			require.GreaterOrEqual(t, elapsed, 100*time.Millisecond, "should have waited on retry attempt")
		},
	)

	t.Run(
		"should fall back on context cancellation", func(t *testing.T) {
			t.Parallel()
			ec := errorhandler.NewErrorContext(kafka.ConsumerRecord{}, errors.New("processing failed"))

			fallbackCalled := false
			h := errorhandler.WithMaxAttempts(3, backoff.NewFixed(time.Second), newFallback(&fallbackCalled))

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			action := h.Handle(ctx, ec)
			require.True(t, fallbackCalled)
			require.Equal(t, errorhandler.ActionFail{}, action)
		},
	)
}

func TestActionLogger(t *testing.T) {
	l := mocklogger.New()
	h := errorhandler.ActionLogger(l, logger.WarnLevel, errorhandler.SilentContinue())

	action := h.Handle(context.Background(), errorhandler.NewErrorContext(sampleRecord(), errors.New("x")))

	require.Equal(t, errorhandler.ActionContinue{}, action)
	l.AssertCalledWithLevelAndMessage(t, logger.WarnLevel, "Error handler decision")
	decided, ok := l.Value("Error handler decision", "action")
	require.True(t, ok)
	require.Equal(t, "Continue", decided)
}
