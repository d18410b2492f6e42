package errorhandler

import (
	"context"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-connect/logger"
)

// Default is the handler used when none is configured. It logs the failure
// and skips the record.
func Default(l logger.Logger) Handler {
	return LogAndContinue(l)
}

// LogAndContinue logs error and continues processing
func LogAndContinue(l logger.Logger) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			l.Error("error processing record, skipping", ec.logFields()...)
			return ActionContinue{}
		},
	)
}

// LogAndFail logs error and aborts the batch
func LogAndFail(l logger.Logger) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			l.Error("error processing record, failing", ec.logFields()...)
			return ActionFail{}
		},
	)
}

// SilentFail aborts the batch without logging, leaving that to the caller.
func SilentFail() Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			return ActionFail{}
		},
	)
}

// SilentContinue skips the record without logging.
func SilentContinue() Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			return ActionContinue{}
		},
	)
}

// WithMaxAttempts wraps a handler with retry logic
// When the max attempts is reached, the fallback handler is called
func WithMaxAttempts(maxAttempts int, b backoff.Backoff, fallback Handler) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			if ec.Attempt >= maxAttempts {
				return fallback.Handle(ctx, ec)
			}

			select {
			case <-ctx.Done():
				return fallback.Handle(ctx, ec)
			case <-time.After(b.Next(uint(ec.Attempt))):
			}

			return ActionRetry{}
		},
	)
}

// ActionLogger logs the action decided by the next handler
func ActionLogger(l logger.Logger, level logger.LogLevel, next Handler) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			action := next.Handle(ctx, ec)

			l.Log(level, "Error handler decision", append([]any{"action", action.Type().String()}, ec.logFields()...)...)
			return action
		},
	)
}
