package errorhandler

import (
	"github.com/hugolhafner/go-connect/kafka"
)

// ErrorContext is what a handler sees when one record of a batch fails.
type ErrorContext struct {
	// Record is a copy of the record that failed.
	Record kafka.ConsumerRecord

	Error error

	// Attempt is current attempt number, 1 indexed.
	Attempt int

	// Index is the record's position within its batch.
	Index int

	// BatchStart is the checkpoint offset the batch started from.
	BatchStart int64

	Phase ErrorPhase
}

func NewErrorContext(record kafka.ConsumerRecord, err error) ErrorContext {
	return ErrorContext{
		Record:  record.Copy(),
		Error:   err,
		Attempt: 1,
		Phase:   PhaseOf(err),
	}
}

func (ec ErrorContext) WithError(err error) ErrorContext {
	ec.Error = err
	return ec
}

func (ec ErrorContext) WithAttempt(attempt int) ErrorContext {
	ec.Attempt = attempt
	return ec
}

func (ec ErrorContext) WithBatch(index int, start int64) ErrorContext {
	ec.Index = index
	ec.BatchStart = start
	return ec
}

func (ec ErrorContext) WithPhase(phase ErrorPhase) ErrorContext {
	ec.Phase = phase
	return ec
}

func (ec ErrorContext) IncrementAttempt() ErrorContext {
	ec.Attempt++
	return ec
}

func (ec ErrorContext) logFields() []any {
	return []any{
		"error", ec.Error,
		"key", string(ec.Record.Key),
		"topic", ec.Record.Topic,
		"partition", ec.Record.Partition,
		"offset", ec.Record.Offset,
		"attempt", ec.Attempt,
		"phase", ec.Phase.String(),
	}
}
