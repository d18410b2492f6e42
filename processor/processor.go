// Package processor defines how one record becomes a side effect against the
// sink, and the batch boundaries a processor is told about.
package processor

import (
	"context"

	"github.com/hugolhafner/go-connect/kafka"
)

// Processor applies records to the sink. Calls for one batch arrive from a
// single goroutine: StartBatch, then Process for every record in offset
// order, then FinishBatch.
type Processor interface {
	// StartBatch is called before the first record with the batch size and
	// the checkpoint offset the batch starts after.
	StartBatch(count int, startOffset int64)
	// Process applies one record. An error fails this record only.
	Process(ctx context.Context, record kafka.ConsumerRecord) error
	// FinishBatch is called after the last record with the number of
	// records that were applied and the offset the checkpoint moves to.
	// After a rolled-back batch processed is 0 and endOffset equals
	// startOffset.
	FinishBatch(processed int, endOffset, startOffset int64)
}

var _ Processor = Func(nil)

// Func adapts a plain function into a Processor with no batch hooks.
type Func func(ctx context.Context, record kafka.ConsumerRecord) error

func (f Func) StartBatch(int, int64) {}

func (f Func) Process(ctx context.Context, record kafka.ConsumerRecord) error {
	return f(ctx, record)
}

func (f Func) FinishBatch(int, int64, int64) {}

// Hooks embeds into processors that only care about Process.
type Hooks struct{}

func (Hooks) StartBatch(int, int64) {}

func (Hooks) FinishBatch(int, int64, int64) {}
