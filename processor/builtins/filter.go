package builtins

import (
	"context"

	"github.com/hugolhafner/go-connect/kafka"
	"github.com/hugolhafner/go-connect/processor"
)

var _ processor.Processor = (*FilterProcessor)(nil)

type PredicateFunc func(ctx context.Context, record kafka.ConsumerRecord) (bool, error)

// FilterProcessor hands records matching predicate to next. Records that do
// not match count as applied.
type FilterProcessor struct {
	predicate PredicateFunc
	next      processor.Processor
}

func NewFilterProcessor(predicate PredicateFunc, next processor.Processor) *FilterProcessor {
	return &FilterProcessor{predicate: predicate, next: next}
}

func (p *FilterProcessor) StartBatch(count int, startOffset int64) {
	p.next.StartBatch(count, startOffset)
}

func (p *FilterProcessor) Process(ctx context.Context, r kafka.ConsumerRecord) error {
	if ok, err := p.predicate(ctx, r); err != nil {
		return err
	} else if ok {
		return p.next.Process(ctx, r)
	}

	return nil
}

func (p *FilterProcessor) FinishBatch(processed int, endOffset, startOffset int64) {
	p.next.FinishBatch(processed, endOffset, startOffset)
}

// ContentTypeIs matches records whose Content-Type header equals one of types.
func ContentTypeIs(types ...string) PredicateFunc {
	return func(_ context.Context, r kafka.ConsumerRecord) (bool, error) {
		ct := r.ContentType()
		for _, t := range types {
			if ct == t {
				return true, nil
			}
		}
		return false, nil
	}
}
