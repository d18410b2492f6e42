package dispatch

import (
	"context"
	"strings"

	"github.com/hugolhafner/go-connect/errorhandler"
	"github.com/hugolhafner/go-connect/kafka"
	"github.com/hugolhafner/go-connect/logger"
	"github.com/hugolhafner/go-connect/processor"
	"go.opentelemetry.io/otel/propagation"
)

var _ processor.Processor = (*Processor)(nil)

// Processor sends every record to a Dispatcher. Transport failures and
// non-2xx answers fail the record with errorhandler.PhaseDispatch.
type Processor struct {
	dispatcher Dispatcher
	propagator propagation.TextMapPropagator
	logger     logger.Logger
}

type ProcessorOption func(*Processor)

// WithPropagator injects the active trace context into every request.
func WithPropagator(p propagation.TextMapPropagator) ProcessorOption {
	return func(pr *Processor) {
		pr.propagator = p
	}
}

func WithLogger(l logger.Logger) ProcessorOption {
	return func(pr *Processor) {
		pr.logger = l
	}
}

func NewProcessor(d Dispatcher, opts ...ProcessorOption) *Processor {
	p := &Processor{dispatcher: d, logger: logger.NewNoopLogger()}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "dispatch", "target", d.Target())
	return p
}

func (p *Processor) StartBatch(count int, startOffset int64) {
	p.logger.Debug("Dispatching batch", "count", count, "start_offset", startOffset)
}

func (p *Processor) Process(ctx context.Context, rec kafka.ConsumerRecord) error {
	req, err := NewRequest(ctx, p.dispatcher.Target(), rec)
	if err != nil {
		return err
	}
	if p.propagator != nil {
		p.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))
	}

	resp, err := p.dispatcher.Do(req)
	if err != nil {
		return errorhandler.WithPhase(err, errorhandler.PhaseDispatch)
	}
	if !resp.OK() {
		return errorhandler.WithPhase(
			&StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(resp.Body))},
			errorhandler.PhaseDispatch,
		)
	}

	p.logger.Debug("Record dispatched", "offset", rec.Offset, "status", resp.StatusCode,
		"request_id", req.Header.Get(HeaderRequestID))
	return nil
}

func (p *Processor) FinishBatch(processed int, endOffset, startOffset int64) {
	p.logger.Debug("Dispatched batch", "processed", processed, "start_offset", startOffset, "end_offset", endOffset)
}
