package processor

import (
	"context"

	"github.com/hugolhafner/go-connect/kafka"
	"github.com/stretchr/testify/mock"
)

var _ Processor = (*MockProcessor)(nil)

type MockProcessor struct {
	mock.Mock
}

func NewMockProcessor() *MockProcessor {
	return &MockProcessor{}
}

func (p *MockProcessor) StartBatch(count int, startOffset int64) {
	p.Mock.Called(count, startOffset)
}

func (p *MockProcessor) Process(ctx context.Context, record kafka.ConsumerRecord) error {
	args := p.Mock.Called(ctx, record)
	return args.Error(0)
}

func (p *MockProcessor) FinishBatch(processed int, endOffset, startOffset int64) {
	p.Mock.Called(processed, endOffset, startOffset)
}
