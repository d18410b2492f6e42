//go:build unit

package runner

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hugolhafner/go-connect/checkpoint"
	"github.com/hugolhafner/go-connect/kafka"
	"github.com/stretchr/testify/require"
)

var errProcessing = errors.New("processing failed")

type finishCall struct {
	Processed   int
	EndOffset   int64
	StartOffset int64
}

type startCall struct {
	Count       int
	StartOffset int64
}

// recordingProcessor records every call and fails or panics on chosen
// offsets.
type recordingProcessor struct {
	mu       sync.Mutex
	starts   []startCall
	finishes []finishCall
	offsets  []int64

	failAt  map[int64]error
	panicAt map[int64]any
	onCall  func(ctx context.Context, rec kafka.ConsumerRecord)
}

func newRecordingProcessor() *recordingProcessor {
	return &recordingProcessor{
		failAt:  make(map[int64]error),
		panicAt: make(map[int64]any),
	}
}

func (p *recordingProcessor) StartBatch(count int, startOffset int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.starts = append(p.starts, startCall{Count: count, StartOffset: startOffset})
}

func (p *recordingProcessor) Process(ctx context.Context, rec kafka.ConsumerRecord) error {
	p.mu.Lock()
	p.offsets = append(p.offsets, rec.Offset)
	err := p.failAt[rec.Offset]
	pv, shouldPanic := p.panicAt[rec.Offset]
	onCall := p.onCall
	p.mu.Unlock()

	if onCall != nil {
		onCall(ctx, rec)
	}
	if shouldPanic {
		panic(pv)
	}
	return err
}

func (p *recordingProcessor) FinishBatch(processed int, endOffset, startOffset int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finishes = append(p.finishes, finishCall{Processed: processed, EndOffset: endOffset, StartOffset: startOffset})
}

func (p *recordingProcessor) Offsets() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.offsets...)
}

func (p *recordingProcessor) Finishes() []finishCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]finishCall(nil), p.finishes...)
}

func (p *recordingProcessor) Starts() []startCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]startCall(nil), p.starts...)
}

// fakeTx counts transactions and keeps what was staged only when fn succeeds.
type fakeTx struct {
	mu        sync.Mutex
	begun     int
	committed int
	aborted   int
	err       error
}

func (f *fakeTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	f.begun++
	commitErr := f.err
	f.mu.Unlock()

	if err := fn(ctx); err != nil {
		f.mu.Lock()
		f.aborted++
		f.mu.Unlock()
		return err
	}
	if commitErr != nil {
		f.mu.Lock()
		f.aborted++
		f.mu.Unlock()
		return commitErr
	}

	f.mu.Lock()
	f.committed++
	f.mu.Unlock()
	return nil
}

func (f *fakeTx) counts() (begun, committed, aborted int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.begun, f.committed, f.aborted
}

// failingStore fails every Save while fail is set.
type failingStore struct {
	*checkpoint.MemoryStore
	mu   sync.Mutex
	fail bool
}

var errDisk = errors.New("disk full")

func (s *failingStore) Save(b []byte) error {
	s.mu.Lock()
	fail := s.fail
	s.mu.Unlock()
	if fail {
		return errDisk
	}
	return s.MemoryStore.Save(b)
}

func (s *failingStore) setFail(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = v
}

func dataState(t *testing.T, topic string, last int64) *checkpoint.DataState {
	t.Helper()

	ds, err := checkpoint.OpenDataState(topic, checkpoint.NewMemoryStore())
	require.NoError(t, err)
	if last != checkpoint.NoOffset {
		require.NoError(t, ds.SetLastOffset(last))
	}
	return ds
}
