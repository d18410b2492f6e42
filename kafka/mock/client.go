package mockkafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hugolhafner/go-connect/kafka"
)

var _ kafka.Consumer = (*Client)(nil)

// SeekCall records one Seek invocation.
type SeekCall struct {
	TopicPartition kafka.TopicPartition
	Offset         int64
}

type partitionLog struct {
	records  []kafka.ConsumerRecord
	logStart int64
	logEnd   int64
}

// Client is an in-memory kafka.Consumer. Each partition is a log with a
// start offset (moved by Truncate to simulate retention) and an end offset.
// Positions follow the real consumer: Poll advances past delivered records,
// Seek overrides, and an unset position resolves through the reset policy.
type Client struct {
	mu sync.Mutex

	logs      map[kafka.TopicPartition]*partitionLog
	positions map[kafka.TopicPartition]int64
	assigned  *kafka.TopicPartition

	resetPolicy    kafka.ResetPolicy
	maxPollRecords int
	pollDelay      time.Duration

	pollErr       func() error
	positionErr   error
	beginningErr  error
	partitionsErr error
	seekErr       error

	seeks          []SeekCall
	pollTimeouts   []time.Duration
	positionCalls  int
	beginningCalls int
	metadataCalls  int

	closed bool
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		logs:           make(map[kafka.TopicPartition]*partitionLog),
		positions:      make(map[kafka.TopicPartition]int64),
		resetPolicy:    kafka.ResetLatest,
		maxPollRecords: 10,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) log(tp kafka.TopicPartition) *partitionLog {
	l, ok := c.logs[tp]
	if !ok {
		l = &partitionLog{}
		c.logs[tp] = l
	}
	return l
}

func (c *Client) Assign(tp kafka.TopicPartition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.assigned != nil {
		if *c.assigned == tp {
			return nil
		}
		return fmt.Errorf("assign %v: %w", tp, kafka.ErrAlreadyAssigned)
	}

	c.assigned = &tp
	c.log(tp)
	return nil
}

func (c *Client) checkAssigned(tp kafka.TopicPartition) error {
	if c.assigned == nil || *c.assigned != tp {
		return fmt.Errorf("%v: %w", tp, kafka.ErrNotAssigned)
	}
	return nil
}

// resolveLocked returns the current position, applying the reset policy when
// there is none or when it points before the log start.
func (c *Client) resolveLocked(tp kafka.TopicPartition) int64 {
	l := c.log(tp)
	pos, ok := c.positions[tp]
	if !ok || pos < l.logStart || pos > l.logEnd {
		if c.resetPolicy == kafka.ResetEarliest {
			pos = l.logStart
		} else {
			pos = l.logEnd
		}
		c.positions[tp] = pos
	}
	return pos
}

// Poll returns up to maxPollRecords records from the assigned partition at or
// after the current position.
func (c *Client) Poll(ctx context.Context, timeout time.Duration) ([]kafka.ConsumerRecord, error) {
	c.mu.Lock()
	c.pollTimeouts = append(c.pollTimeouts, timeout)
	delay := c.pollDelay
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, nil
		case <-time.After(delay):
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	if c.pollErr != nil {
		if err := c.pollErr(); err != nil {
			return nil, err
		}
	}

	if c.assigned == nil {
		return nil, nil
	}

	tp := *c.assigned
	pos := c.resolveLocked(tp)

	var records []kafka.ConsumerRecord
	for _, r := range c.logs[tp].records {
		if r.Offset < pos {
			continue
		}
		records = append(records, r)
		if len(records) >= c.maxPollRecords {
			break
		}
	}

	if len(records) > 0 {
		c.positions[tp] = records[len(records)-1].Offset + 1
	}

	return records, nil
}

func (c *Client) Position(ctx context.Context, tp kafka.TopicPartition) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.positionCalls++
	if c.positionErr != nil {
		return 0, c.positionErr
	}
	if err := c.checkAssigned(tp); err != nil {
		return 0, err
	}

	return c.resolveLocked(tp), nil
}

func (c *Client) Seek(tp kafka.TopicPartition, offset int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.seekErr != nil {
		return c.seekErr
	}
	if err := c.checkAssigned(tp); err != nil {
		return err
	}

	c.seeks = append(c.seeks, SeekCall{TopicPartition: tp, Offset: offset})
	c.positions[tp] = offset
	return nil
}

func (c *Client) BeginningOffsets(ctx context.Context, tps ...kafka.TopicPartition) (
	map[kafka.TopicPartition]int64, error,
) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.beginningCalls++
	if c.beginningErr != nil {
		return nil, c.beginningErr
	}

	out := make(map[kafka.TopicPartition]int64, len(tps))
	for _, tp := range tps {
		out[tp] = c.log(tp).logStart
	}
	return out, nil
}

func (c *Client) PartitionsFor(ctx context.Context, topic string) ([]kafka.PartitionInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metadataCalls++
	if c.partitionsErr != nil {
		return nil, c.partitionsErr
	}

	var out []kafka.PartitionInfo
	for tp := range c.logs {
		if tp.Topic == topic {
			out = append(out, kafka.PartitionInfo{Topic: topic, Partition: tp.Partition, Leader: 0})
		}
	}
	return out, nil
}

// Close marks the client as closed. Poll fails afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
}

// AddRecords appends records to the partition log, assigning consecutive
// offsets from the current log end.
func (c *Client) AddRecords(topic string, partition int32, records ...kafka.ConsumerRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tp := kafka.TopicPartition{Topic: topic, Partition: partition}
	l := c.log(tp)
	for _, r := range records {
		r.Topic = topic
		r.Partition = partition
		r.Offset = l.logEnd
		l.records = append(l.records, r)
		l.logEnd++
	}
}

// AppendRecords appends records keeping their offsets, which must increase.
// Gaps model compaction or transaction control records.
func (c *Client) AppendRecords(topic string, partition int32, records ...kafka.ConsumerRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tp := kafka.TopicPartition{Topic: topic, Partition: partition}
	l := c.log(tp)
	for _, r := range records {
		if r.Offset < l.logEnd {
			panic(fmt.Sprintf("mockkafka: offset %d is below log end %d", r.Offset, l.logEnd))
		}
		r.Topic = topic
		r.Partition = partition
		l.records = append(l.records, r)
		l.logEnd = r.Offset + 1
	}
}

// SetLogEnd moves the log end forward without records, for example to model
// a partition whose earlier data was never visible to this consumer.
func (c *Client) SetLogEnd(topic string, partition int32, end int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	l := c.log(kafka.TopicPartition{Topic: topic, Partition: partition})
	if end > l.logEnd {
		l.logEnd = end
	}
}

// Truncate drops every record below start, as broker retention would.
func (c *Client) Truncate(topic string, partition int32, start int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	l := c.log(kafka.TopicPartition{Topic: topic, Partition: partition})
	kept := l.records[:0]
	for _, r := range l.records {
		if r.Offset >= start {
			kept = append(kept, r)
		}
	}
	l.records = kept
	l.logStart = start
	if l.logEnd < start {
		l.logEnd = start
	}
}

func (c *Client) SetPollError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		c.pollErr = nil
	} else {
		c.pollErr = func() error { return err }
	}
}

func (c *Client) SetPollErrorFunc(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pollErr = fn
}

func (c *Client) SetPositionError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.positionErr = err
}

func (c *Client) SetBeginningOffsetsError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.beginningErr = err
}

func (c *Client) SetPartitionsForError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.partitionsErr = err
}

func (c *Client) SetSeekError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seekErr = err
}

// Seeks returns a copy of every Seek call.
func (c *Client) Seeks() []SeekCall {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]SeekCall, len(c.seeks))
	copy(out, c.seeks)
	return out
}

// PollTimeouts returns the timeout passed to each Poll call, in order.
func (c *Client) PollTimeouts() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]time.Duration, len(c.pollTimeouts))
	copy(out, c.pollTimeouts)
	return out
}

func (c *Client) PositionCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionCalls
}

func (c *Client) BeginningOffsetsCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.beginningCalls
}

func (c *Client) MetadataCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metadataCalls
}

// CurrentPosition reports the stored position without resolving it.
func (c *Client) CurrentPosition(tp kafka.TopicPartition) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pos, ok := c.positions[tp]
	return pos, ok
}

func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Reset drops positions, assignment and call history but keeps the logs, so a
// test can model a process restart against the same broker.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.positions = make(map[kafka.TopicPartition]int64)
	c.assigned = nil
	c.seeks = nil
	c.pollTimeouts = nil
	c.positionCalls = 0
	c.beginningCalls = 0
	c.metadataCalls = 0
	c.closed = false
}
