package kafka

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotAssigned     = errors.New("partition is not assigned")
	ErrAlreadyAssigned = errors.New("consumer already has an assigned partition")
	ErrUnknownTopic    = errors.New("unknown topic")
)

// ResetPolicy decides where consumption starts when the consumer has no
// position for its partition.
type ResetPolicy string

const (
	ResetLatest   ResetPolicy = "latest"
	ResetEarliest ResetPolicy = "earliest"
)

// Consumer is the broker capability the connector needs: manual assignment of
// a single partition, bounded polls, and explicit position control.
type Consumer interface {
	Assign(tp TopicPartition) error
	// Poll blocks for up to timeout and returns the records delivered, in
	// offset order. An empty result is not an error.
	Poll(ctx context.Context, timeout time.Duration) ([]ConsumerRecord, error)
	// Position is the offset of the next record the consumer would deliver.
	Position(ctx context.Context, tp TopicPartition) (int64, error)
	Seek(tp TopicPartition, offset int64) error
	BeginningOffsets(ctx context.Context, tps ...TopicPartition) (map[TopicPartition]int64, error)
	PartitionsFor(ctx context.Context, topic string) ([]PartitionInfo, error)
	Close()
}
