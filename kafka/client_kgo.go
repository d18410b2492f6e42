package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hugolhafner/go-connect/logger"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

var _ Consumer = (*KgoClient)(nil)

type KgoClientConfig struct {
	BootstrapServers []string
	ClientID         string
	ResetPolicy      ResetPolicy
	MaxPollRecords   int
	FetchMaxWait     time.Duration

	Logger logger.Logger
}

func defaultConfig() KgoClientConfig {
	return KgoClientConfig{
		BootstrapServers: []string{"localhost:9092"},
		ClientID:         "go-connect",
		ResetPolicy:      ResetLatest,
		MaxPollRecords:   500,
		FetchMaxWait:     500 * time.Millisecond,
		Logger:           logger.NewNoopLogger(),
	}
}

type KgoOption func(*KgoClientConfig)

func WithBootstrapServers(servers []string) KgoOption {
	return func(cfg *KgoClientConfig) {
		cfg.BootstrapServers = servers
	}
}

func WithClientID(id string) KgoOption {
	return func(cfg *KgoClientConfig) {
		cfg.ClientID = id
	}
}

func WithResetPolicy(p ResetPolicy) KgoOption {
	return func(cfg *KgoClientConfig) {
		cfg.ResetPolicy = p
	}
}

func WithMaxPollRecords(n int) KgoOption {
	return func(cfg *KgoClientConfig) {
		if n > 0 {
			cfg.MaxPollRecords = n
		}
	}
}

func WithFetchMaxWait(d time.Duration) KgoOption {
	return func(cfg *KgoClientConfig) {
		if d > 0 {
			cfg.FetchMaxWait = d
		}
	}
}

func WithLogger(l logger.Logger) KgoOption {
	return func(cfg *KgoClientConfig) {
		cfg.Logger = l.
			With("client", "kgo")
	}
}

// KgoClient consumes one directly assigned partition (no consumer group) with
// franz-go. The connector owns the committed position, so the client only
// tracks the fetch position between polls.
type KgoClient struct {
	client *kgo.Client
	admin  *kadm.Client
	config KgoClientConfig

	mu        sync.Mutex
	assigned  *TopicPartition
	positions map[TopicPartition]int64

	logger logger.Logger
}

func NewKgoClient(opts ...KgoOption) (*KgoClient, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	kc := &KgoClient{
		config:    cfg,
		logger:    cfg.Logger,
		positions: make(map[TopicPartition]int64),
	}

	kgoOpts := []kgo.Opt{
		kgo.SeedBrokers(cfg.BootstrapServers...),
		kgo.ClientID(cfg.ClientID),
		kgo.WithLogger(newKgoLogger(kc.logger)),
		kgo.FetchMaxWait(cfg.FetchMaxWait),
		kgo.ConsumeResetOffset(resetOffset(cfg.ResetPolicy)),
	}

	client, err := kgo.NewClient(kgoOpts...)
	if err != nil {
		return nil, fmt.Errorf("create kgo client: %w", err)
	}

	kc.client = client
	kc.admin = kadm.NewClient(client)

	return kc, nil
}

func resetOffset(p ResetPolicy) kgo.Offset {
	if p == ResetEarliest {
		return kgo.NewOffset().AtStart()
	}
	return kgo.NewOffset().AtEnd()
}

func (k *KgoClient) Assign(tp TopicPartition) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.assigned != nil {
		if *k.assigned == tp {
			return nil
		}
		return fmt.Errorf("assign %v: %w (%v)", tp, ErrAlreadyAssigned, *k.assigned)
	}

	k.client.AddConsumePartitions(
		map[string]map[int32]kgo.Offset{
			tp.Topic: {tp.Partition: resetOffset(k.config.ResetPolicy)},
		},
	)
	k.assigned = &tp

	return nil
}

func (k *KgoClient) checkAssigned(tp TopicPartition) error {
	if k.assigned == nil || *k.assigned != tp {
		return fmt.Errorf("%v: %w", tp, ErrNotAssigned)
	}
	return nil
}

func (k *KgoClient) Poll(ctx context.Context, timeout time.Duration) ([]ConsumerRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fetches := k.client.PollRecords(ctx, k.config.MaxPollRecords)
	if errs := fetches.Errors(); len(errs) > 0 {
		for _, err := range errs {
			if !errors.Is(err.Err, context.DeadlineExceeded) && !errors.Is(err.Err, context.Canceled) {
				return nil, fmt.Errorf("poll %s-%d: %w", err.Topic, err.Partition, err.Err)
			}
		}
	}

	records := convertRecords(fetches.Records())

	k.mu.Lock()
	for _, r := range records {
		k.positions[r.TopicPartition()] = r.Offset + 1
	}
	k.mu.Unlock()

	return records, nil
}

// Position returns the tracked fetch position. Before the first poll or seek
// the position is resolved from the broker using the reset policy and pinned
// with SetOffsets so later fetches agree with what was reported.
func (k *KgoClient) Position(ctx context.Context, tp TopicPartition) (int64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.checkAssigned(tp); err != nil {
		return 0, err
	}

	if pos, ok := k.positions[tp]; ok {
		return pos, nil
	}

	var (
		listed kadm.ListedOffsets
		err    error
	)
	if k.config.ResetPolicy == ResetEarliest {
		listed, err = k.admin.ListStartOffsets(ctx, tp.Topic)
	} else {
		listed, err = k.admin.ListEndOffsets(ctx, tp.Topic)
	}
	if err != nil {
		return 0, fmt.Errorf("list offsets %v: %w", tp, err)
	}

	lo, ok := listed.Lookup(tp.Topic, tp.Partition)
	if !ok {
		return 0, fmt.Errorf("list offsets %v: %w", tp, ErrUnknownTopic)
	}
	if lo.Err != nil {
		return 0, fmt.Errorf("list offsets %v: %w", tp, lo.Err)
	}

	k.setOffsetLocked(tp, lo.Offset)
	return lo.Offset, nil
}

func (k *KgoClient) Seek(tp TopicPartition, offset int64) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.checkAssigned(tp); err != nil {
		return err
	}

	k.setOffsetLocked(tp, offset)
	return nil
}

func (k *KgoClient) setOffsetLocked(tp TopicPartition, offset int64) {
	k.client.SetOffsets(
		map[string]map[int32]kgo.EpochOffset{
			tp.Topic: {tp.Partition: {Epoch: -1, Offset: offset}},
		},
	)
	k.positions[tp] = offset
}

func (k *KgoClient) BeginningOffsets(ctx context.Context, tps ...TopicPartition) (map[TopicPartition]int64, error) {
	topics := make([]string, 0, len(tps))
	seen := make(map[string]struct{}, len(tps))
	for _, tp := range tps {
		if _, ok := seen[tp.Topic]; ok {
			continue
		}
		seen[tp.Topic] = struct{}{}
		topics = append(topics, tp.Topic)
	}

	listed, err := k.admin.ListStartOffsets(ctx, topics...)
	if err != nil {
		return nil, fmt.Errorf("list start offsets: %w", err)
	}

	out := make(map[TopicPartition]int64, len(tps))
	for _, tp := range tps {
		lo, ok := listed.Lookup(tp.Topic, tp.Partition)
		if !ok {
			return nil, fmt.Errorf("list start offsets %v: %w", tp, ErrUnknownTopic)
		}
		if lo.Err != nil {
			return nil, fmt.Errorf("list start offsets %v: %w", tp, lo.Err)
		}
		out[tp] = lo.Offset
	}

	return out, nil
}

func (k *KgoClient) PartitionsFor(ctx context.Context, topic string) ([]PartitionInfo, error) {
	req := kmsg.NewPtrMetadataRequest()
	reqTopic := kmsg.NewMetadataRequestTopic()
	reqTopic.Topic = kmsg.StringPtr(topic)
	req.Topics = append(req.Topics, reqTopic)

	resp, err := req.RequestWith(ctx, k.client)
	if err != nil {
		return nil, fmt.Errorf("metadata %s: %w", topic, err)
	}

	var out []PartitionInfo
	for _, t := range resp.Topics {
		if t.Topic == nil || *t.Topic != topic {
			continue
		}
		if err := kerr.ErrorForCode(t.ErrorCode); err != nil {
			return nil, fmt.Errorf("metadata %s: %w", topic, err)
		}
		for _, p := range t.Partitions {
			out = append(
				out, PartitionInfo{
					Topic:     topic,
					Partition: p.Partition,
					Leader:    p.Leader,
					Replicas:  p.Replicas,
				},
			)
		}
	}

	return out, nil
}

func (k *KgoClient) Ping(ctx context.Context) error {
	return k.client.Ping(ctx)
}

func (k *KgoClient) Close() {
	k.client.Close()
}

func convertRecords(records []*kgo.Record) []ConsumerRecord {
	converted := make([]ConsumerRecord, len(records))
	for i, r := range records {
		converted[i] = ConsumerRecord{
			Topic:       r.Topic,
			Partition:   r.Partition,
			Offset:      r.Offset,
			Key:         r.Key,
			Value:       r.Value,
			Headers:     convertFromKgoHeaders(r.Headers),
			Timestamp:   r.Timestamp,
			LeaderEpoch: r.LeaderEpoch,
		}
	}

	return converted
}

func convertFromKgoHeaders(headers []kgo.RecordHeader) []Header {
	converted := make([]Header, len(headers))
	for i, h := range headers {
		converted[i] = Header{Key: h.Key, Value: h.Value}
	}
	return converted
}
