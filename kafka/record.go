package kafka

import (
	"strconv"
	"time"
)

// HeaderContentType is the record header naming the payload's content type.
const HeaderContentType = "Content-Type"

// Header represents a single Kafka record header
// kafka needs to support multiple headers with duplicate keys
type Header struct {
	Key   string
	Value []byte
}

// HeaderValue returns the value of the first header matching the given key
// Returns (nil, false) if no header with that key exists
func HeaderValue(headers []Header, key string) ([]byte, bool) {
	for _, h := range headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return nil, false
}

type ConsumerRecord struct {
	Key         []byte
	Value       []byte
	Headers     []Header
	Topic       string
	Partition   int32
	Offset      int64
	LeaderEpoch int32
	Timestamp   time.Time
}

func (r ConsumerRecord) TopicPartition() TopicPartition {
	return TopicPartition{
		Topic:     r.Topic,
		Partition: r.Partition,
	}
}

// HeaderMap collapses the headers into a map. When a key repeats, the last
// value wins.
func (r ConsumerRecord) HeaderMap() map[string]string {
	m := make(map[string]string, len(r.Headers))
	for _, h := range r.Headers {
		m[h.Key] = string(h.Value)
	}
	return m
}

// ContentType returns the declared payload content type, or "" when the
// record carries no Content-Type header.
func (r ConsumerRecord) ContentType() string {
	var ct string
	for _, h := range r.Headers {
		if h.Key == HeaderContentType {
			ct = string(h.Value)
		}
	}
	return ct
}

// Size is the payload size in bytes.
func (r ConsumerRecord) Size() int {
	return len(r.Value)
}

func (r ConsumerRecord) Copy() ConsumerRecord {
	headersCopy := make([]Header, len(r.Headers))
	for i, h := range r.Headers {
		vCopy := make([]byte, len(h.Value))
		copy(vCopy, h.Value)
		headersCopy[i] = Header{Key: h.Key, Value: vCopy}
	}

	keyCopy := make([]byte, len(r.Key))
	copy(keyCopy, r.Key)

	valueCopy := make([]byte, len(r.Value))
	copy(valueCopy, r.Value)

	return ConsumerRecord{
		Key:         keyCopy,
		Value:       valueCopy,
		Headers:     headersCopy,
		Topic:       r.Topic,
		Partition:   r.Partition,
		Offset:      r.Offset,
		LeaderEpoch: r.LeaderEpoch,
		Timestamp:   r.Timestamp,
	}
}

type TopicPartition struct {
	Topic     string
	Partition int32
}

func (tp TopicPartition) String() string {
	return tp.Topic + "-" + strconv.FormatInt(int64(tp.Partition), 10)
}

// PartitionInfo is the broker metadata for one partition of a topic.
type PartitionInfo struct {
	Topic     string
	Partition int32
	Leader    int32
	Replicas  []int32
}

// Payload sums the payload sizes of records.
func Payload(records []ConsumerRecord) int64 {
	var n int64
	for _, r := range records {
		n += int64(r.Size())
	}
	return n
}
