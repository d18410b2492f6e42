package mockkafka

import (
	"strconv"
	"time"

	"github.com/hugolhafner/go-connect/kafka"
)

// RecordBuilder provides a fluent interface for building ConsumerRecords.
type RecordBuilder struct {
	record kafka.ConsumerRecord
}

// Record creates a new RecordBuilder with the given key and value.
func Record(key, value string) *RecordBuilder {
	return &RecordBuilder{
		record: kafka.ConsumerRecord{
			Key:       []byte(key),
			Value:     []byte(value),
			Timestamp: time.Now(),
		},
	}
}

// WithOffset sets the record's offset. Only AppendRecords honours it.
func (b *RecordBuilder) WithOffset(offset int64) *RecordBuilder {
	b.record.Offset = offset
	return b
}

// WithHeader adds a header to the record.
func (b *RecordBuilder) WithHeader(key string, value []byte) *RecordBuilder {
	b.record.Headers = append(b.record.Headers, kafka.Header{Key: key, Value: value})
	return b
}

// WithContentType sets the Content-Type header.
func (b *RecordBuilder) WithContentType(ct string) *RecordBuilder {
	return b.WithHeader(kafka.HeaderContentType, []byte(ct))
}

// Build returns the constructed ConsumerRecord.
func (b *RecordBuilder) Build() kafka.ConsumerRecord {
	return b.record
}

// SimpleRecord creates a ConsumerRecord with just key and value as strings.
func SimpleRecord(key, value string) kafka.ConsumerRecord {
	return Record(key, value).Build()
}

// Values creates one record per value, keyed by the value itself.
func Values(values ...string) []kafka.ConsumerRecord {
	records := make([]kafka.ConsumerRecord, 0, len(values))
	for _, v := range values {
		records = append(records, SimpleRecord(v, v))
	}
	return records
}

// AtOffsets creates one record per offset with value "v<offset>".
func AtOffsets(offsets ...int64) []kafka.ConsumerRecord {
	records := make([]kafka.ConsumerRecord, 0, len(offsets))
	for _, o := range offsets {
		v := "v" + strconv.FormatInt(o, 10)
		records = append(records, Record(v, v).WithOffset(o).Build())
	}
	return records
}
