package otel

import (
	"context"

	"github.com/hugolhafner/go-connect/kafka"
)

// KafkaHeadersCarrier adapts record headers to a propagation.TextMapCarrier.
type KafkaHeadersCarrier struct {
	Headers *[]kafka.Header
}

func NewKafkaHeadersCarrier(headers *[]kafka.Header) KafkaHeadersCarrier {
	return KafkaHeadersCarrier{Headers: headers}
}

// Get returns the last value for key, matching how record headers are
// collapsed everywhere else.
func (c KafkaHeadersCarrier) Get(key string) string {
	headers := *c.Headers
	for i := len(headers) - 1; i >= 0; i-- {
		if headers[i].Key == key {
			return string(headers[i].Value)
		}
	}
	return ""
}

func (c KafkaHeadersCarrier) Set(key, value string) {
	// Kafka can have multiple headers with the same key, overwrite all existing headers with the same key
	// or add new one
	found := false
	for i, h := range *c.Headers {
		if h.Key == key {
			(*c.Headers)[i].Value = []byte(value)
			found = true
		}
	}

	if !found {
		*c.Headers = append(*c.Headers, kafka.Header{Key: key, Value: []byte(value)})
	}
}

func (c KafkaHeadersCarrier) Keys() []string {
	keys := make([]string, len(*c.Headers))
	for i, h := range *c.Headers {
		keys[i] = h.Key
	}
	return keys
}

// ExtractRecord returns ctx carrying the trace context found in the record's
// headers, if any.
func (t *Telemetry) ExtractRecord(ctx context.Context, record kafka.ConsumerRecord) context.Context {
	headers := record.Headers
	return t.Propagator.Extract(ctx, NewKafkaHeadersCarrier(&headers))
}
