package reconcile

import (
	"context"
	"time"

	"github.com/hugolhafner/go-connect/kafka"
	"github.com/hugolhafner/go-connect/logger"
)

// DefaultConnectionTimeout bounds the startup metadata request.
const DefaultConnectionTimeout = 5 * time.Second

// CheckConnection asks the broker for the topic's partitions. Failures are
// logged as warnings and returned; callers are expected to keep starting up
// since the poll loop retries on its own.
func CheckConnection(
	ctx context.Context,
	consumer kafka.Consumer,
	topic string,
	timeout time.Duration,
	l logger.Logger,
) error {
	if l == nil {
		l = logger.NewNoopLogger()
	}
	if timeout <= 0 {
		timeout = DefaultConnectionTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	partitions, err := consumer.PartitionsFor(ctx, topic)
	if err != nil {
		l.Warn("Unable to reach broker for topic metadata", "topic", topic, "timeout", timeout, "error", err)
		return err
	}

	if len(partitions) == 0 {
		l.Warn("Topic has no partitions", "topic", topic)
		return nil
	}

	l.Debug("Broker reachable", "topic", topic, "partitions", len(partitions))
	return nil
}
