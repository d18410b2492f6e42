// Package dispatch turns records into HTTP requests against the sink, either
// served in-process by a local handler or sent to a remote endpoint.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/hugolhafner/go-connect/kafka"
)

const (
	HeaderRequestID = "X-Request-Id"
	HeaderTopic     = "X-Kafka-Topic"
	HeaderPartition = "X-Kafka-Partition"
	HeaderOffset    = "X-Kafka-Offset"

	// DefaultContentType is used when a record carries no Content-Type header.
	DefaultContentType = "application/octet-stream"
)

var (
	// ErrRejected matches every StatusError.
	ErrRejected    = errors.New("dispatch: sink rejected record")
	ErrNoTarget    = errors.New("dispatch: one of local dispatch path or remote endpoint is required")
	ErrBothTargets = errors.New("dispatch: local dispatch path and remote endpoint are mutually exclusive")
)

// Response is what the sink answered for one record.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("dispatch: sink responded %d", e.StatusCode)
	}
	return fmt.Sprintf("dispatch: sink responded %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrRejected
}

// Dispatcher delivers requests to one sink target.
type Dispatcher interface {
	// Target is the URL or path requests are addressed to.
	Target() string
	Do(req *http.Request) (Response, error)
}

// NewRequest builds the POST for rec. Record headers are copied first with
// the last value winning for duplicate keys; the connector's own headers are
// set afterwards and cannot be overridden by the record.
func NewRequest(ctx context.Context, target string, rec kafka.ConsumerRecord) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(rec.Value))
	if err != nil {
		return nil, fmt.Errorf("dispatch: build request: %w", err)
	}

	for k, v := range rec.HeaderMap() {
		req.Header.Set(k, v)
	}

	contentType := rec.ContentType()
	if contentType == "" {
		contentType = DefaultContentType
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(HeaderRequestID, uuid.NewString())
	req.Header.Set(HeaderTopic, rec.Topic)
	req.Header.Set(HeaderPartition, strconv.FormatInt(int64(rec.Partition), 10))
	req.Header.Set(HeaderOffset, strconv.FormatInt(rec.Offset, 10))

	return req, nil
}

// Select returns the dispatcher for whichever target is configured. Exactly
// one of localPath and remoteEndpoint must be set.
func Select(localPath, remoteEndpoint string, local http.Handler, client *http.Client) (Dispatcher, error) {
	switch {
	case localPath != "" && remoteEndpoint != "":
		return nil, ErrBothTargets
	case localPath != "":
		if local == nil {
			return nil, errors.New("dispatch: local dispatch path set without a handler")
		}
		return NewLocalDispatcher(local, localPath), nil
	case remoteEndpoint != "":
		return NewRemoteDispatcher(remoteEndpoint, client), nil
	default:
		return nil, ErrNoTarget
	}
}

func readBody(r io.Reader, limit int64) []byte {
	b, _ := io.ReadAll(io.LimitReader(r, limit))
	return b
}
