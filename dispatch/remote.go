package dispatch

import (
	"fmt"
	"net/http"
	"time"
)

const maxResponseBody = 64 << 10

var _ Dispatcher = (*RemoteDispatcher)(nil)

// RemoteDispatcher POSTs each record to an HTTP endpoint. A remote sink
// manages its own atomicity; no transaction spans the batch.
type RemoteDispatcher struct {
	client   *http.Client
	endpoint string
}

// NewRemoteDispatcher uses a client with a 30s timeout when client is nil.
func NewRemoteDispatcher(endpoint string, client *http.Client) *RemoteDispatcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &RemoteDispatcher{client: client, endpoint: endpoint}
}

func (d *RemoteDispatcher) Target() string {
	return d.endpoint
}

func (d *RemoteDispatcher) Do(req *http.Request) (Response, error) {
	resp, err := d.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("dispatch: post %s: %w", d.endpoint, err)
	}
	defer resp.Body.Close()

	return Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       readBody(resp.Body, maxResponseBody),
	}, nil
}
