package dispatch

import (
	"bytes"
	"net/http"
)

var _ Dispatcher = (*LocalDispatcher)(nil)

// LocalDispatcher serves requests with an in-process handler on the calling
// goroutine. The request context reaches the handler unchanged, so a sink
// transaction opened around the batch is visible to it.
type LocalDispatcher struct {
	handler http.Handler
	path    string
}

func NewLocalDispatcher(handler http.Handler, path string) *LocalDispatcher {
	return &LocalDispatcher{handler: handler, path: path}
}

func (d *LocalDispatcher) Target() string {
	return d.path
}

func (d *LocalDispatcher) Do(req *http.Request) (Response, error) {
	req.RequestURI = req.URL.RequestURI()
	if req.RemoteAddr == "" {
		req.RemoteAddr = "local"
	}

	w := newResponseBuffer()
	d.handler.ServeHTTP(w, req)

	return Response{StatusCode: w.status(), Header: w.header, Body: w.body.Bytes()}, nil
}

// responseBuffer is the minimal http.ResponseWriter needed to capture an
// in-process response.
type responseBuffer struct {
	header      http.Header
	body        bytes.Buffer
	code        int
	wroteHeader bool
}

func newResponseBuffer() *responseBuffer {
	return &responseBuffer{header: make(http.Header)}
}

func (w *responseBuffer) Header() http.Header {
	return w.header
}

func (w *responseBuffer) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.code = code
	w.wroteHeader = true
}

func (w *responseBuffer) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.Write(b)
}

func (w *responseBuffer) status() int {
	if !w.wroteHeader {
		return http.StatusOK
	}
	return w.code
}
