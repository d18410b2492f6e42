package sink

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/hugolhafner/go-connect/dispatch"
	"github.com/hugolhafner/go-connect/logger"
)

const maxIngestBody = 8 << 20

// IngestHandler accepts dispatched records and stores them in a PebbleSink.
// Requests served in-process inside RunInTransaction write into that
// transaction.
type IngestHandler struct {
	sink   *PebbleSink
	logger logger.Logger
}

func NewIngestHandler(s *PebbleSink, l logger.Logger) *IngestHandler {
	if l == nil {
		l = logger.NewNoopLogger()
	}
	return &IngestHandler{sink: s, logger: l.With("component", "ingest")}
}

func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	topic := r.Header.Get(dispatch.HeaderTopic)
	offset, err := strconv.ParseInt(r.Header.Get(dispatch.HeaderOffset), 10, 64)
	if topic == "" || err != nil {
		writeError(w, http.StatusBadRequest, "missing or invalid record coordinates")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	if len(payload) > maxIngestBody {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}

	e := Entry{
		Topic:       topic,
		Offset:      offset,
		ContentType: r.Header.Get("Content-Type"),
		RequestID:   r.Header.Get(dispatch.HeaderRequestID),
		Headers:     headers,
		Payload:     payload,
	}

	if err := h.sink.Put(r.Context(), e); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrTransactionDone) {
			status = http.StatusConflict
		}
		h.logger.Error("Failed to store record", "topic", topic, "offset", offset, "error", err)
		writeError(w, status, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
