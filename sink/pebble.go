package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble"
	pebblestore "github.com/hugolhafner/go-connect/internal/storage/pebble"
)

var (
	ErrNotFound = errors.New("sink: entry not found")
	// ErrTransactionDone is returned when a write uses a transaction whose
	// unit of work already returned.
	ErrTransactionDone = errors.New("sink: transaction already finished")
)

const entryPrefix = "records/"

// Entry is one delivered record as stored by PebbleSink.
type Entry struct {
	Topic       string            `json:"topic"`
	Offset      int64             `json:"offset"`
	ContentType string            `json:"contentType,omitempty"`
	RequestID   string            `json:"requestId,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Payload     []byte            `json:"payload"`
}

var _ Transactional = (*PebbleSink)(nil)

// PebbleSink stores entries keyed by topic and offset, so redelivery of the
// same record overwrites rather than duplicates it.
type PebbleSink struct {
	db *pebblestore.DB
}

func NewPebbleSink(db *pebblestore.DB) *PebbleSink {
	return &PebbleSink{db: db}
}

type txKey struct{}

type tx struct {
	batch *pebble.Batch
	done  bool
}

// RunInTransaction gives fn a context carrying a Pebble batch. Puts made with
// that context land in the batch, which is committed only when fn returns nil.
func (s *PebbleSink) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t := &tx{batch: s.db.NewBatch()}
	defer func() {
		t.done = true
		_ = t.batch.Close()
	}()

	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		return err
	}

	if err := s.db.CommitBatch(t.batch); err != nil {
		return fmt.Errorf("sink: commit: %w", err)
	}
	return nil
}

// Put stores e. Inside RunInTransaction the write joins the transaction,
// otherwise it is committed on its own.
func (s *PebbleSink) Put(ctx context.Context, e Entry) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("sink: encode entry: %w", err)
	}
	key := EntryKey(e.Topic, e.Offset)

	if t, ok := ctx.Value(txKey{}).(*tx); ok {
		if t.done {
			return ErrTransactionDone
		}
		return t.batch.Set(key, value, nil)
	}

	return s.db.Set(key, value)
}

func (s *PebbleSink) Get(topic string, offset int64) (Entry, error) {
	raw, err := s.db.Get(EntryKey(topic, offset))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, fmt.Errorf("sink: decode entry: %w", err)
	}
	return e, nil
}

// Entries calls fn for every stored entry of topic in offset order.
func (s *PebbleSink) Entries(topic string, fn func(Entry) error) error {
	return s.db.Scan(
		[]byte(entryPrefix+topic+"/"), func(_, value []byte) error {
			var e Entry
			if err := json.Unmarshal(value, &e); err != nil {
				return fmt.Errorf("sink: decode entry: %w", err)
			}
			return fn(e)
		},
	)
}

// EntryKey zero-pads the offset so key order is offset order.
func EntryKey(topic string, offset int64) []byte {
	var b strings.Builder
	b.WriteString(entryPrefix)
	b.WriteString(topic)
	b.WriteByte('/')
	fmt.Fprintf(&b, "%020d", offset)
	return []byte(b.String())
}
