package checkpoint

// NoOffset is the LastOffset of a stream that has not processed anything.
const NoOffset int64 = -1

// DataState is the durable progress of one stream: the offset of the last
// record whose batch committed.
type DataState struct {
	topic string
	state *State
}

func NewDataState(topic string, state *State) *DataState {
	return &DataState{topic: topic, state: state}
}

// OpenDataState loads the DataState for topic from store.
func OpenDataState(topic string, store Store) (*DataState, error) {
	st, err := NewState(store)
	if err != nil {
		return nil, err
	}
	return NewDataState(topic, st), nil
}

func (d *DataState) Topic() string {
	return d.topic
}

// LastOffset returns NoOffset when the state has never been written.
func (d *DataState) LastOffset() (int64, error) {
	if d.state.IsEmpty() {
		return NoOffset, nil
	}
	return d.state.Integer()
}

// SetLastOffset persists offset before returning.
func (d *DataState) SetLastOffset(offset int64) error {
	return d.state.SetInteger(offset)
}
