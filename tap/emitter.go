package tap

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// Message types written to the output stream
const (
	MessageRecord = "RECORD"
	MessageState  = "STATE"
)

// Message is one line of tap output
type Message struct {
	Type          string         `json:"type"`
	Stream        string         `json:"stream,omitempty"`
	Record        map[string]any `json:"record,omitempty"`
	TimeExtracted string         `json:"time_extracted,omitempty"`
	Value         any            `json:"value,omitempty"`
}

// Emitter writes newline delimited messages. It is safe for concurrent use;
// lines from different streams never interleave.
type Emitter struct {
	mu    sync.Mutex
	enc   *json.Encoder
	clock func() time.Time
	count map[string]int
}

// NewEmitter creates an emitter writing to w
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{
		enc:   json.NewEncoder(w),
		clock: time.Now,
		count: make(map[string]int),
	}
}

// WriteRecord emits a RECORD message
func (e *Emitter) WriteRecord(stream string, record map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	msg := Message{
		Type:          MessageRecord,
		Stream:        stream,
		Record:        record,
		TimeExtracted: e.clock().UTC().Format(time.RFC3339),
	}
	if err := e.enc.Encode(msg); err != nil {
		return fmt.Errorf("failed to write %s record: %w", stream, err)
	}
	e.count[stream]++
	return nil
}

// WriteState emits a STATE message
func (e *Emitter) WriteState(state *State) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.enc.Encode(Message{Type: MessageState, Value: state}); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	return nil
}

// Counts returns the number of records written per stream
func (e *Emitter) Counts() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()

	counts := make(map[string]int, len(e.count))
	for k, v := range e.count {
		counts[k] = v
	}
	return counts
}
